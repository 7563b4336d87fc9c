package capture

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/klauspost/compress/zlib"
	xdraw "golang.org/x/image/draw"
)

// EncodeFrame converts a raw captured image into the wire payload:
// optional downscale, JPEG encode, then an optional zlib wrapper.
func EncodeFrame(img image.Image, s *Settings) ([]byte, error) {
	img = downscale(img, s.DownscaleThreshold)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: s.JPEGQuality()}); err != nil {
		return nil, fmt.Errorf("jpeg encode: %w", err)
	}
	if s.CompressionLevel <= 0 {
		return buf.Bytes(), nil
	}

	var out bytes.Buffer
	zw, err := zlib.NewWriterLevel(&out, s.CompressionLevel)
	if err != nil {
		return nil, fmt.Errorf("zlib writer: %w", err)
	}
	if _, err := zw.Write(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("zlib compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("zlib flush: %w", err)
	}
	return out.Bytes(), nil
}

// downscale shrinks img uniformly so neither dimension exceeds threshold,
// preserving aspect ratio. BiLinear keeps the kernel wide enough when
// shrinking to approximate area averaging.
func downscale(img image.Image, threshold int) image.Image {
	if threshold <= 0 {
		return img
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= threshold && h <= threshold {
		return img
	}

	scale := min(float64(threshold)/float64(w), float64(threshold)/float64(h))
	dw, dh := int(float64(w)*scale), int(float64(h)*scale)
	if dw < 1 {
		dw = 1
	}
	if dh < 1 {
		dh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	xdraw.BiLinear.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}
