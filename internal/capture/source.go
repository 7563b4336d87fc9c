package capture

import (
	"fmt"
	"image"

	"github.com/kbinani/screenshot"
)

// Source is the platform screen-grab primitive. The real implementation is
// backed by the OS; tests substitute their own.
type Source interface {
	// NumDisplays returns the number of attached monitors.
	NumDisplays() int
	// DisplayBounds returns the bounds of monitor i.
	DisplayBounds(i int) image.Rectangle
	// Capture grabs the current contents of monitor i.
	Capture(i int) (image.Image, error)
}

type screenSource struct{}

// NewScreenSource returns the OS-backed capture source.
func NewScreenSource() Source { return screenSource{} }

func (screenSource) NumDisplays() int { return screenshot.NumActiveDisplays() }

func (screenSource) DisplayBounds(i int) image.Rectangle {
	return screenshot.GetDisplayBounds(i)
}

func (screenSource) Capture(i int) (image.Image, error) {
	if n := screenshot.NumActiveDisplays(); i < 0 || i >= n {
		return nil, fmt.Errorf("display %d out of range (have %d)", i, n)
	}
	img, err := screenshot.CaptureRect(screenshot.GetDisplayBounds(i))
	if err != nil {
		return nil, fmt.Errorf("capture display %d: %w", i, err)
	}
	return img, nil
}
