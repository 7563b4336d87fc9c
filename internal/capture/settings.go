package capture

import (
	"sync/atomic"

	"github.com/ansari-belal-ahmad/remote-desktop/internal/config"
)

// Settings holds the pipeline tuning values. MaxFPS and JPEGQuality can be
// adjusted at runtime by viewer commands and are read by the capture loop
// each iteration; the remaining fields are fixed per run.
type Settings struct {
	maxFPS      atomic.Int32
	jpegQuality atomic.Int32

	CompressionLevel   int
	DownscaleThreshold int
}

// NewSettings seeds runtime settings from the performance configuration.
func NewSettings(perf config.PerformanceConfig) *Settings {
	s := &Settings{
		CompressionLevel:   perf.CompressionLevel,
		DownscaleThreshold: perf.DownscaleThreshold,
	}
	s.SetMaxFPS(perf.MaxFPS)
	s.SetJPEGQuality(perf.JPEGQuality)
	return s
}

// MaxFPS returns the current target frame rate.
func (s *Settings) MaxFPS() int { return int(s.maxFPS.Load()) }

// SetMaxFPS updates the target frame rate, clamped to 1-120.
func (s *Settings) SetMaxFPS(fps int) {
	s.maxFPS.Store(int32(clamp(fps, 1, 120)))
}

// JPEGQuality returns the current encode quality.
func (s *Settings) JPEGQuality() int { return int(s.jpegQuality.Load()) }

// SetJPEGQuality updates the encode quality, clamped to 10-100.
func (s *Settings) SetJPEGQuality(q int) {
	s.jpegQuality.Store(int32(clamp(q, 10, 100)))
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
