// Package capture drives the screen-grab → encode → buffer pipeline on its
// own dedicated goroutine, decoupled from the network I/O side.
package capture

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ansari-belal-ahmad/remote-desktop/internal/framebuf"
)

// ErrAlreadyRunning is returned by Start when the engine is running.
var ErrAlreadyRunning = errors.New("capture: engine already running")

// errorBackoff is the fixed delay after a failed capture or encode cycle.
const errorBackoff = 100 * time.Millisecond

// Engine repeatedly captures the active monitor, encodes the frame and
// pushes it into the frame buffer at the configured rate. A cycle that
// overruns its budget is published immediately; dropped cycles are not
// caught up.
type Engine struct {
	source   Source
	settings *Settings
	buf      *framebuf.Buffer
	log      *logrus.Entry

	running atomic.Bool
	monitor atomic.Int32
	done    chan struct{}
}

// NewEngine wires a capture source to a frame buffer.
func NewEngine(source Source, settings *Settings, buf *framebuf.Buffer) *Engine {
	return &Engine{
		source:   source,
		settings: settings,
		buf:      buf,
		log:      logrus.WithField("component", "capture"),
	}
}

// Start spawns the capture goroutine.
func (e *Engine) Start() error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	e.done = make(chan struct{})
	e.log.Infof("screen capture started (%d monitors)", e.source.NumDisplays())
	go e.loop()
	return nil
}

// Stop clears the running flag and waits for the current iteration to
// finish. The next pending capture is simply discarded.
func (e *Engine) Stop() {
	if !e.running.CompareAndSwap(true, false) {
		return
	}
	<-e.done
	e.log.Info("screen capture stopped")
}

// SwitchMonitor selects the monitor for the next iteration. An
// out-of-bounds index is a no-op and returns false.
func (e *Engine) SwitchMonitor(i int) bool {
	if i < 0 || i >= e.source.NumDisplays() {
		e.log.Warnf("ignoring switch to invalid monitor %d", i)
		return false
	}
	e.monitor.Store(int32(i))
	e.log.Infof("switched to monitor %d", i)
	return true
}

// ScreenSize returns the active monitor's resolution, falling back to
// 1920x1080 when no monitor is known.
func (e *Engine) ScreenSize() (int, int) {
	i := int(e.monitor.Load())
	if i < 0 || i >= e.source.NumDisplays() {
		return 1920, 1080
	}
	b := e.source.DisplayBounds(i)
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return 1920, 1080
	}
	return b.Dx(), b.Dy()
}

// Settings exposes the runtime-tunable pipeline settings.
func (e *Engine) Settings() *Settings { return e.settings }

func (e *Engine) loop() {
	defer close(e.done)

	for e.running.Load() {
		start := time.Now()

		img, err := e.source.Capture(int(e.monitor.Load()))
		if err != nil {
			e.log.WithError(err).Error("capture failed")
			time.Sleep(errorBackoff)
			continue
		}

		frame, err := EncodeFrame(img, e.settings)
		if err != nil {
			e.log.WithError(err).Error("encode failed")
			time.Sleep(errorBackoff)
			continue
		}

		e.buf.Put(frame)

		// Hold the target cadence; an overrun frame goes out immediately
		// and lost cycles are not made up.
		budget := time.Second / time.Duration(e.settings.MaxFPS())
		if elapsed := time.Since(start); elapsed < budget {
			time.Sleep(budget - elapsed)
		}
	}
}
