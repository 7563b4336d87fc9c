package input

import (
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ansari-belal-ahmad/remote-desktop/internal/config"
	"github.com/ansari-belal-ahmad/remote-desktop/internal/types"
)

// doubleClickGap separates the two clicks of a double click.
const doubleClickGap = 100 * time.Millisecond

// EventSink receives outward notifications about applied commands.
type EventSink interface {
	BroadcastEvent(et types.EventType, details map[string]any)
}

// Dispatcher applies one session's control commands to the shared Actuator.
// Throttle state and the auto-click flag are per session, so one viewer's
// activity never interferes with another's.
type Dispatcher struct {
	act  Actuator
	sink EventSink
	log  *logrus.Entry

	throttle    time.Duration
	blockEndKey bool
	autoClickOK bool
	clipboardOK bool

	mu       sync.Mutex
	lastMove time.Time

	autoClick atomic.Bool
}

// NewDispatcher builds a dispatcher for one session.
func NewDispatcher(act Actuator, cfg *config.Config, sink EventSink, log *logrus.Entry) *Dispatcher {
	return &Dispatcher{
		act:         act,
		sink:        sink,
		log:         log,
		throttle:    time.Duration(cfg.Performance.MouseThrottleMs) * time.Millisecond,
		blockEndKey: cfg.Security.BlockEndKey,
		autoClickOK: cfg.Features.EnableAutoClick,
		clipboardOK: cfg.Features.EnableClipboard,
	}
}

// HandleControl applies one control command. Unknown actions are logged and
// dropped; they are never fatal to the session.
func (d *Dispatcher) HandleControl(msg types.Envelope) {
	switch msg.Action {
	case "move":
		d.move(msg.X, msg.Y)
	case "click":
		b := ParseButton(msg.Button)
		if err := d.act.Click(b); err != nil {
			d.log.WithError(err).Error("click failed")
			return
		}
		d.emit(types.EventClick, map[string]any{"button": string(b)})
	case "double_click":
		if err := d.doubleClick(); err != nil {
			d.log.WithError(err).Error("double click failed")
			return
		}
		d.emit(types.EventClick, map[string]any{"button": "left", "double": true})
	case "scroll":
		d.act.Scroll(msg.Dy)
		d.emit(types.EventScroll, map[string]any{"dy": msg.Dy})
	case "key":
		d.key(msg.Key)
	case "paste":
		d.paste(msg.Text)
	default:
		d.log.Warnf("unknown control action %q", msg.Action)
	}
}

// move applies the mouse-throttle debounce: positions arriving faster than
// the throttle interval are silently dropped, not queued.
func (d *Dispatcher) move(x, y int) {
	d.mu.Lock()
	now := time.Now()
	if now.Sub(d.lastMove) <= d.throttle {
		d.mu.Unlock()
		return
	}
	d.lastMove = now
	d.mu.Unlock()

	d.act.Move(x, y)
}

func (d *Dispatcher) doubleClick() error {
	if err := d.act.Click(ButtonLeft); err != nil {
		return err
	}
	time.Sleep(doubleClickGap)
	return d.act.Click(ButtonLeft)
}

func (d *Dispatcher) key(key string) {
	if key == "" {
		return
	}
	// Security policy: the END key is never injected when blocked,
	// regardless of letter case.
	if d.blockEndKey && strings.EqualFold(key, "end") {
		d.log.Warn("blocked END key injection")
		return
	}
	if name, ok := MapKey(key); ok {
		if err := d.act.Tap(name); err != nil {
			d.log.WithError(err).Errorf("key tap %q failed", name)
			return
		}
	} else {
		d.act.Type(key)
	}
	d.emit(types.EventKey, map[string]any{"key": key})
}

// paste types clipboard text verbatim.
func (d *Dispatcher) paste(text string) {
	if !d.clipboardOK {
		d.log.Warn("clipboard is disabled by configuration")
		return
	}
	if text == "" {
		return
	}
	d.act.Type(text)
	d.emit(types.EventClipboard, map[string]any{"length": len(text)})
}

// StartAutoClick begins this session's auto-click loop. Starting an already
// running loop is a no-op.
func (d *Dispatcher) StartAutoClick() {
	if !d.autoClickOK {
		d.log.Warn("auto-click is disabled by configuration")
		return
	}
	if !d.autoClick.CompareAndSwap(false, true) {
		return
	}
	d.emit(types.EventSystem, map[string]any{"action": "start_auto_click"})
	go d.autoClickLoop()
}

// StopAutoClick clears the flag; the loop exits before its next click.
func (d *Dispatcher) StopAutoClick() {
	if d.autoClick.CompareAndSwap(true, false) {
		d.emit(types.EventSystem, map[string]any{"action": "stop_auto_click"})
	}
}

// AutoClickActive reports whether this session's loop is running.
func (d *Dispatcher) AutoClickActive() bool { return d.autoClick.Load() }

// autoClickLoop clicks and then sleeps a randomized interval drawn
// uniformly from [1.0, 3.0) seconds, until the flag clears or an injection
// error occurs.
func (d *Dispatcher) autoClickLoop() {
	for d.autoClick.Load() {
		if err := d.act.Click(ButtonLeft); err != nil {
			d.log.WithError(err).Error("auto-click failed, stopping")
			d.autoClick.Store(false)
			return
		}
		d.emit(types.EventAutoClick, map[string]any{})

		delay := time.Second + time.Duration(rand.Float64()*2*float64(time.Second))
		time.Sleep(delay)
	}
}

func (d *Dispatcher) emit(et types.EventType, details map[string]any) {
	if d.sink != nil {
		d.sink.BroadcastEvent(et, details)
	}
}
