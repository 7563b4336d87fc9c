// Package input applies viewer commands to the host: the Actuator
// abstraction over OS input injection and the per-session Dispatcher that
// enforces throttling and key policy.
package input

import (
	"github.com/go-vgo/robotgo"
)

// Button identifies a mouse button.
type Button string

const (
	ButtonLeft   Button = "left"
	ButtonRight  Button = "right"
	ButtonMiddle Button = "middle"
)

// ParseButton maps a wire button name to a Button, defaulting to left.
func ParseButton(s string) Button {
	switch s {
	case "right":
		return ButtonRight
	case "middle", "center":
		return ButtonMiddle
	default:
		return ButtonLeft
	}
}

// Actuator is the OS input-injection primitive. The robotgo implementation
// drives real hardware; Noop serves headless hosts and tests. Selected at
// construction time via configuration.
type Actuator interface {
	Move(x, y int)
	Click(b Button) error
	Scroll(dy int)
	// Tap presses and releases a named key.
	Tap(key string) error
	// Type injects literal text.
	Type(text string)
}

// NewActuator returns the implementation for the configured backend.
// Anything other than "robotgo" gets the no-op actuator.
func NewActuator(backend string) Actuator {
	if backend == "robotgo" {
		return robotgoActuator{}
	}
	return Noop{}
}

type robotgoActuator struct{}

func (robotgoActuator) Move(x, y int) { robotgo.Move(x, y) }

func (robotgoActuator) Click(b Button) error {
	name := string(b)
	if b == ButtonMiddle {
		name = "center"
	}
	robotgo.Click(name)
	return nil
}

func (robotgoActuator) Scroll(dy int) { robotgo.Scroll(0, dy) }

func (robotgoActuator) Tap(key string) error { return robotgo.KeyTap(key) }

func (robotgoActuator) Type(text string) { robotgo.TypeStr(text) }

// Noop discards all injections.
type Noop struct{}

func (Noop) Move(x, y int) {}

func (Noop) Click(b Button) error { return nil }

func (Noop) Scroll(dy int) {}

func (Noop) Tap(key string) error { return nil }

func (Noop) Type(text string) {}
