package input

import "strings"

// specialKeys maps wire key names to robotgo key names. Keys not listed
// here are injected as literal text.
var specialKeys = map[string]string{
	"space":     "space",
	"enter":     "enter",
	"tab":       "tab",
	"backspace": "backspace",
	"delete":    "delete",
	"escape":    "esc",
	"esc":       "esc",
	"shift":     "shift",
	"ctrl":      "ctrl",
	"alt":       "alt",
	"cmd":       "cmd",
	"win":       "cmd",
	"insert":    "insert",
	"home":      "home",
	"end":       "end",
	"page_up":   "pageup",
	"page_down": "pagedown",
	"left":      "left",
	"right":     "right",
	"up":        "up",
	"down":      "down",
	"f1":        "f1",
	"f2":        "f2",
	"f3":        "f3",
	"f4":        "f4",
	"f5":        "f5",
	"f6":        "f6",
	"f7":        "f7",
	"f8":        "f8",
	"f9":        "f9",
	"f10":       "f10",
	"f11":       "f11",
	"f12":       "f12",
}

// MapKey resolves a wire key name. ok is true when the name is a special
// key with a platform constant; otherwise the key should be typed as text.
func MapKey(key string) (name string, ok bool) {
	name, ok = specialKeys[strings.ToLower(key)]
	return name, ok
}
