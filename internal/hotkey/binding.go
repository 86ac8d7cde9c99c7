package hotkey

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidBinding is returned for key combinations that cannot be registered
var ErrInvalidBinding = errors.New("invalid hotkey")

// Binding is a platform-neutral key combination
type Binding struct {
	Ctrl  bool   `json:"ctrl"`
	Shift bool   `json:"shift"`
	Alt   bool   `json:"alt"`
	Key   string `json:"key"`
}

// DefaultBinding returns Ctrl+Shift+L
func DefaultBinding() Binding {
	return Binding{Ctrl: true, Shift: true, Key: "L"}
}

// keyAliases maps accepted spellings to canonical key names
var keyAliases = map[string]string{
	"space":  "Space",
	"return": "Return",
	"enter":  "Return",
	"escape": "Escape",
	"esc":    "Escape",
	"tab":    "Tab",
	"delete": "Delete",
	"del":    "Delete",
}

// NormalizeKey returns the canonical name of a key: an upper-case letter,
// a digit, F1 to F12, or one of Space, Return, Escape, Tab and Delete
func NormalizeKey(key string) (string, bool) {
	k := strings.TrimSpace(key)
	if len(k) == 1 {
		c := strings.ToUpper(k)[0]
		if (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			return string(c), true
		}
		return "", false
	}
	if name, ok := keyAliases[strings.ToLower(k)]; ok {
		return name, true
	}
	up := strings.ToUpper(k)
	if n, err := strconv.Atoi(strings.TrimPrefix(up, "F")); err == nil && strings.HasPrefix(up, "F") &&
		n >= 1 && n <= 12 && up == "F"+strconv.Itoa(n) {
		return up, true
	}
	return "", false
}

// Normalize validates b and canonicalizes its key name. A binding needs at
// least one modifier so it does not swallow ordinary typing.
func (b Binding) Normalize() (Binding, error) {
	key, ok := NormalizeKey(b.Key)
	if !ok {
		return b, fmt.Errorf("%w: unsupported key %q", ErrInvalidBinding, b.Key)
	}
	if !b.Ctrl && !b.Shift && !b.Alt {
		return b, fmt.Errorf("%w: %s needs a modifier", ErrInvalidBinding, key)
	}
	b.Key = key
	return b, nil
}

// ParseBinding parses strings such as "Ctrl+Shift+L"
func ParseBinding(s string) (Binding, error) {
	var b Binding
	parts := strings.Split(s, "+")
	for i, part := range parts {
		p := strings.TrimSpace(part)
		if i == len(parts)-1 {
			b.Key = p
			break
		}
		switch strings.ToLower(p) {
		case "ctrl", "control":
			b.Ctrl = true
		case "shift":
			b.Shift = true
		case "alt", "option", "opt":
			b.Alt = true
		default:
			return Binding{}, fmt.Errorf("%w: unknown modifier %q", ErrInvalidBinding, p)
		}
	}
	return b.Normalize()
}

// String formats the binding as "Ctrl+Shift+L"
func (b Binding) String() string {
	var parts []string
	if b.Ctrl {
		parts = append(parts, "Ctrl")
	}
	if b.Shift {
		parts = append(parts, "Shift")
	}
	if b.Alt {
		parts = append(parts, "Alt")
	}
	key := b.Key
	if k, ok := NormalizeKey(b.Key); ok {
		key = k
	}
	return strings.Join(append(parts, key), "+")
}

// Equal reports whether two bindings press the same keys
func (b Binding) Equal(o Binding) bool {
	bk, _ := NormalizeKey(b.Key)
	ok, _ := NormalizeKey(o.Key)
	return b.Ctrl == o.Ctrl && b.Shift == o.Shift && b.Alt == o.Alt && bk == ok
}
