package desktop

import "strings"

// keyAliases is the closed alias table every key name passes through before
// being handed to a platform Input implementation.
var keyAliases = map[string]string{
	"ctrl":      "control",
	"esc":       "escape",
	"pgup":      "prior",
	"pgdn":      "next",
	"pagedown":  "next",
	"pageup":    "prior",
	"return":    "enter",
	"del":       "delete",
	"ins":       "insert",
	"win":       "super",
	"cmd":       "super",
	"meta":      "super",
	"spacebar":  "space",
}

// NormalizeKey applies the alias table to a key name. Normalization is
// idempotent: NormalizeKey(NormalizeKey(k)) == NormalizeKey(k).
func NormalizeKey(key string) string {
	lower := strings.ToLower(key)
	if alias, ok := keyAliases[lower]; ok {
		return alias
	}
	return lower
}

// NewInput creates the platform-specific Input capability. Implementations
// live in input_*.go files selected by build tag.
