package canvas

import (
	"fmt"
	"strings"

	"github.com/gogpu/gg"
)

var namedColors = map[string]string{
	"black": "#000000",
	"white": "#ffffff",
	"red":   "#ff0000",
	"green": "#008000",
	"blue":  "#0000ff",
	"gray":  "#808080",
	"grey":  "#808080",
}

// ParseColor understands hex, rgb()/rgba() and a handful of names. ok is false
// for empty, "none" and "transparent" paints as well as unparsable input.
func ParseColor(s string) (c gg.RGBA, ok bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if named, found := namedColors[s]; found {
		s = named
	}
	switch {
	case s == "", s == "none", s == "transparent":
		return gg.RGBA{}, false
	case strings.HasPrefix(s, "#"):
		if !isHex(s[1:]) {
			return gg.RGBA{}, false
		}
		c = gg.Hex(s)
	case strings.HasPrefix(s, "rgba("):
		var r, g, b, a float64
		if _, err := fmt.Sscanf(s, "rgba(%g,%g,%g,%g)", &r, &g, &b, &a); err != nil {
			if _, err := fmt.Sscanf(s, "rgba(%g, %g, %g, %g)", &r, &g, &b, &a); err != nil {
				return gg.RGBA{}, false
			}
		}
		c = gg.RGBA{R: r / 255, G: g / 255, B: b / 255, A: a}
	case strings.HasPrefix(s, "rgb("):
		var r, g, b float64
		if _, err := fmt.Sscanf(s, "rgb(%g,%g,%g)", &r, &g, &b); err != nil {
			if _, err := fmt.Sscanf(s, "rgb(%g, %g, %g)", &r, &g, &b); err != nil {
				return gg.RGBA{}, false
			}
		}
		c = gg.RGB(r/255, g/255, b/255)
	default:
		return gg.RGBA{}, false
	}
	return c, c.A > 0
}

func isHex(s string) bool {
	switch len(s) {
	case 3, 4, 6, 8:
	default:
		return false
	}
	for _, r := range s {
		if !strings.ContainsRune("0123456789abcdef", r) {
			return false
		}
	}
	return true
}
