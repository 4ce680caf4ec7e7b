// Package safeurl decides whether a URL taken from user content may be used as
// a link target or resource source.
package safeurl

import (
	"net/url"
	"strings"
)

// blockedSchemes are the schemes that can execute script or smuggle inline
// documents. Everything else, relative references included, is accepted.
var blockedSchemes = map[string]struct{}{
	"javascript": {},
	"data":       {},
}

// IsSafe reports whether raw, resolved against baseOrigin, uses a scheme other
// than javascript: or data:. A '%' that does not start an escape is read as a
// literal, as browsers do. Strings that still do not parse as a URL are unsafe.
// An unparsable baseOrigin is ignored and raw is judged on its own.
func IsSafe(raw, baseOrigin string) bool {
	raw = clean(raw)
	u, err := url.Parse(raw)
	if err != nil {
		fixed := escapeStrayPercent(raw)
		if fixed == raw {
			return false
		}
		if u, err = url.Parse(fixed); err != nil {
			return false
		}
	}
	if base, err := url.Parse(baseOrigin); err == nil && baseOrigin != "" {
		u = base.ResolveReference(u)
	}
	_, blocked := blockedSchemes[strings.ToLower(u.Scheme)]
	return !blocked
}

// clean applies the same pre-processing a browser does before parsing: C0
// controls and spaces are trimmed from both ends and tabs and newlines are
// removed everywhere, so "java\tscript:" is read as "javascript:".
func clean(raw string) string {
	raw = strings.TrimFunc(raw, func(r rune) bool { return r <= 0x20 })
	if !strings.ContainsAny(raw, "\t\n\r") {
		return raw
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '\t', '\n', '\r':
			return -1
		}
		return r
	}, raw)
}

// escapeStrayPercent rewrites every '%' not followed by two hex digits as %25.
func escapeStrayPercent(raw string) string {
	if !strings.Contains(raw, "%") {
		return raw
	}
	var b strings.Builder
	b.Grow(len(raw) + 4)
	for i := 0; i < len(raw); i++ {
		if raw[i] == '%' && !(i+2 < len(raw) && isHex(raw[i+1]) && isHex(raw[i+2])) {
			b.WriteString("%25")
			continue
		}
		b.WriteByte(raw[i])
	}
	return b.String()
}

func isHex(c byte) bool {
	return '0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F'
}
