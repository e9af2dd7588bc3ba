// Package slug turns free-text product names into WooCommerce-style slugs.
package slug

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// Make converts a product name (possibly URL encoded, possibly accented)
// into a slug such as "lancome-tresor-la-nuit-edp".
//
// Accented letters fold to their ASCII base; runes with no ASCII
// decomposition are dropped. Distinct names may map to the same slug.
func Make(name string) string {
	name = unescape(name)
	name = strings.ReplaceAll(name, "&", "")
	name = toASCII(name)
	name = strings.ToLower(name)
	name = nonAlnum.ReplaceAllString(name, "-")
	return strings.Trim(name, "-")
}

// unescape decodes every valid %XX sequence and keeps malformed ones
// literal. Bytes that do not form valid UTF-8 become U+FFFD.
func unescape(s string) string {
	if !strings.Contains(s, "%") {
		return s
	}
	buf := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]) {
			buf = append(buf, unhex(s[i+1])<<4|unhex(s[i+2]))
			i += 2
			continue
		}
		buf = append(buf, s[i])
	}
	return strings.ToValidUTF8(string(buf), "\uFFFD")
}

func isHex(c byte) bool {
	return '0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F'
}

func unhex(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}

func toASCII(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.Predicate(func(r rune) bool {
		return r > unicode.MaxASCII
	})))
	out, _, err := transform.String(t, s)
	if err != nil {
		return ""
	}
	return out
}
