// Package ident derives canonical, URL-safe item identifiers from declared
// slugs and file names.
package ident

import (
	"path"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Options controls filename-derived identifiers.
type Options struct {
	// StripDatePrefix removes a leading YYYY-MM-DD- from file names.
	StripDatePrefix bool
}

var datePrefixRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}-`)

// transliterations covers Latin letters that do not decompose into a base
// letter plus combining marks. The table is fixed and locale-independent.
var transliterations = strings.NewReplacer(
	"ß", "ss",
	"æ", "ae",
	"œ", "oe",
	"ø", "o",
	"ł", "l",
	"đ", "d",
	"ð", "d",
	"þ", "th",
	"ħ", "h",
	"ı", "i",
)

// Resolve returns the identifier for an item. A declared slug wins when it is
// non-empty after trimming and normalises to something non-empty; otherwise
// the file name is used with its extension (and optionally a date prefix)
// removed. The result is empty only when neither source yields any allowed
// characters.
func Resolve(declared, filename string, opts Options) string {
	if d := strings.TrimSpace(declared); d != "" {
		if id := Normalize(d); id != "" {
			return id
		}
	}
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	base = strings.TrimSuffix(base, path.Ext(base))
	if opts.StripDatePrefix {
		if stripped := datePrefixRe.ReplaceAllString(base, ""); stripped != "" {
			base = stripped
		}
	}
	return Normalize(base)
}

// Normalize maps s onto [a-z0-9-]: lowercase, whitespace and underscore runs
// become single hyphens, diacritics are stripped, other characters dropped,
// hyphen runs collapsed and leading/trailing hyphens trimmed. Normalize is
// idempotent.
func Normalize(s string) string {
	s = transliterations.Replace(strings.ToLower(s))
	s = stripMarks(s)

	var b strings.Builder
	b.Grow(len(s))
	pendingHyphen := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
		case r == '-' || r == '_' || unicode.IsSpace(r):
			pendingHyphen = true
		}
	}
	return b.String()
}

func stripMarks(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
