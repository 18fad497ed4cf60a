package quota

import (
	"path"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const maxSanitizedNameLen = 100

var (
	unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9\-_]`)
	repeatedUnders  = regexp.MustCompile(`_+`)
)

// SanitizeFileName makes a file name safe for use as the last segment of
// an object key. Accents are stripped, anything outside [a-zA-Z0-9-_] turns
// into a single underscore, and the extension is lower-cased.
func SanitizeFileName(name string) string {
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))

	base, ext := name, ""
	if i := strings.LastIndex(name, "."); i > 0 {
		base, ext = name[:i], name[i:]
	}

	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, base)
	if err != nil {
		stripped = base
	}

	clean := unsafeNameChars.ReplaceAllString(stripped, "_")
	clean = repeatedUnders.ReplaceAllString(clean, "_")
	clean = strings.Trim(clean, "_")
	if len(clean) > maxSanitizedNameLen {
		clean = clean[:maxSanitizedNameLen]
	}
	if clean == "" {
		clean = "file"
	}

	return clean + strings.ToLower(ext)
}
