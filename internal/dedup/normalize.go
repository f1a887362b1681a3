package dedup

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// legalSuffixes lists common legal entity suffixes to strip during company
// name normalization.
var legalSuffixes = []string{
	" LLC", " L.L.C.", " L.L.C",
	" INC", " INC.", " INCORPORATED",
	" CORP", " CORP.", " CORPORATION",
	" LTD", " LTD.", " LIMITED",
	" LP", " L.P.", " L.P",
	" LLP", " L.L.P.", " L.L.P",
	" PC", " P.C.", " P.C",
	" PA", " P.A.", " P.A",
	" CO", " CO.", " COMPANY",
	" PLC", " P.L.C.",
	" NA", " N.A.", " N.A",
	" DBA", " D/B/A",
	" PLLC",
}

var multiSpaceRe = regexp.MustCompile(`\s{2,}`)

// extensionRe marks where a phone extension starts: ext, ext., extension,
// x, or # (case-insensitive). Everything from the separator on is dropped
// before digit extraction so extension digits never pollute the key.
var extensionRe = regexp.MustCompile(`(?i)ext\.?|extension|x|#`)

// NormalizeName standardizes a company name for matching by:
//  1. Trimming whitespace
//  2. Converting to uppercase
//  3. Folding diacritics (Café → CAFE)
//  4. Removing common legal suffixes (LLC, Inc, Corp, etc.)
//  5. Stripping punctuation (commas, periods, dashes, ampersands)
//  6. Collapsing multiple spaces into single spaces
func NormalizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}

	name = strings.ToUpper(foldDiacritics(name))

	// Strip one legal suffix (they are mutually exclusive at the tail).
	for _, suffix := range legalSuffixes {
		if strings.HasSuffix(name, suffix) {
			name = strings.TrimSuffix(name, suffix)
			break
		}
	}

	// Remove common punctuation.
	name = strings.NewReplacer(
		",", "",
		".", "",
		"'", "",
		"\"", "",
		"&", "AND",
		"-", " ",
	).Replace(name)

	// Collapse multiple spaces.
	name = multiSpaceRe.ReplaceAllString(name, " ")
	name = strings.TrimSpace(name)

	return name
}

// foldDiacritics decomposes accented characters and drops the combining
// marks. The transform chain is built per call; chains carry internal
// buffers and are not safe to share.
func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// NormalizePhone reduces a raw provider phone string to a stable 10-digit
// key: the extension suffix is dropped, non-digits are stripped, and a
// leading country code is removed by keeping the last 10 digits. Strings
// with fewer than 10 digits yield ok=false; the caller treats that as "no
// match possible on this tier", never as an error.
func NormalizePhone(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}

	if loc := extensionRe.FindStringIndex(raw); loc != nil {
		raw = raw[:loc[0]]
	}

	var digits strings.Builder
	digits.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}

	key := digits.String()
	if len(key) < 10 {
		return "", false
	}
	return key[len(key)-10:], true
}
