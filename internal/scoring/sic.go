package scoring

import "strings"

// NormalizeSIC normalizes a SIC code to 4 digits with zero-padding, so
// provider variants like "711" and "0711" index the same table entry.
func NormalizeSIC(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return ""
	}
	for len(code) < 4 {
		code = "0" + code
	}
	return code
}
