package common

import "regexp"

// LiteralRegex compiles a case-insensitive expression that matches text literally.
func LiteralRegex(text string) *regexp.Regexp {
	return regexp.MustCompile("(?i)" + regexp.QuoteMeta(text))
}
