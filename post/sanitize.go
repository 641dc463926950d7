package post

import (
	"regexp"
	"strings"
)

// sanitizeTags is the fixed set of inline markup tags the channel renderer
// understands. Closers for unbalanced tags are appended in this order.
var sanitizeTags = []string{"b", "i", "code", "pre", "a"}

var (
	openTagRes  = make(map[string]*regexp.Regexp, len(sanitizeTags))
	closeTagRes = make(map[string]*regexp.Regexp, len(sanitizeTags))
)

func init() {
	for _, tag := range sanitizeTags {
		// An opening form is the bare tag or the tag followed by attributes.
		// The \s guard keeps <b> from matching <blockquote> or <br>.
		openTagRes[tag] = regexp.MustCompile(`(?i)<` + tag + `(\s[^>]*)?>`)
		closeTagRes[tag] = regexp.MustCompile(`(?i)</` + tag + `>`)
	}
}

// SanitizeHTML balances the supported inline markup tags in text. For each
// tag name, opening and closing occurrences are counted case-insensitively
// and any missing closers are appended, in canonical lowercase, at the end
// of the string. Already-balanced content is returned unchanged, as is text
// containing no tags at all.
//
// This is a best-effort repair, not a parser: mismatched nesting order and
// excess closing tags are left as-is.
func SanitizeHTML(text string) string {
	if text == "" {
		return text
	}
	var appended strings.Builder
	for _, tag := range sanitizeTags {
		open := len(openTagRes[tag].FindAllStringIndex(text, -1))
		closed := len(closeTagRes[tag].FindAllStringIndex(text, -1))
		for ; open > closed; closed++ {
			appended.WriteString("</" + tag + ">")
		}
	}
	if appended.Len() == 0 {
		return text
	}
	return text + appended.String()
}
