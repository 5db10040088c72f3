package summarize

import (
	"regexp"
	"strings"
)

var (
	headingRe    = regexp.MustCompile(`(?m)^#{1,6}\s*`)
	boldRe       = regexp.MustCompile(`\*\*(.+?)\*\*`)
	boldUndRe    = regexp.MustCompile(`__(.+?)__`)
	italicStarRe = regexp.MustCompile(`\*([^*\n]+)\*`)
	italicUndRe  = regexp.MustCompile(`_([^_\n]+)_`)
	bulletRe     = regexp.MustCompile(`(?m)^(\s*)[*\-+]\s+`)
	codeRe       = regexp.MustCompile("`([^`]*)`")
	strayRe      = regexp.MustCompile(`(?m)^\s*[*#]+\s*$`)
	blankRunRe   = regexp.MustCompile(`\n{3,}`)
)

// Scrub strips Markdown decoration so the text renders cleanly on plain-text
// surfaces. Idempotent: scrubbing scrubbed text changes nothing.
func Scrub(text string) string {
	out := headingRe.ReplaceAllString(text, "")
	out = boldRe.ReplaceAllString(out, "$1")
	out = boldUndRe.ReplaceAllString(out, "$1")
	out = bulletRe.ReplaceAllString(out, "$1• ")
	out = italicStarRe.ReplaceAllString(out, "$1")
	out = italicUndRe.ReplaceAllString(out, "$1")
	out = codeRe.ReplaceAllString(out, "$1")
	out = strayRe.ReplaceAllString(out, "")
	out = blankRunRe.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}
