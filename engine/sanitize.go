package engine

import (
	"regexp"
	"strings"
)

type substitution struct {
	re   *regexp.Regexp
	repl string
}

// markdownSubstitutions turn model output into plain text. Order matters:
// links and bold markers go before single-character italics.
var markdownSubstitutions = []substitution{
	{regexp.MustCompile(`\[([^\]]+)\]\([^)]*\)`), "$1"},
	{regexp.MustCompile(`\*\*([^*]+)\*\*`), "$1"},
	{regexp.MustCompile(`__([^_]+)__`), "$1"},
	{regexp.MustCompile(`\*(\S(?:[^*\n]*\S)?)\*`), "$1"},
	{regexp.MustCompile(`(^|\s)_([^_\n]+)_`), "$1$2"},
	{regexp.MustCompile("`+"), ""},
	{regexp.MustCompile(`(?m)^[ \t]*#{1,6}[ \t]*`), ""},
	{regexp.MustCompile(`(?m)^[ \t]*(?:[-*+•]|\d+[.)])[ \t]+`), ""},
	{regexp.MustCompile(`(?i)[ \t]*\(?\b(?:using|with|via)\s+(?:the\s+)?(?:navigate_to|navigation)(?:\s+tool)?\)?`), ""},
	{regexp.MustCompile(`(?i)\bnavigate_to\b`), ""},
	{regexp.MustCompile(`[ \t]{2,}`), " "},
	{regexp.MustCompile(`[ \t]+([.,!?])`), "$1"},
	{regexp.MustCompile(`\n{3,}`), "\n\n"},
}

// StripMarkdown removes markdown artifacts and tool mentions from model text
func StripMarkdown(text string) string {
	for _, s := range markdownSubstitutions {
		text = s.re.ReplaceAllString(text, s.repl)
	}
	return strings.TrimSpace(text)
}
