package markup

import (
	"regexp"
	"strings"
)

// ws is horizontal whitespace: \s without the newline.
const ws = `[\t\f\r ]`

var (
	thematicBreakRe = regexp.MustCompile(`(?m)^` + ws + `*\*` + ws + `*\*` + ws + `*\*(\n|\z)`)
	bulletPairRe    = regexp.MustCompile(`\*` + ws + `+?\*`)
	bulletIndentRe  = regexp.MustCompile(`(?m)^` + ws + `*\*`)
	linkEmphasisRe  = regexp.MustCompile(`\*{2}(\[)|\)\*{2}`)
)

// ThematicBreak replaces a "* * *" line.
var ThematicBreak = strings.Repeat("-", 80)

// headerTable maps markdown header prefixes to Zim ones. Zim has more "="
// for shallower headings, hence the inversion. Order matters: the replaces
// run one after another over the whole text.
var headerTable = [...][2]string{
	{"### ", "== "},
	{"## ", "==== "},
	{"# ", "====== "},
}

// RewriteHeaders replaces markdown header markers with Zim ones.
func RewriteHeaders(doc string) string {
	for _, h := range headerTable {
		doc = strings.ReplaceAll(doc, h[0], h[1])
	}
	return doc
}

// RewriteThematicBreaks turns "* * *" lines into an 80 dash rule.
func RewriteThematicBreaks(doc string) string {
	return thematicBreakRe.ReplaceAllStringFunc(doc, func(m string) string {
		if strings.HasSuffix(m, "\n") {
			return ThematicBreak + "\n"
		}
		return ThematicBreak
	})
}

// CollapseBulletMarkers drops the first asterisk of "* *" runs the converter
// emits for emphasised bullet items.
func CollapseBulletMarkers(doc string) string {
	return bulletPairRe.ReplaceAllStringFunc(doc, func(m string) string {
		return m[1:]
	})
}

// NormalizeBulletIndent maps the indentation in front of a line-leading
// asterisk onto Zim's widths.
func NormalizeBulletIndent(doc string) string {
	return bulletIndentRe.ReplaceAllStringFunc(doc, bulletIndent)
}

// bulletIndent holds the widths observed in converter output. The 3, 4, 5
// and 8-10 gaps are deliberate pass-throughs.
func bulletIndent(m string) string {
	switch len(m) - 1 {
	case 2:
		return "*"
	case 6, 7:
		return "    *"
	case 11:
		return "        *"
	default:
		return m
	}
}

// StripLinkEmphasis removes "**" glued to the outside of a link or image.
func StripLinkEmphasis(doc string) string {
	return linkEmphasisRe.ReplaceAllStringFunc(doc, func(m string) string {
		return strings.ReplaceAll(m, "*", "")
	})
}
