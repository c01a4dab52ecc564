package markup

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/starford/everzim/internal/sanitize"
)

// Kind tags the shape of a link/image match.
type Kind int

const (
	KindLink Kind = iota
	KindImage
	KindImageWithURL
)

func (k Kind) String() string {
	switch k {
	case KindLink:
		return "link"
	case KindImage:
		return "image"
	case KindImageWithURL:
		return "image-with-url"
	default:
		return "unknown"
	}
}

// Match is the classified form of one link/image span. Prefix and Suffix
// hold matched text that is not part of the recognised shape and must be
// written back verbatim around the replacement.
type Match struct {
	Kind   Kind
	Title  string
	Path   string
	URL    string
	Prefix string
	Suffix string
}

// dest allows one level of balanced parentheses so that "a(1).png" stays a
// single destination.
const (
	dest         = `(?:[^()\n]|\([^()\n]*\))*`
	nonEmptyDest = `(?:[^()\n]|\([^()\n]*\))+`
)

// linkRe groups:
//
//	1 "[" opening a link that wraps an image
//	2 "!" image marker
//	3 title, escapes allowed
//	4 destination
//	5 url of the wrapping link, "](url)"
//	6 url written directly after the image, "(url)"
//
// Brackets may carry a stray backslash escape from the converter.
var linkRe = regexp.MustCompile(
	`(\\?\[)?` +
		`(!)?` +
		`\\?\[((?:\\.|[^\[\]\\\n])*)\\?\]` +
		`\((` + dest + `)\)` +
		`(?:\\?\]\((` + nonEmptyDest + `)\)|\((` + nonEmptyDest + `)\))?`,
)

var bracketEscaper = strings.NewReplacer(`\[`, "[", `\]`, "]", `\(`, "(", `\)`, ")")

// Classify decides the shape of a span from its parts. tail is the raw text
// of the span after the destination's closing parenthesis; it is kept as
// Suffix whenever the shape does not consume it.
func Classify(open string, image bool, title, path, wrapURL, trailURL, tail string) Match {
	m := Match{Title: title, Path: path}
	switch {
	case image && open != "" && wrapURL != "":
		m.Kind = KindImageWithURL
		m.URL = wrapURL
	case image && trailURL != "":
		m.Kind = KindImageWithURL
		m.URL = trailURL
		m.Prefix = open
	case image:
		m.Kind = KindImage
		m.Prefix = open
		m.Suffix = tail
	default:
		m.Kind = KindLink
		m.Prefix = open
		m.Suffix = tail
	}
	return m
}

// RewriteLinks turns markdown links into [[destination]] and images into
// {{asset|title}} embeds, optionally wrapped in a [[url|...]] link.
func (r *Rewriter) RewriteLinks(doc string) string {
	return replaceAllSubmatchFunc(linkRe, doc, func(loc []int) string {
		tail := doc[loc[9]+1 : loc[1]]
		m := Classify(
			group(doc, loc, 1),
			group(doc, loc, 2) != "",
			group(doc, loc, 3),
			group(doc, loc, 4),
			group(doc, loc, 5),
			group(doc, loc, 6),
			tail,
		)
		return m.Prefix + r.Render(m) + m.Suffix
	})
}

// Render writes the Zim form of m, without Prefix and Suffix.
func (r *Rewriter) Render(m Match) string {
	switch m.Kind {
	case KindImage:
		return r.embed(m)
	case KindImageWithURL:
		return "[[" + m.URL + "|" + r.embed(m) + "]]"
	default:
		return "[[" + m.Path + "]]"
	}
}

func (r *Rewriter) embed(m Match) string {
	return "{{" + r.AssetPath(m.Path) + "|" + bracketEscaper.Replace(m.Title) + "}}"
}

// AssetPath anchors a note-relative image path under the output root's
// asset directory and appends the width hint. The output root itself is
// left untouched; only the part below it is sanitized. Remote images keep
// their address.
func (r *Rewriter) AssetPath(p string) string {
	p = bracketEscaper.Replace(p)
	if isRemote(p) {
		return p + r.sizeHint()
	}
	if u, err := url.PathUnescape(p); err == nil {
		p = u
	}
	rel := strings.TrimLeft(p, "/")
	if r.assetDir != "" {
		rel = r.assetDir + "/" + rel
	}
	rel = sanitize.Trailing(rel)
	if r.outputDir != "" {
		rel = r.outputDir + "/" + rel
	}
	return rel + r.sizeHint()
}

func isRemote(p string) bool {
	return strings.Contains(p, "://") || strings.HasPrefix(p, "data:")
}

// replaceAllSubmatchFunc is ReplaceAllStringFunc with access to the
// submatch indexes of each match.
func replaceAllSubmatchFunc(re *regexp.Regexp, s string, fn func(loc []int) string) string {
	locs := re.FindAllStringSubmatchIndex(s, -1)
	if locs == nil {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	last := 0
	for _, loc := range locs {
		b.WriteString(s[last:loc[0]])
		b.WriteString(fn(loc))
		last = loc[1]
	}
	b.WriteString(s[last:])
	return b.String()
}

func group(s string, loc []int, i int) string {
	if loc[2*i] < 0 {
		return ""
	}
	return s[loc[2*i]:loc[2*i+1]]
}
