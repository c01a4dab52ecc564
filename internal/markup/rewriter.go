// Package markup rewrites converter-produced markdown into Zim wiki syntax.
//
// A Rewriter is a fixed, ordered list of passes. Every pass is a single
// global pattern replace over the whole document and later passes rely on
// what earlier ones leave behind, so the order returned by Passes must not
// change. Passes never fail: text a pattern does not understand is left as is.
package markup

import (
	"strconv"
	"strings"
)

// Defaults applied by New.
const (
	DefaultAssetDir   = "uncategorized"
	DefaultImageWidth = 800
)

// Pass is one named rewrite step.
type Pass struct {
	Name  string
	Apply func(string) string
}

// Rewriter holds the read-only settings used by the link/image pass. It has
// no mutable state and is safe for concurrent use.
type Rewriter struct {
	outputDir  string
	assetDir   string
	imageWidth int
}

// Option configures a Rewriter.
type Option func(*Rewriter)

// WithAssetDir sets the directory, relative to the output root, that image
// paths are anchored under.
func WithAssetDir(dir string) Option {
	return func(r *Rewriter) {
		r.assetDir = strings.Trim(dir, "/")
	}
}

// WithImageWidth sets the display width hint appended to embeds. Zero or a
// negative width drops the hint.
func WithImageWidth(w int) Option {
	return func(r *Rewriter) {
		r.imageWidth = w
	}
}

// New returns a Rewriter that anchors image embeds under outputDir.
func New(outputDir string, opts ...Option) *Rewriter {
	r := &Rewriter{
		outputDir:  strings.TrimRight(outputDir, "/"),
		assetDir:   DefaultAssetDir,
		imageWidth: DefaultImageWidth,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AssetDir is the directory, relative to the output root, that image paths
// are anchored under.
func (r *Rewriter) AssetDir() string { return r.assetDir }

// Passes returns the pipeline in execution order. Bullet repair is split in
// two steps (marker collapse, then indentation).
func (r *Rewriter) Passes() []Pass {
	return []Pass{
		{Name: "headers", Apply: RewriteHeaders},
		{Name: "thematic-breaks", Apply: RewriteThematicBreaks},
		{Name: "bullet-markers", Apply: CollapseBulletMarkers},
		{Name: "bullet-indent", Apply: NormalizeBulletIndent},
		{Name: "link-emphasis", Apply: StripLinkEmphasis},
		{Name: "links", Apply: r.RewriteLinks},
	}
}

// Rewrite runs every pass over doc.
func (r *Rewriter) Rewrite(doc string) string {
	for _, p := range r.Passes() {
		doc = p.Apply(doc)
	}
	return doc
}

func (r *Rewriter) sizeHint() string {
	if r.imageWidth <= 0 {
		return ""
	}
	return "?" + strconv.Itoa(r.imageWidth)
}
