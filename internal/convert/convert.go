// Package convert turns exported HTML notes into markdown.
package convert

import (
	"fmt"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
)

// Converter wraps an html-to-markdown converter configured with the markers
// the markup rewriter expects: "*" bullets, "* * *" rules and "**" strong.
type Converter struct {
	conv *md.Converter
}

// New returns a Converter.
func New() *Converter {
	conv := md.NewConverter("", true, &md.Options{
		HeadingStyle:     "atx",
		HorizontalRule:   "* * *",
		BulletListMarker: "*",
		StrongDelimiter:  "**",
		EmDelimiter:      "_",
	})
	conv.Use(plugin.GitHubFlavored())
	return &Converter{conv: conv}
}

// Convert converts one note. Blank input yields an empty document.
func (c *Converter) Convert(html string) (string, error) {
	if strings.TrimSpace(html) == "" {
		return "", nil
	}
	out, err := c.conv.ConvertString(html)
	if err != nil {
		return "", fmt.Errorf("convert: %w", err)
	}
	if out != "" && !strings.HasSuffix(out, "\n") {
		out += "\n"
	}
	return out, nil
}
