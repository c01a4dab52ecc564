// Package parser extracts the header, links, embeds and title of a Zim wiki
// page.
package parser

import (
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	wikilinkRe = regexp.MustCompile(`\[\[(.*?)\]\]`)
	embedRe    = regexp.MustCompile(`\{\{(.*?)\}\}`)
)

// headerKey starts the optional header block Zim writes on its own pages.
const headerKey = "Content-Type:"

// Result holds the output of parsing a page.
type Result struct {
	Header map[string]string
	Body   string
	Links  []string
	Embeds []string
	Title  string
}

// Parse extracts header, body, link targets, embedded files and title from
// a page.
func Parse(data []byte) *Result {
	header, body := splitHeader(string(data))
	return &Result{
		Header: header,
		Body:   body,
		Links:  extractLinks(body),
		Embeds: extractEmbeds(body),
		Title:  deriveTitle(body),
	}
}

// splitHeader separates a leading "Key: value" block, ended by a blank line,
// from the body. Pages without one are all body.
func splitHeader(data string) (map[string]string, string) {
	if !strings.HasPrefix(data, headerKey) {
		return nil, data
	}
	idx := strings.Index(data, "\n\n")
	if idx < 0 {
		return nil, data
	}

	var header map[string]string
	if err := yaml.Unmarshal([]byte(data[:idx]), &header); err != nil {
		return nil, data
	}
	return header, strings.TrimLeft(data[idx:], "\n")
}

// extractLinks returns deduplicated link targets. For [[url|{{image}}]] the
// target is the url.
func extractLinks(body string) []string {
	matches := wikilinkRe.FindAllStringSubmatch(body, -1)
	seen := make(map[string]struct{}, len(matches))
	var out []string
	for _, m := range matches {
		target, _, _ := strings.Cut(m[1], "|")
		target = strings.TrimSpace(target)
		if target == "" {
			continue
		}
		if _, ok := seen[target]; ok {
			continue
		}
		seen[target] = struct{}{}
		out = append(out, target)
	}
	return out
}

// extractEmbeds returns the deduplicated file paths of {{path?width|title}}
// embeds, without width hint or title.
func extractEmbeds(body string) []string {
	matches := embedRe.FindAllStringSubmatch(body, -1)
	seen := make(map[string]struct{}, len(matches))
	var out []string
	for _, m := range matches {
		p, _, _ := strings.Cut(m[1], "|")
		if i := strings.LastIndex(p, "?"); i >= 0 {
			p = p[:i]
		}
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// deriveTitle returns the first top-level heading, otherwise empty string.
func deriveTitle(body string) string {
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "====== ") {
			return strings.TrimSpace(strings.TrimRight(trimmed[7:], "="))
		}
	}
	return ""
}
