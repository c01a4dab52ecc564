package markup

import (
	"strings"
	"testing"
)

func TestRewriteLinks_PlainLink(t *testing.T) {
	r := New("/out")
	got := r.RewriteLinks("[My Note](notes/abc.html)")
	if got != "[[notes/abc.html]]" {
		t.Errorf("got %q", got)
	}
}

func TestRewriteLinks_Image(t *testing.T) {
	r := New("/out")
	got := r.RewriteLinks("![Pic](img/1.png)")
	want := "{{/out/uncategorized/img/1.png?800|Pic}}"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRewriteLinks_ImageWithURL(t *testing.T) {
	r := New("/out")
	got := r.RewriteLinks("[![Pic](img/1.png)](http://example.com)")
	want := "[[http://example.com|{{/out/uncategorized/img/1.png?800|Pic}}]]"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRewriteLinks_ImageWithTrailingURL(t *testing.T) {
	r := New("/out")
	got := r.RewriteLinks("![Pic](img/1.png)(http://example.com)")
	want := "[[http://example.com|{{/out/uncategorized/img/1.png?800|Pic}}]]"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRewriteLinks_ParensInPathAreNotAURL(t *testing.T) {
	r := New("/out")
	got := r.RewriteLinks("![Pic](img/shot(1).png)")
	want := "{{/out/uncategorized/img/shot(1).png?800|Pic}}"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRewriteLinks_SanitizesAssetPath(t *testing.T) {
	r := New("/out")
	got := r.RewriteLinks("![Pic](My Note_files/img #1.png)")
	want := "{{/out/uncategorized/My_Note_files/img__1.png?800|Pic}}"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRewriteLinks_DecodesPercentEscapes(t *testing.T) {
	r := New("/out")
	got := r.RewriteLinks("![Pic](My%20Note_files/a.png)")
	want := "{{/out/uncategorized/My_Note_files/a.png?800|Pic}}"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRewriteLinks_EscapedBrackets(t *testing.T) {
	r := New("/out")
	got := r.RewriteLinks(`![Pic \[v2\]](img/1.png)`)
	want := "{{/out/uncategorized/img/1.png?800|Pic [v2]}}"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	got = r.RewriteLinks(`\[![Pic](img/1.png)\](http://example.com)`)
	want = "[[http://example.com|{{/out/uncategorized/img/1.png?800|Pic}}]]"
	if got != want {
		t.Errorf("escaped wrapper: got %q, want %q", got, want)
	}
}

func TestRewriteLinks_RemoteImageNotAnchored(t *testing.T) {
	r := New("/out")
	got := r.RewriteLinks("![logo](https://example.com/logo.png)")
	want := "{{https://example.com/logo.png?800|logo}}"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRewriteLinks_Options(t *testing.T) {
	r := New("/out/", WithAssetDir("assets/"), WithImageWidth(0))
	got := r.RewriteLinks("![Pic](img/1.png)")
	want := "{{/out/assets/img/1.png|Pic}}"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRewriteLinks_SeveralOnOneLine(t *testing.T) {
	r := New("/out")
	got := r.RewriteLinks("see [a](x.html) and [b](y.html).")
	want := "see [[x.html]] and [[y.html]]."
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRewriteLinks_MalformedPassesThrough(t *testing.T) {
	r := New("/out")
	for _, in := range []string{
		"[unclosed](path",
		"![no parens]",
		"[a]\n(b)",
		"plain text",
		"",
	} {
		if got := r.RewriteLinks(in); got != in {
			t.Errorf("%q -> %q, want unchanged", in, got)
		}
	}
}

func TestRewriteLinks_StrayOpenBracketKept(t *testing.T) {
	r := New("/out")
	got := r.RewriteLinks("[![Pic](img/1.png)")
	want := "[{{/out/uncategorized/img/1.png?800|Pic}}"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name                string
		open                string
		image               bool
		wrap, trail, tail   string
		want                Kind
		wantPrefix, wantSuf string
	}{
		{name: "link", want: KindLink},
		{name: "link with stray open", open: "[", want: KindLink, wantPrefix: "["},
		{name: "link ignores trailing url", trail: "u", tail: "(u)", want: KindLink, wantSuf: "(u)"},
		{name: "image", image: true, want: KindImage},
		{name: "wrapped image", open: "[", image: true, wrap: "u", tail: "](u)", want: KindImageWithURL},
		{name: "image with trailing url", image: true, trail: "u", tail: "(u)", want: KindImageWithURL},
		{name: "wrap without open", image: true, wrap: "u", tail: "](u)", want: KindImage, wantSuf: "](u)"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			m := Classify(c.open, c.image, "t", "p", c.wrap, c.trail, c.tail)
			if m.Kind != c.want {
				t.Errorf("kind = %s, want %s", m.Kind, c.want)
			}
			if m.Prefix != c.wantPrefix || m.Suffix != c.wantSuf {
				t.Errorf("prefix/suffix = %q/%q, want %q/%q", m.Prefix, m.Suffix, c.wantPrefix, c.wantSuf)
			}
		})
	}
}

func TestRewrite_Pipeline(t *testing.T) {
	r := New("/out")
	in := strings.Join([]string{
		"# Trip",
		"### Day 1",
		"* * *",
		"  * packed **[list](packing.html)**",
		"      * socks",
		"[![Map](Trip_files/map.png)](http://maps.example.com)",
		"",
	}, "\n")
	want := strings.Join([]string{
		"====== Trip",
		"== Day 1",
		ThematicBreak,
		"* packed [[packing.html]]",
		"    * socks",
		"[[http://maps.example.com|{{/out/uncategorized/Trip_files/map.png?800|Map}}]]",
		"",
	}, "\n")
	if got := r.Rewrite(in); got != want {
		t.Errorf("Rewrite:\n got %q\nwant %q", got, want)
	}
}

func TestPassesOrder(t *testing.T) {
	names := []string{"headers", "thematic-breaks", "bullet-markers", "bullet-indent", "link-emphasis", "links"}
	passes := New("").Passes()
	if len(passes) != len(names) {
		t.Fatalf("len = %d", len(passes))
	}
	for i, p := range passes {
		if p.Name != names[i] {
			t.Errorf("pass %d = %s, want %s", i, p.Name, names[i])
		}
	}
}
