package convert

import (
	"strings"
	"testing"
)

func TestConvert_Empty(t *testing.T) {
	got, err := New().Convert("  \n")
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if got != "" {
		t.Errorf("got %q, want empty", got)
	}
}

func TestConvert_HeadingAndBullets(t *testing.T) {
	got, err := New().Convert("<h1>Trip</h1><ul><li>socks</li><li>map</li></ul>")
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if !strings.Contains(got, "# Trip") {
		t.Errorf("missing heading in %q", got)
	}
	if !strings.Contains(got, "* socks") {
		t.Errorf("missing asterisk bullet in %q", got)
	}
	if !strings.HasSuffix(got, "\n") {
		t.Errorf("missing trailing newline in %q", got)
	}
}

func TestConvert_ImageAndRule(t *testing.T) {
	got, err := New().Convert(`<p><img src="Trip_files/map.png" alt="Map"></p><hr><p>end</p>`)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if !strings.Contains(got, "![Map](Trip_files/map.png)") {
		t.Errorf("missing image in %q", got)
	}
	if !strings.Contains(got, "* * *") {
		t.Errorf("missing rule in %q", got)
	}
}
