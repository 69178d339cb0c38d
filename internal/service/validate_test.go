package service

import (
	"strings"
	"testing"
)

func TestCleanText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain text", "Linear algebra", "Linear algebra"},
		{"trimmed", "  notes  ", "notes"},
		{"tag removed", "<i>Calculus</i>", "Calculus"},
		{"no double space after removed tag", "HTML <div> basics", "HTML basics"},
		{"entity-encoded script", "&lt;script&gt;alert(1)&lt;/script&gt;", ""},
		{"double-encoded tag", "&amp;lt;b&amp;gt;bold", "bold"},
		{"ampersand kept", "Tom &amp; Jerry", "Tom & Jerry"},
		{"literal less-than kept", "a < b", "a < b"},
		{"quotes kept", `say "hi" it's`, `say "hi" it's`},
		{"newlines kept", "line 1\nline 2", "line 1\nline 2"},
		{"markup only", "<b></b>", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cleanText(tt.in); got != tt.want {
				t.Errorf("cleanText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCleanText_NeverYieldsMarkup(t *testing.T) {
	inputs := []string{
		"&lt;img src=x onerror=alert(1)&gt;",
		"&#60;script&#62;x&#60;/script&#62;",
		"&amp;amp;amp;amp;amp;amp;amp;amp;amp;amp;lt;b&amp;gt;",
		"<<script>script>alert(1)<</script>/script>",
	}
	for _, in := range inputs {
		got := cleanText(in)
		if strings.Contains(got, "<script") || strings.Contains(got, "<img") || strings.Contains(got, "<b>") {
			t.Errorf("cleanText(%q) = %q, still holds markup", in, got)
		}
	}
}
