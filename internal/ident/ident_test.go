package ident

import "testing"

func TestResolve_FromFilename(t *testing.T) {
	cases := []struct {
		declared, file string
		opts           Options
		want           string
	}{
		{"", "my-post.md", Options{}, "my-post"},
		{"", "posts/nested/My Post.md", Options{}, "my-post"},
		{"", "2025-11-09-title.md", Options{StripDatePrefix: true}, "title"},
		{"", "2025-11-09-title.md", Options{StripDatePrefix: false}, "2025-11-09-title"},
		{"", "data.json", Options{}, "data"},
		{"", "snake_case__name.md", Options{}, "snake-case-name"},
		{"   ", "fallback.md", Options{}, "fallback"},
		{"!!!", "fallback.md", Options{}, "fallback"},
		{"Hello World", "ignored.md", Options{}, "hello-world"},
		{"  Crème Brûlée  ", "x.md", Options{}, "creme-brulee"},
		{"Straße Øresund Łódź", "x.md", Options{}, "strasse-oresund-lodz"},
		{"--already--hyphenated--", "x.md", Options{}, "already-hyphenated"},
		{"C++ & Go: a.k.a. fun", "x.md", Options{}, "c-go-aka-fun"},
		{"", "2025-11-09-.md", Options{StripDatePrefix: true}, "2025-11-09"},
	}
	for _, tc := range cases {
		got := Resolve(tc.declared, tc.file, tc.opts)
		if got != tc.want {
			t.Errorf("Resolve(%q, %q, %+v) = %q, want %q", tc.declared, tc.file, tc.opts, got, tc.want)
		}
	}
}

func TestResolve_Idempotent(t *testing.T) {
	inputs := []struct{ declared, file string }{
		{"", "2024-01-01-Über Cool_Post.md"},
		{"Ärger im   Büro", "a.md"},
		{"", "???.md"},
		{"-x-", "b.md"},
		{"ÆØÅ", "c.md"},
	}
	for _, opts := range []Options{{}, {StripDatePrefix: true}} {
		for _, in := range inputs {
			first := Resolve(in.declared, in.file, opts)
			second := Resolve(first, in.file, opts)
			if first != second {
				t.Errorf("not idempotent for %+v: %q then %q", in, first, second)
			}
		}
	}
}

func TestNormalize_OnlyAllowedCharacters(t *testing.T) {
	got := Normalize("Ünïcödé\tTabs\nand spaces 日本語 123")
	for _, r := range got {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-') {
			t.Fatalf("unexpected rune %q in %q", r, got)
		}
	}
	if got != "unicode-tabs-and-spaces-123" {
		t.Errorf("Normalize = %q", got)
	}
}
