package mimeext

import "testing"

func TestExtFromMime(t *testing.T) {
	cases := map[string]string{
		"image/jpeg":               "jpg",
		"image/JPEG":               "jpg",
		"image/webp":               "webp",
		"image/png; charset=utf-8": "png",
		"image/heic":               "heic",
		"image/svg+xml":            "jpg",
		"text/html":                "jpg",
		"":                         "jpg",
	}
	for in, want := range cases {
		if got := ExtFromMime(in); got != want {
			t.Fatalf("%q -> %q (want %q)", in, got, want)
		}
	}
}

func TestExtFromURL(t *testing.T) {
	cases := map[string]string{
		"https://i.ytimg.com/vi/x/maxresdefault.webp":   "webp",
		"https://i.ytimg.com/vi/x/hqdefault.jpeg?sqp=1": "jpg",
		"https://cdn.example.com/thumb.PNG#frag":        "png",
		"https://cdn.example.com/thumb":                 "jpg",
		"https://cdn.example.com/thumb.php?id=1":        "jpg",
	}
	for in, want := range cases {
		if got := ExtFromURL(in); got != want {
			t.Fatalf("%q -> %q (want %q)", in, got, want)
		}
	}
}
