package epub

import (
	"strings"
	"testing"

	"golang.org/x/text/encoding/charmap"
)

func TestLoadContent_Stylesheets(t *testing.T) {
	xhtmlContent := `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE html>
<html xmlns="http://www.w3.org/1999/xhtml">
<head>
	<title>Chapter 1</title>
	<link rel="stylesheet" href="../css/style.css"/>
	<link rel="stylesheet" type="text/css" href="local.css"/>
	<link rel="alternate stylesheet" href="night.css"/>
	<link rel="icon" href="icon.png"/>
	<link rel="stylesheet" href="https://example.com/remote.css"/>
</head>
<body>
	<h1>Chapter 1</h1>
	<p>This is a sample paragraph.</p>
</body>
</html>`

	content, err := LoadContent("OEBPS/text/chapter1.xhtml", []byte(xhtmlContent))
	if err != nil {
		t.Fatalf("LoadContent failed: %v", err)
	}

	if content.Href != "OEBPS/text/chapter1.xhtml" {
		t.Errorf("Href = %q", content.Href)
	}

	expectedCSS := []string{"OEBPS/css/style.css", "OEBPS/text/local.css"}
	if len(content.CSSLinks) != len(expectedCSS) {
		t.Fatalf("CSSLinks = %v, want %v", content.CSSLinks, expectedCSS)
	}
	for i, expected := range expectedCSS {
		if content.CSSLinks[i] != expected {
			t.Errorf("CSSLinks[%d] = %q, want %q", i, content.CSSLinks[i], expected)
		}
	}

	if got := content.Document.Find("h1").Text(); got != "Chapter 1" {
		t.Errorf("h1 = %q, want %q", got, "Chapter 1")
	}
}

func TestLoadContent_SelfClosingElements(t *testing.T) {
	xhtmlContent := `<html xmlns="http://www.w3.org/1999/xhtml"><body>
<div id="anchor"/>
<p>After the anchor</p>
<a id="note"/><p>Second</p>
<br/><img src="a.png" alt=""/>
</body></html>`

	content, err := LoadContent("text.xhtml", []byte(xhtmlContent))
	if err != nil {
		t.Fatalf("LoadContent failed: %v", err)
	}

	doc := content.Document
	if n := doc.Find("#anchor p").Length(); n != 0 {
		t.Errorf("paragraph nested inside self-closed div (%d matches)", n)
	}
	if n := doc.Find("#note p").Length(); n != 0 {
		t.Errorf("paragraph nested inside self-closed anchor (%d matches)", n)
	}
	if n := doc.Find("body > p").Length(); n != 2 {
		t.Errorf("body > p count = %d, want 2", n)
	}
	if n := doc.Find("img").Length(); n != 1 {
		t.Errorf("img count = %d, want 1", n)
	}
}

func TestExpandSelfClosing(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`<div/>`, `<div></div>`},
		{`<div class="x" />`, `<div class="x"></div>`},
		{`<a id="n1"/>`, `<a id="n1"></a>`},
		{`<br/>`, `<br/>`},
		{`<img src="a/b.png"/>`, `<img src="a/b.png"/>`},
		{`<svg:rect width="1"/>`, `<svg:rect width="1"></svg:rect>`},
		{`<p>text</p>`, `<p>text</p>`},
	}
	for _, tt := range tests {
		if got := ExpandSelfClosing(tt.in); got != tt.want {
			t.Errorf("ExpandSelfClosing(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDecodeText_XMLDeclaredEncoding(t *testing.T) {
	latin1, err := charmap.ISO8859_1.NewEncoder().String(`<?xml version="1.0" encoding="ISO-8859-1"?><p>Café</p>`)
	if err != nil {
		t.Fatal(err)
	}

	got, err := DecodeText([]byte(latin1))
	if err != nil {
		t.Fatalf("DecodeText() error = %v", err)
	}
	if !strings.Contains(got, "Café") {
		t.Fatalf("DecodeText() = %q, want decoded Café", got)
	}
}

func TestDecodeText_UTF8WithBOM(t *testing.T) {
	got, err := DecodeText([]byte("\xef\xbb\xbf<p>naïve</p>"))
	if err != nil {
		t.Fatalf("DecodeText() error = %v", err)
	}
	if got != "<p>naïve</p>" {
		t.Fatalf("DecodeText() = %q", got)
	}
}

func TestDecodeText_UnknownEncoding(t *testing.T) {
	_, err := DecodeText([]byte(`<?xml version="1.0" encoding="x-klingon"?><p/>`))
	if err == nil {
		t.Fatal("DecodeText() error = nil, want unsupported encoding")
	}
}

func TestResolveRef(t *testing.T) {
	tests := []struct {
		base, ref string
		want      string
		ok        bool
	}{
		{"OEBPS/text", "../images/a.png", "OEBPS/images/a.png", true},
		{"OEBPS/text", "ch2.xhtml#sec", "OEBPS/text/ch2.xhtml", true},
		{"OEBPS/text", "ch%202.xhtml", "OEBPS/text/ch 2.xhtml", true},
		{"OEBPS", "/OEBPS/a.xhtml", "OEBPS/a.xhtml", true},
		{"OEBPS", "#local", "", false},
		{"OEBPS", "", "", false},
		{"OEBPS", "http://example.com/a.xhtml", "", false},
		{"OEBPS", "mailto:someone@example.com", "", false},
		{"OEBPS", "//cdn.example.com/a.css", "", false},
	}
	for _, tt := range tests {
		got, ok := ResolveRef(tt.base, tt.ref)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ResolveRef(%q, %q) = %q, %v; want %q, %v", tt.base, tt.ref, got, ok, tt.want, tt.ok)
		}
	}
}
