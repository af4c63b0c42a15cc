package kb_test

import (
	"strings"
	"testing"

	"kbase/internal/domain/kb"
)

// TestPlainTextParser 纯文本原样返回，去首尾空白
func TestPlainTextParser(t *testing.T) {
	p := &kb.PlainTextParser{}
	got, err := p.Parse(strings.NewReader("  hello\nworld \n"), "a.txt")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if got != "hello\nworld" {
		t.Errorf("unexpected output: %q", got)
	}
}

// TestMarkdownParser 去除格式标记，保留文本与代码内容
func TestMarkdownParser(t *testing.T) {
	md := "# Title\n\nSome **bold** and *italic* and `inline` text.\n\n" +
		"[link text](https://example.com) and ![alt](img.png)\n\n" +
		"```go\nfmt.Println(\"kept\")\n```\n\n<div>html stripped</div>"

	p := &kb.MarkdownParser{}
	got, err := p.Parse(strings.NewReader(md), "a.md")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	for _, want := range []string{"Title", "bold", "italic", "inline", "link text", "alt", "kept", "html stripped"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	for _, banned := range []string{"#", "**", "```", "https://example.com", "<div>"} {
		if strings.Contains(got, banned) {
			t.Errorf("output still contains markup %q:\n%s", banned, got)
		}
	}
}

// TestParserRegistryDispatch 按扩展名分发，大小写不敏感
func TestParserRegistryDispatch(t *testing.T) {
	reg := kb.NewParserRegistry()

	cases := map[string]bool{
		"doc.txt":      true,
		"notes.MD":     true,
		"report.pdf":   true,
		"report.docx":  true,
		"data.csv":     true,
		"archive.zip":  false,
		"no_extension": false,
	}
	for filename, ok := range cases {
		_, err := reg.Get(filename)
		if ok && err != nil {
			t.Errorf("expected parser for %q, got error: %v", filename, err)
		}
		if !ok && err == nil {
			t.Errorf("expected no parser for %q", filename)
		}
	}
}

// TestParserRegistryUnsupportedKind 不支持的类型返回 input 类错误
func TestParserRegistryUnsupportedKind(t *testing.T) {
	reg := kb.NewParserRegistry()
	_, err := reg.Get("archive.zip")
	if err == nil {
		t.Fatal("expected error")
	}
	if kb.KindOf(err) != kb.KindInput {
		t.Errorf("expected input kind, got %v", kb.KindOf(err))
	}
}

// TestParserRegistrySupportedTypes 支持类型列表有序稳定
func TestParserRegistrySupportedTypes(t *testing.T) {
	reg := kb.NewParserRegistry()
	types := reg.SupportedTypes()
	for _, want := range []string{".txt", ".md", ".pdf", ".docx"} {
		if !strings.Contains(types, want) {
			t.Errorf("supported types missing %q: %s", want, types)
		}
	}
	if types != reg.SupportedTypes() {
		t.Error("supported types listing not stable")
	}
}
