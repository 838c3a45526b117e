// Package extract turns uploaded files into prompt-ready text.
package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/ledongthuc/pdf"
)

const (
	// MaxTextChars caps text and code files
	MaxTextChars = 50000
	// MaxUploadBytes is the largest accepted upload
	MaxUploadBytes = 50 << 20
	// AttachmentChars caps a file attached to a single question
	AttachmentChars = 12000

	truncatedMarker = "\n\n[Truncated...]"

	mimePDF  = "application/pdf"
	mimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

var textExts = map[string]bool{
	".txt": true, ".md": true, ".js": true, ".ts": true, ".tsx": true, ".jsx": true,
	".py": true, ".java": true, ".cpp": true, ".c": true, ".cs": true, ".go": true,
	".rs": true, ".php": true, ".rb": true, ".sh": true, ".yaml": true, ".yml": true,
	".json": true, ".xml": true, ".csv": true, ".toml": true, ".env": true,
	".css": true, ".sql": true,
}

// Kind classifies an upload
type Kind string

const (
	KindPDF    Kind = "pdf"
	KindDOCX   Kind = "docx"
	KindHTML   Kind = "html"
	KindText   Kind = "text"
	KindImage  Kind = "image"
	KindBinary Kind = "binary"
)

// Detect classifies a file by MIME type and extension
func Detect(name, mimeType string) Kind {
	ext := strings.ToLower(filepath.Ext(name))
	if mt, _, err := mime.ParseMediaType(mimeType); err == nil {
		mimeType = mt
	}
	switch {
	case mimeType == mimePDF || ext == ".pdf":
		return KindPDF
	case mimeType == mimeDOCX || ext == ".docx":
		return KindDOCX
	case mimeType == "text/html" || ext == ".html" || ext == ".htm":
		return KindHTML
	case strings.HasPrefix(mimeType, "text/") || textExts[ext]:
		return KindText
	case strings.HasPrefix(mimeType, "image/"):
		return KindImage
	}
	return KindBinary
}

// Extract returns the text of an upload. Failures are reported inside
// the returned text so the upload is still recorded.
func Extract(name, mimeType string, data []byte) string {
	text, err := extract(name, mimeType, data)
	if err != nil {
		return fmt.Sprintf("Failed to analyze %s: %v", name, err)
	}
	return text
}

func extract(name, mimeType string, data []byte) (string, error) {
	switch Detect(name, mimeType) {
	case KindPDF:
		text, err := PDFText(data)
		if err != nil {
			return "", err
		}
		if text == "" {
			return "No readable text found in PDF.", nil
		}
		return text, nil

	case KindDOCX:
		text, err := DOCXText(data)
		if err != nil {
			return "", err
		}
		if text == "" {
			return "No text in DOCX.", nil
		}
		return text, nil

	case KindHTML:
		text, err := HTMLText(data)
		if err != nil {
			return "", err
		}
		return truncateRunes(text, MaxTextChars), nil

	case KindText:
		return truncateRunes(toValidUTF8(data), MaxTextChars), nil

	case KindImage:
		return fmt.Sprintf("[IMAGE FILE]\nName: %s\nSize: %s\n\nThis is an image file. Please describe what you need analyzed.",
			name, sizeKB(len(data))), nil
	}

	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return fmt.Sprintf("[Binary File: %s]\nType: %s\nSize: %s", name, mimeType, sizeKB(len(data))), nil
}

// PDFText extracts the plain text of a PDF
func PDFText(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// DOCXText extracts paragraph text from the word/document.xml part
func DOCXText(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}

	var doc *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			doc = f
			break
		}
	}
	if doc == nil {
		return "", errors.New("open docx: missing word/document.xml")
	}

	rc, err := doc.Open()
	if err != nil {
		return "", fmt.Errorf("open docx body: %w", err)
	}
	defer rc.Close()

	var b strings.Builder
	dec := xml.NewDecoder(rc)
	inText := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse docx body: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				b.WriteByte('\t')
			case "br", "cr":
				b.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}
	return strings.TrimSpace(b.String()), nil
}

// HTMLText returns the visible text of an HTML document
func HTMLText(data []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script, style, noscript").Remove()

	var lines []string
	for _, line := range strings.Split(doc.Text(), "\n") {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n"), nil
}

// ForAttachment trims text for inclusion with a single question
func ForAttachment(text string) string {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= AttachmentChars {
		return text
	}
	return truncateRunes(text, AttachmentChars) + truncatedMarker
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func toValidUTF8(data []byte) string {
	return strings.ToValidUTF8(string(data), "�")
}

func sizeKB(n int) string {
	return fmt.Sprintf("%.1f KB", float64(n)/1024)
}
