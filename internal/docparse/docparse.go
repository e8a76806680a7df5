// Package docparse turns uploaded documents into plain text and images.
package docparse

import (
	"archive/zip"
	"bytes"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/pavelanni/assessor/internal/model"
)

const (
	mimeDOCX  = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	mimePDF   = "application/pdf"
	mimePlain = "text/plain"

	maxDocumentXML = 50 << 20
	maxMediaFile   = 10 << 20
	maxPDFText     = 10 << 20
)

var (
	// ErrPDFUnsupported is returned for PDF uploads.
	ErrPDFUnsupported = errors.New("PDF parsing is currently not supported. Please convert your PDF to DOCX format and upload again")
	// ErrUnsupportedType is returned for anything that is not DOCX or plain text.
	ErrUnsupportedType = errors.New("unsupported file type. Please upload a DOCX file")
	// ErrCorruptDocument is returned when a DOCX cannot be read.
	ErrCorruptDocument = errors.New("failed to parse DOCX file")

	errTooLarge = errors.New("file too large")
)

// Document is the parsed content of an upload.
type Document struct {
	Text   string                `json:"text"`
	Images []model.DocumentImage `json:"images"`
}

// Kind classifies an upload by declared MIME type and file name.
type Kind int

const (
	KindUnknown Kind = iota
	KindDOCX
	KindPDF
	KindText
)

// Detect returns the document kind for a file.
func Detect(name, mimeType string) Kind {
	name = strings.ToLower(name)
	mimeType = strings.ToLower(mimeType)
	switch {
	case strings.Contains(mimeType, "wordprocessingml") || strings.HasSuffix(name, ".docx"):
		return KindDOCX
	case strings.Contains(mimeType, "pdf") || strings.HasSuffix(name, ".pdf"):
		return KindPDF
	case strings.HasPrefix(mimeType, mimePlain) || strings.HasSuffix(name, ".txt") || strings.HasSuffix(name, ".md"):
		return KindText
	}
	return KindUnknown
}

// Parse extracts text, and optionally embedded images, from an upload.
func Parse(name, mimeType string, data []byte, withImages bool) (Document, error) {
	switch Detect(name, mimeType) {
	case KindDOCX:
		return parseDOCX(data, withImages)
	case KindPDF:
		return Document{}, ErrPDFUnsupported
	case KindText:
		return Document{Text: string(data)}, nil
	}
	return Document{}, ErrUnsupportedType
}

// TextFromFile extracts whatever text it can from a fetched submission file:
// DOCX, PDF or plain text. Files without extractable text yield an empty
// string.
func TextFromFile(contentType, url string, data []byte) string {
	switch Detect(path.Base(url), contentType) {
	case KindDOCX:
		doc, err := parseDOCX(data, false)
		if err != nil {
			return ""
		}
		return doc.Text
	case KindPDF:
		return pdfText(data)
	case KindText:
		return string(data)
	}
	return ""
}

// pdfText returns the text layer of a PDF, or "" for scanned, encrypted or
// malformed files.
func pdfText(data []byte) (text string) {
	defer func() {
		// The reader panics on some malformed objects.
		if r := recover(); r != nil {
			text = ""
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return ""
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return ""
	}
	raw, err := readLimited(plain, maxPDFText)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(raw))
}

func parseDOCX(data []byte, withImages bool) (Document, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrCorruptDocument, err)
	}

	var doc Document
	var foundBody bool
	var media []*zip.File
	for _, f := range zr.File {
		switch {
		case f.Name == "word/document.xml":
			text, err := readDocumentXML(f)
			if err != nil {
				return Document{}, fmt.Errorf("%w: %v", ErrCorruptDocument, err)
			}
			doc.Text = text
			foundBody = true
		case withImages && strings.HasPrefix(f.Name, "word/media/"):
			media = append(media, f)
		}
	}
	if !foundBody {
		return Document{}, fmt.Errorf("%w: word/document.xml not found", ErrCorruptDocument)
	}

	// Media files are named image1, image2, ... in insertion order.
	sort.Slice(media, func(i, j int) bool { return naturalLess(media[i].Name, media[j].Name) })
	for _, f := range media {
		mt := imageMime(f.Name)
		if mt == "" {
			continue
		}
		raw, err := readZipFile(f, maxMediaFile)
		if err != nil {
			// Oversized or unreadable media is left out rather than truncated.
			continue
		}
		doc.Images = append(doc.Images, model.DocumentImage{
			Base64Data: base64.StdEncoding.EncodeToString(raw),
			MimeType:   mt,
		})
	}
	return doc, nil
}

func readDocumentXML(f *zip.File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	dec := xml.NewDecoder(io.LimitReader(rc, maxDocumentXML))
	var sb strings.Builder
	var para strings.Builder
	inText := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				para.WriteByte('\t')
			case "br", "cr":
				para.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				sb.WriteString(para.String())
				sb.WriteByte('\n')
				para.Reset()
			}
		case xml.CharData:
			if inText {
				para.Write(t)
			}
		}
	}
	sb.WriteString(para.String())
	return strings.TrimRight(sb.String(), "\n"), nil
}

func readZipFile(f *zip.File, limit int64) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return readLimited(rc, limit)
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: over %d bytes", errTooLarge, limit)
	}
	return data, nil
}

func imageMime(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	}
	return ""
}

// naturalLess orders image2 before image10.
func naturalLess(a, b string) bool {
	na, nb := trailingNumber(a), trailingNumber(b)
	if na != nb && na >= 0 && nb >= 0 {
		return na < nb
	}
	return a < b
}

func trailingNumber(name string) int {
	base := strings.TrimSuffix(path.Base(name), path.Ext(name))
	end := len(base)
	start := end
	for start > 0 && base[start-1] >= '0' && base[start-1] <= '9' {
		start--
	}
	if start == end {
		return -1
	}
	n := 0
	for _, c := range base[start:end] {
		n = n*10 + int(c-'0')
	}
	return n
}
