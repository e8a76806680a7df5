package llm

import (
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// PartKind tells which field of a Part is set.
type PartKind int

const (
	PartText PartKind = iota
	PartImage
	PartDocument
)

// Part is one content block of a model request.
type Part struct {
	Kind      PartKind
	Text      string // prompt text, or the extracted text of a document
	Name      string // document name
	MediaType string
	Data      string // base64, for images
}

// TextPart builds a text block.
func TextPart(text string) Part {
	return Part{Kind: PartText, Text: text}
}

// ImagePart builds an inline base64 image block.
func ImagePart(mediaType, data string) Part {
	return Part{Kind: PartImage, MediaType: mediaType, Data: data}
}

// DocumentPart builds a block holding the extracted text of an attached
// document. It is sent as delimited text; only images go inline as data
// URIs.
func DocumentPart(name, text string) Part {
	return Part{Kind: PartDocument, Name: name, Text: text}
}

func (p Part) meaningful() bool {
	if p.Kind == PartImage {
		return p.Data != ""
	}
	return strings.TrimSpace(p.Text) != ""
}

func (p Part) text() string {
	if p.Kind != PartDocument {
		return p.Text
	}
	if p.Name == "" {
		return "<document>\n" + p.Text + "\n</document>"
	}
	return fmt.Sprintf("<document name=%q>\n%s\n</document>", p.Name, p.Text)
}

func hasContent(parts []Part) bool {
	for _, p := range parts {
		if p.meaningful() {
			return true
		}
	}
	return false
}

func dataURI(p Part) string {
	mt := p.MediaType
	if mt == "" {
		mt = "application/octet-stream"
	}
	return "data:" + mt + ";base64," + p.Data
}

// buildMessage turns parts into a single user message. Requests without
// images use plain content; anything with images goes multi-part.
func buildMessage(parts []Part) openai.ChatCompletionMessage {
	textOnly := true
	for _, p := range parts {
		if p.Kind == PartImage {
			textOnly = false
			break
		}
	}

	msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser}
	if textOnly {
		texts := make([]string, 0, len(parts))
		for _, p := range parts {
			if p.meaningful() {
				texts = append(texts, p.text())
			}
		}
		msg.Content = strings.Join(texts, "\n\n")
		return msg
	}

	for _, p := range parts {
		if !p.meaningful() {
			continue
		}
		switch p.Kind {
		case PartText, PartDocument:
			msg.MultiContent = append(msg.MultiContent, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeText,
				Text: p.text(),
			})
		case PartImage:
			msg.MultiContent = append(msg.MultiContent, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL:    dataURI(p),
					Detail: openai.ImageURLDetailAuto,
				},
			})
		}
	}
	return msg
}
