// Package compose turns free text and an optional attachment into the
// outgoing message payload: a plain string, or an ordered list of typed
// content parts when an image is embedded.
package compose

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/askbox/askbox/pkg/media"
)

const (
	PartTypeText     = "text"
	PartTypeImageURL = "image_url"
)

// ImageURL wraps an embeddable image reference, matching the consumer's
// wire shape.
type ImageURL struct {
	URL string `json:"url"`
}

// Part is one element of a multi-part outgoing message.
type Part struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// Message is the composed payload handed to the send callback: either a
// plain string or an ordered part list, never both. The zero Message is an
// empty plain string.
type Message struct {
	Text  string
	Parts []Part
}

// Plain reports whether the message is a bare string rather than parts.
func (m Message) Plain() bool {
	return len(m.Parts) == 0
}

// MarshalJSON emits the wire shape the conversation transport expects: a
// JSON string for plain messages, an array of typed parts otherwise.
func (m Message) MarshalJSON() ([]byte, error) {
	if m.Plain() {
		return json.Marshal(m.Text)
	}
	return json.Marshal(m.Parts)
}

// Template controls how an attached document is fenced into the outgoing
// text. Header must contain one %s verb for the filename. The fencing is
// deliberately configurable; the defaults are what the consuming model is
// prompted to recognize.
type Template struct {
	Header      string
	Footer      string
	Instruction string
}

func DefaultTemplate() Template {
	return Template{
		Header:      "--- Document Content (%s) ---",
		Footer:      "--- End of Document ---",
		Instruction: "Please analyze the above document and answer my question.",
	}
}

// Composer builds outgoing messages. The zero value uses DefaultTemplate.
type Composer struct {
	tmpl Template
}

// New builds a composer, filling unset template fields from
// DefaultTemplate so a caller can override the fencing piecewise.
func New(tmpl Template) *Composer {
	def := DefaultTemplate()
	if tmpl.Header == "" {
		tmpl.Header = def.Header
	}
	if tmpl.Footer == "" {
		tmpl.Footer = def.Footer
	}
	if tmpl.Instruction == "" {
		tmpl.Instruction = def.Instruction
	}
	return &Composer{tmpl: tmpl}
}

// Compose merges text with the active attachment, if any. A document is
// fenced in full (never the preview) into a plain string; an image yields
// a text part followed by an image part. Exclusivity of the two attachment
// kinds is the ingestors' invariant and is not re-checked here.
func (c *Composer) Compose(text string, att media.Attachment) Message {
	switch a := att.(type) {
	case media.DocumentAttachment:
		return Message{Text: c.mergeDocument(text, a)}
	case media.ImageAttachment:
		return Message{Parts: []Part{
			{Type: PartTypeText, Text: text},
			{Type: PartTypeImageURL, ImageURL: &ImageURL{URL: a.EncodedData}},
		}}
	default:
		return Message{Text: text}
	}
}

func (c *Composer) mergeDocument(text string, doc media.DocumentAttachment) string {
	var b strings.Builder
	b.WriteString(text)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, c.tmpl.Header, doc.Filename)
	b.WriteString("\n")
	b.WriteString(doc.FullText)
	b.WriteString("\n")
	b.WriteString(c.tmpl.Footer)
	b.WriteString("\n\n")
	b.WriteString(c.tmpl.Instruction)
	return b.String()
}
