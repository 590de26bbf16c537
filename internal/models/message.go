package models

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

var (
	ErrInvalidRole  = errors.New("invalid message role")
	ErrEmptyContent = errors.New("message content is empty")
)

// Valid reports whether r is one of the three known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	default:
		return false
	}
}

// Message is one turn of a conversation.
type Message struct {
	Role    Role    `json:"role"`
	Content Content `json:"content"`
}

// Validate checks the role and the content shape. An assistant turn may hold
// empty text: a failed reply still commits whatever was streamed.
func (m Message) Validate() error {
	if !m.Role.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, m.Role)
	}
	if m.Role == RoleAssistant && m.Content.Kind() == KindText {
		return nil
	}
	return m.Content.Validate()
}

// ContentKind tags which variant a Content holds.
type ContentKind string

const (
	KindText  ContentKind = "text"
	KindParts ContentKind = "parts"
	KindImage ContentKind = "image"
)

// PartKind tags one element of a multi-part content.
type PartKind string

const (
	PartText  PartKind = "text"
	PartImage PartKind = "image"
)

type ContentPart struct {
	Kind PartKind `json:"type"`
	Text string   `json:"text,omitempty"`
	URL  string   `json:"url,omitempty"`
}

func TextPart(text string) ContentPart {
	return ContentPart{Kind: PartText, Text: text}
}

func ImagePart(dataURI string) ContentPart {
	return ContentPart{Kind: PartImage, URL: dataURI}
}

// Content is a closed variant: plain text, an ordered list of typed parts, or
// raw bytes of a generated image. The zero value is empty text.
type Content struct {
	kind      ContentKind
	text      string
	parts     []ContentPart
	image     []byte
	mediaType string
}

func Text(text string) Content {
	return Content{kind: KindText, text: text}
}

func Parts(parts ...ContentPart) Content {
	cloned := make([]ContentPart, len(parts))
	copy(cloned, parts)
	return Content{kind: KindParts, parts: cloned}
}

func Image(data []byte, mediaType string) Content {
	cloned := make([]byte, len(data))
	copy(cloned, data)
	if mediaType == "" {
		mediaType = "image/png"
	}
	return Content{kind: KindImage, image: cloned, mediaType: mediaType}
}

// Kind reports the variant; the zero value is text.
func (c Content) Kind() ContentKind {
	if c.kind == "" {
		return KindText
	}
	return c.kind
}

// Text returns the string of a text content and "" for other kinds.
func (c Content) Text() string {
	if c.Kind() != KindText {
		return ""
	}
	return c.text
}

// PartList returns a copy of the parts of a multi-part content.
func (c Content) PartList() []ContentPart {
	if c.Kind() != KindParts {
		return nil
	}
	out := make([]ContentPart, len(c.parts))
	copy(out, c.parts)
	return out
}

// ImageData returns the raw bytes and media type of an image content.
func (c Content) ImageData() ([]byte, string) {
	if c.Kind() != KindImage {
		return nil, ""
	}
	return c.image, c.mediaType
}

// HasImage reports whether the content carries any image, inline or generated.
func (c Content) HasImage() bool {
	switch c.Kind() {
	case KindParts:
		for _, p := range c.parts {
			if p.Kind == PartImage {
				return true
			}
		}
		return false
	case KindImage:
		return true
	default:
		return false
	}
}

// PlainText joins every text fragment of the content.
func (c Content) PlainText() string {
	switch c.Kind() {
	case KindText:
		return c.text
	case KindParts:
		texts := make([]string, 0, len(c.parts))
		for _, p := range c.parts {
			if p.Kind == PartText && p.Text != "" {
				texts = append(texts, p.Text)
			}
		}
		return strings.Join(texts, "\n")
	case KindImage:
		return ""
	default:
		return ""
	}
}

// TextOnly drops image parts. A multi-part content left with a single text
// part collapses to plain text.
func (c Content) TextOnly() Content {
	switch c.Kind() {
	case KindText:
		return c
	case KindParts:
		kept := make([]ContentPart, 0, len(c.parts))
		for _, p := range c.parts {
			if p.Kind == PartText {
				kept = append(kept, p)
			}
		}
		if len(kept) == 1 {
			return Text(kept[0].Text)
		}
		if len(kept) == 0 {
			return Text("")
		}
		return Parts(kept...)
	case KindImage:
		return Text("[generated image]")
	default:
		return c
	}
}

// Validate rejects blank text, empty part lists, unknown part kinds and empty images.
func (c Content) Validate() error {
	switch c.Kind() {
	case KindText:
		if strings.TrimSpace(c.text) == "" {
			return ErrEmptyContent
		}
		return nil
	case KindParts:
		if len(c.parts) == 0 {
			return fmt.Errorf("%w: no parts", ErrEmptyContent)
		}
		for i, p := range c.parts {
			switch p.Kind {
			case PartText:
			case PartImage:
				if p.URL == "" {
					return fmt.Errorf("%w: image part %d has no url", ErrEmptyContent, i)
				}
			default:
				return fmt.Errorf("unknown content part %q", p.Kind)
			}
		}
		return nil
	case KindImage:
		if len(c.image) == 0 {
			return fmt.Errorf("%w: image has no data", ErrEmptyContent)
		}
		return nil
	default:
		return fmt.Errorf("unknown content kind %q", c.kind)
	}
}

type contentJSON struct {
	Type      ContentKind   `json:"type"`
	Text      string        `json:"text,omitempty"`
	Parts     []ContentPart `json:"parts,omitempty"`
	MediaType string        `json:"media_type,omitempty"`
	Data      string        `json:"data,omitempty"`
}

func (c Content) MarshalJSON() ([]byte, error) {
	out := contentJSON{Type: c.Kind()}
	switch c.Kind() {
	case KindText:
		out.Text = c.text
	case KindParts:
		out.Parts = c.parts
	case KindImage:
		out.MediaType = c.mediaType
		out.Data = base64.StdEncoding.EncodeToString(c.image)
	}
	return json.Marshal(out)
}

func (c *Content) UnmarshalJSON(data []byte) error {
	// files written before multi-part support hold a bare string
	var plain string
	if err := json.Unmarshal(data, &plain); err == nil {
		*c = Text(plain)
		return nil
	}
	var in contentJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("decode content: %w", err)
	}
	switch in.Type {
	case KindText, "":
		*c = Text(in.Text)
	case KindParts:
		*c = Content{kind: KindParts, parts: in.Parts}
	case KindImage:
		raw, err := base64.StdEncoding.DecodeString(in.Data)
		if err != nil {
			return fmt.Errorf("decode image content: %w", err)
		}
		*c = Image(raw, in.MediaType)
	default:
		return fmt.Errorf("unknown content kind %q", in.Type)
	}
	return nil
}
