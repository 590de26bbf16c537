package models

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestContentJSONForms(t *testing.T) {
	msgs := []Message{
		{Role: RoleUser, Content: Text("hi")},
		{Role: RoleUser, Content: Parts(ImagePart("data:image/jpeg;base64,AA"), TextPart("look"))},
		{Role: RoleAssistant, Content: Image([]byte("png"), "image/png")},
	}
	raw, err := json.Marshal(msgs)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `[{"role":"user","content":{"type":"text","text":"hi"}},` +
		`{"role":"user","content":{"type":"parts","parts":[{"type":"image","url":"data:image/jpeg;base64,AA"},{"type":"text","text":"look"}]}},` +
		`{"role":"assistant","content":{"type":"image","media_type":"image/png","data":"cG5n"}}]`
	if string(raw) != want {
		t.Fatalf("unexpected json:\n%s\nwant:\n%s", raw, want)
	}

	var back []Message
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back[1].Content.Kind() != KindParts || len(back[1].Content.PartList()) != 2 {
		t.Fatalf("parts lost: %+v", back[1])
	}
	if data, mt := back[2].Content.ImageData(); string(data) != "png" || mt != "image/png" {
		t.Fatalf("image lost: %q %s", data, mt)
	}
}

func TestContentBareStringDecodesAsText(t *testing.T) {
	var m Message
	if err := json.Unmarshal([]byte(`{"role":"assistant","content":"legacy"}`), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m.Content.Kind() != KindText || m.Content.Text() != "legacy" {
		t.Fatalf("unexpected content %+v", m.Content)
	}
}

func TestTextOnly(t *testing.T) {
	c := Parts(ImagePart("data:image/jpeg;base64,AA"), TextPart("caption"))
	got := c.TextOnly()
	if got.Kind() != KindText || got.Text() != "caption" {
		t.Fatalf("expected collapse to text, got %+v", got)
	}
	if got.HasImage() {
		t.Fatalf("image survived TextOnly")
	}
	if !c.HasImage() {
		t.Fatalf("TextOnly must not modify the receiver")
	}

	multi := Parts(TextPart("a"), ImagePart("x"), TextPart("b")).TextOnly()
	if multi.Kind() != KindParts || len(multi.PartList()) != 2 || multi.PlainText() != "a\nb" {
		t.Fatalf("unexpected multi-text result %+v", multi)
	}
}

func TestMessageValidate(t *testing.T) {
	if err := (Message{Role: "robot", Content: Text("x")}).Validate(); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
	for _, c := range []Content{Text("  "), Parts(), Image(nil, "")} {
		if err := (Message{Role: RoleUser, Content: c}).Validate(); !errors.Is(err, ErrEmptyContent) {
			t.Fatalf("expected ErrEmptyContent for %+v, got %v", c, err)
		}
	}
	if err := (Message{Role: RoleUser, Content: Parts(ImagePart("data:image/jpeg;base64,AA"))}).Validate(); err != nil {
		t.Fatalf("image-only parts should be valid: %v", err)
	}
}

func TestAssistantMayCommitEmptyText(t *testing.T) {
	if err := (Message{Role: RoleAssistant, Content: Text("")}).Validate(); err != nil {
		t.Fatalf("empty assistant text should be accepted: %v", err)
	}
	if err := (Message{Role: RoleAssistant, Content: Image(nil, "")}).Validate(); !errors.Is(err, ErrEmptyContent) {
		t.Fatalf("empty assistant image must still fail, got %v", err)
	}
}

func TestImageContentDefaultsMediaType(t *testing.T) {
	var c Content
	if err := json.Unmarshal([]byte(`{"type":"image","data":"cG5n"}`), &c); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if data, mt := c.ImageData(); string(data) != "png" || mt != "image/png" {
		t.Fatalf("unexpected image %q %q", data, mt)
	}
}
