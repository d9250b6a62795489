package ocr

import (
	"context"
	stderrors "errors"
	"strings"
	"testing"

	"google.golang.org/genai"

	"bank-transfer-reconciler/pkg/errors"
	"bank-transfer-reconciler/pkg/logger"
)

type fakeGenerator struct {
	text     string
	err      error
	model    string
	contents []*genai.Content
}

func (f *fakeGenerator) GenerateContent(_ context.Context, model string, contents []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = model
	f.contents = contents
	if f.err != nil {
		return nil, f.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Role: "model", Parts: []*genai.Part{{Text: f.text}}}},
		},
	}, nil
}

func TestPlainText(t *testing.T) {
	tests := []struct {
		name    string
		doc     Document
		want    string
		wantErr errors.ErrorCode
	}{
		{"text", NewDocument("a.txt", []byte("15/03/2024 MOD-1234 150,00")), "15/03/2024 MOD-1234 150,00", ""},
		{"bom", Document{Name: "b.txt", MIMEType: "text/plain", Data: []byte("\ufeffline")}, "line", ""},
		{"empty", Document{Name: "c.txt", MIMEType: "text/plain"}, "", errors.CodeEmptyDocument},
		{"pdf", NewDocument("d.pdf", []byte("%PDF-1.4\n%binary")), "", errors.CodeUnreadableDocument},
		{"invalid utf8", Document{Name: "e.txt", MIMEType: "text/plain", Data: []byte{0xff, 0xfe, 0x41}}, "", errors.CodeUnreadableDocument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PlainText{}.ExtractText(context.Background(), tt.doc, nil)
			if tt.wantErr != "" {
				re, ok := errors.AsReconcilerError(err)
				if !ok || re.Code != tt.wantErr {
					t.Fatalf("expected %s, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGeminiExtractor(t *testing.T) {
	gen := &fakeGenerator{text: "```\nRECU DE VIREMENT\nMOD12345678\n```"}
	g := newGeminiExtractor(gen, GeminiConfig{}, logger.Discard())

	doc := Document{Name: "receipt.jpg", MIMEType: "image/jpeg", Data: []byte{0xff, 0xd8, 0xff}}
	got, err := g.ExtractText(context.Background(), doc, []string{"fr", "ar"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "RECU DE VIREMENT\nMOD12345678" {
		t.Errorf("got %q", got)
	}
	if gen.model != DefaultModelName {
		t.Errorf("model = %q", gen.model)
	}
	parts := gen.contents[0].Parts
	if !strings.Contains(parts[0].Text, "fr, ar") {
		t.Errorf("prompt misses language hints: %q", parts[0].Text)
	}
	if parts[1].InlineData.MIMEType != "image/jpeg" {
		t.Errorf("mime = %q", parts[1].InlineData.MIMEType)
	}
}

func TestGeminiExtractorFailures(t *testing.T) {
	tests := []struct {
		name string
		gen  *fakeGenerator
		want errors.ErrorCode
	}{
		{"model error", &fakeGenerator{err: stderrors.New("400 unsupported")}, errors.CodeUnreadableDocument},
		{"timeout", &fakeGenerator{err: context.DeadlineExceeded}, errors.CodeExtractorTimeout},
		{"empty answer", &fakeGenerator{text: "  "}, errors.CodeEmptyDocument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newGeminiExtractor(tt.gen, GeminiConfig{Model: "custom"}, logger.Discard())
			_, err := g.ExtractText(context.Background(), Document{Name: "x.pdf", MIMEType: "application/pdf", Data: []byte("%PDF")}, nil)
			re, ok := errors.AsReconcilerError(err)
			if !ok || re.Code != tt.want {
				t.Fatalf("expected %s, got %v", tt.want, err)
			}
			if !errors.IsCategory(err, errors.CategoryExtraction) {
				t.Errorf("expected extraction category")
			}
		})
	}
}

func TestRouter(t *testing.T) {
	gen := &fakeGenerator{text: "from image"}
	r := NewRouter(newGeminiExtractor(gen, GeminiConfig{}, logger.Discard()))

	got, err := r.ExtractText(context.Background(), Document{Name: "a.txt", Data: []byte("plain line")}, nil)
	if err != nil || got != "plain line" {
		t.Fatalf("text route: %q %v", got, err)
	}
	if gen.contents != nil {
		t.Error("text document should not reach the model")
	}

	got, err = r.ExtractText(context.Background(), Document{Name: "a.pdf", Data: []byte("%PDF-1.4\n")}, nil)
	if err != nil || got != "from image" {
		t.Fatalf("ocr route: %q %v", got, err)
	}

	_, err = NewRouter(nil).ExtractText(context.Background(), Document{Name: "a.pdf", Data: []byte("%PDF-1.4\n")}, nil)
	if !errors.IsCategory(err, errors.CategoryExtraction) {
		t.Errorf("expected extraction error without OCR, got %v", err)
	}
}
