// Package ocr turns uploaded documents into raw text. Text documents are
// decoded directly; PDFs and images go to an OCR model.
package ocr

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"

	"bank-transfer-reconciler/pkg/errors"
)

// Document is an uploaded file
type Document struct {
	Name     string
	MIMEType string
	Data     []byte
}

// NewDocument creates a document, detecting its MIME type from content
func NewDocument(name string, data []byte) Document {
	return Document{Name: name, MIMEType: mimetype.Detect(data).String(), Data: data}
}

// IsText reports whether the document is plain text
func (d Document) IsText() bool {
	return strings.HasPrefix(d.MIMEType, "text/")
}

// TextExtractor returns the raw text of a document. Unreadable input fails
// with an extraction error.
type TextExtractor interface {
	ExtractText(ctx context.Context, doc Document, languageHints []string) (string, error)
}

// PlainText decodes text documents as UTF-8
type PlainText struct{}

// ExtractText returns the document content
func (PlainText) ExtractText(_ context.Context, doc Document, _ []string) (string, error) {
	if len(doc.Data) == 0 {
		return "", errors.ExtractionError(errors.CodeEmptyDocument, doc.Name, nil)
	}
	if !doc.IsText() {
		return "", errors.ExtractionError(errors.CodeUnreadableDocument, doc.Name, nil).
			WithContext("mime_type", doc.MIMEType).
			WithSuggestion("enable OCR to read PDFs and images")
	}
	if !utf8.Valid(doc.Data) {
		return "", errors.ExtractionError(errors.CodeUnreadableDocument, doc.Name, nil).
			WithSuggestion("convert the file to UTF-8")
	}
	return strings.TrimPrefix(string(doc.Data), "\ufeff"), nil
}

// Router sends text documents to Plain and everything else to OCR
type Router struct {
	Plain TextExtractor
	OCR   TextExtractor
}

// NewRouter creates a router. A nil ocr leaves binary documents unreadable.
func NewRouter(ocr TextExtractor) *Router {
	return &Router{Plain: PlainText{}, OCR: ocr}
}

// ExtractText dispatches on the document MIME type
func (r *Router) ExtractText(ctx context.Context, doc Document, languageHints []string) (string, error) {
	if doc.MIMEType == "" {
		doc.MIMEType = mimetype.Detect(doc.Data).String()
	}
	if doc.IsText() || r.OCR == nil {
		return r.Plain.ExtractText(ctx, doc, languageHints)
	}
	return r.OCR.ExtractText(ctx, doc, languageHints)
}
