package ocr

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"bank-transfer-reconciler/pkg/errors"
	"bank-transfer-reconciler/pkg/logger"
)

// DefaultModelName is the Gemini model used for transcription
const DefaultModelName = "gemini-2.5-flash"

// GeminiConfig holds OCR model settings
type GeminiConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiExtractor transcribes PDFs and images with a Gemini model
type GeminiExtractor struct {
	models  contentGenerator
	model   string
	timeout time.Duration
	logger  logger.Logger
}

// NewGeminiExtractor creates the extractor. An empty API key lets the client
// read GOOGLE_API_KEY from the environment.
func NewGeminiExtractor(ctx context.Context, config GeminiConfig, log logger.Logger) (*GeminiExtractor, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      config.APIKey,
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return newGeminiExtractor(client.Models, config, log), nil
}

func newGeminiExtractor(models contentGenerator, config GeminiConfig, log logger.Logger) *GeminiExtractor {
	model := config.Model
	if model == "" {
		model = DefaultModelName
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &GeminiExtractor{
		models:  models,
		model:   model,
		timeout: timeout,
		logger:  logger.OrGlobal(log).WithComponent("ocr"),
	}
}

func transcriptionPrompt(languageHints []string) string {
	prompt := "Transcribe all text in the attached document verbatim.\n" +
		"- Keep the original line order, one printed line per output line.\n" +
		"- Keep dates, amounts, currency symbols and reference codes exactly as printed.\n" +
		"- For tables, output one row per line with cells separated by spaces.\n" +
		"- Output plain text only, no Markdown and no commentary.\n"
	if len(languageHints) > 0 {
		prompt += "- The document may be written in: " + strings.Join(languageHints, ", ") + ".\n"
	}
	return prompt
}

// ExtractText sends the document to the model and returns its transcription
func (g *GeminiExtractor) ExtractText(ctx context.Context, doc Document, languageHints []string) (string, error) {
	if len(doc.Data) == 0 {
		return "", errors.ExtractionError(errors.CodeEmptyDocument, doc.Name, nil)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: transcriptionPrompt(languageHints)},
				{
					InlineData: &genai.Blob{
						MIMEType: doc.MIMEType,
						Data:     doc.Data,
					},
				},
			},
		},
	}

	start := time.Now()
	resp, err := g.models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) {
			return "", errors.ExtractionError(errors.CodeExtractorTimeout, doc.Name, err)
		}
		return "", errors.ExtractionError(errors.CodeUnreadableDocument, doc.Name, err)
	}

	text := strings.TrimSpace(stripFences(resp.Text()))
	if text == "" {
		return "", errors.ExtractionError(errors.CodeEmptyDocument, doc.Name, nil)
	}

	g.logger.WithFields(logger.Fields{
		"document": doc.Name,
		"mime":     doc.MIMEType,
		"chars":    len(text),
		"duration": time.Since(start).String(),
	}).Debug("Document transcribed")
	return text, nil
}

// stripFences drops a Markdown code fence the model may wrap its answer in.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if idx := strings.Index(s, "\n"); idx != -1 {
		s = s[idx+1:]
	} else {
		return ""
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	return s
}
