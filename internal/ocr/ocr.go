// Package ocr turns PDF and image payloads into plain text lines.
package ocr

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/menu-cli/internal/config"
)

// TextExtractor extracts text content from PDF documents.
type TextExtractor interface {
	ExtractText(ctx context.Context, pdf []byte) (string, error)
}

// ImageReader reads menu text from a photographed or scanned image.
type ImageReader interface {
	ReadImage(ctx context.Context, image []byte, mimeType string) (string, error)
}

// imagePrompt asks a vision model for transcription only.
const imagePrompt = "Transcribe this restaurant menu image as plain text lines with dish/drink names and prices. " +
	"Keep section headings on their own line. Copy names and prices exactly as printed. " +
	"Do not add, guess or translate anything. Return only the text."

// DefaultTimeout bounds a single extraction or OCR call.
const DefaultTimeout = 60 * time.Second

// CallTimeout converts a configured timeout in seconds, falling back to
// DefaultTimeout when unset.
func CallTimeout(secs int) time.Duration {
	if secs <= 0 {
		return DefaultTimeout
	}
	return time.Duration(secs) * time.Second
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// NewTextExtractor creates a TextExtractor based on config. Every call is
// bounded by ocr.timeout_secs.
func NewTextExtractor(pdf config.PDFConfig, ocr config.OCRConfig) (TextExtractor, error) {
	timeout := CallTimeout(ocr.TimeoutSecs)
	switch pdf.Provider {
	case "pdfcpu", "":
		p := NewPDFCPU()
		p.timeout = timeout
		return p, nil
	case "pdftotext":
		p := NewPdfToText(pdf.PdfToTextPath)
		p.timeout = timeout
		return p, nil
	case "mistral":
		if ocr.MistralKey == "" {
			return nil, eris.New("ocr: mistral provider requires mistral_api_key")
		}
		return newMistral(ocr, timeout), nil
	default:
		return nil, eris.Errorf("ocr: unknown pdf provider %q", pdf.Provider)
	}
}

// NewImageReader creates an ImageReader based on config. It returns nil
// without error when image OCR is disabled. Every call is bounded by
// ocr.timeout_secs.
func NewImageReader(ctx context.Context, cfg config.OCRConfig) (ImageReader, error) {
	timeout := CallTimeout(cfg.TimeoutSecs)
	switch cfg.Provider {
	case "none", "":
		return nil, nil
	case "gemini":
		if cfg.GeminiKey == "" {
			return nil, eris.New("ocr: gemini provider requires gemini_api_key")
		}
		g, err := NewGeminiReader(ctx, cfg.GeminiKey, cfg.GeminiModel)
		if err != nil {
			return nil, err
		}
		g.timeout = timeout
		return g, nil
	case "mistral":
		if cfg.MistralKey == "" {
			return nil, eris.New("ocr: mistral provider requires mistral_api_key")
		}
		return newMistral(cfg, timeout), nil
	default:
		return nil, eris.Errorf("ocr: unknown provider %q", cfg.Provider)
	}
}

func newMistral(cfg config.OCRConfig, timeout time.Duration) *MistralOCR {
	m := NewMistralOCR(cfg.MistralKey, cfg.MistralModel)
	m.timeout = timeout
	m.client.Timeout = timeout
	return m
}
