package ocr

import (
	"context"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/rotisserie/eris"
	"google.golang.org/api/option"
)

const defaultGeminiModel = "gemini-2.0-flash"

// GeminiReader reads menu images with a Gemini vision model.
type GeminiReader struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewGeminiReader creates a GeminiReader. Call Close when done.
func NewGeminiReader(ctx context.Context, apiKey, model string) (*GeminiReader, error) {
	if strings.TrimSpace(model) == "" {
		model = defaultGeminiModel
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(strings.TrimSpace(apiKey)))
	if err != nil {
		return nil, eris.Wrap(err, "ocr: create gemini client")
	}
	return &GeminiReader{client: cl, model: model, timeout: DefaultTimeout}, nil
}

// ReadImage transcribes the menu text in image.
func (g *GeminiReader) ReadImage(ctx context.Context, image []byte, mimeType string) (string, error) {
	ctx, cancel := withTimeout(ctx, g.timeout)
	defer cancel()

	m := g.client.GenerativeModel(g.model)
	m.GenerationConfig = genai.GenerationConfig{Temperature: ptrFloat32(0)}
	m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(imagePrompt)}}

	resp, err := m.GenerateContent(ctx,
		genai.Text("Menu image follows."),
		&genai.Blob{MIMEType: mimeType, Data: image},
	)
	if err != nil {
		return "", eris.Wrap(err, "ocr: gemini generate")
	}
	return firstText(resp), nil
}

// Close releases the underlying client.
func (g *GeminiReader) Close() error {
	return g.client.Close()
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, c := range resp.Candidates {
		if c == nil || c.Content == nil {
			continue
		}
		var sb strings.Builder
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				sb.WriteString(string(t))
			}
		}
		if s := strings.TrimSpace(sb.String()); s != "" {
			return s
		}
	}
	return ""
}

func ptrFloat32(v float32) *float32 { return &v }
