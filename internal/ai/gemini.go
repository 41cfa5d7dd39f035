package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const defaultGeminiModel = "gemini-2.5-flash"

var geminiTypes = map[string]genai.Type{
	"STRING":  genai.TypeString,
	"NUMBER":  genai.TypeNumber,
	"INTEGER": genai.TypeInteger,
	"BOOLEAN": genai.TypeBoolean,
	"ARRAY":   genai.TypeArray,
	"OBJECT":  genai.TypeObject,
}

// Gemini calls the Gemini API through the genai client.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini model. Extra options are passed to the API
// client after the key.
func NewGemini(ctx context.Context, apiKey, model string, opts ...option.ClientOption) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if model == "" {
		model = defaultGeminiModel
	}
	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Gemini{client: client, model: model}, nil
}

func (g *Gemini) Name() string { return "gemini" }

func (g *Gemini) Generate(ctx context.Context, req Request) (string, error) {
	if len(req.Turns) == 0 {
		return "", fmt.Errorf("gemini: request has no turns")
	}
	m := g.client.GenerativeModel(g.model)
	configureGeminiModel(m, req)

	history, last := geminiContents(req)
	cs := m.StartChat()
	cs.History = history
	resp, err := cs.SendMessage(ctx, last...)
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}
	return geminiText(resp)
}

func configureGeminiModel(m *genai.GenerativeModel, req Request) {
	if req.System != "" {
		m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}
	if req.JSON {
		m.ResponseMIMEType = "application/json"
		if req.Schema != nil {
			m.ResponseSchema = toGeminiSchema(req.Schema)
		}
	}
}

// geminiContents splits the turns into chat history and the parts of the
// final message. The image rides on the final message.
func geminiContents(req Request) ([]*genai.Content, []genai.Part) {
	n := len(req.Turns)
	history := make([]*genai.Content, 0, n-1)
	for _, t := range req.Turns[:n-1] {
		history = append(history, &genai.Content{
			Role:  string(t.Role),
			Parts: []genai.Part{genai.Text(t.Text)},
		})
	}
	var last []genai.Part
	if req.Image != nil {
		last = append(last, genai.Blob{MIMEType: req.Image.MIMEType, Data: req.Image.Data})
	}
	last = append(last, genai.Text(req.Turns[n-1].Text))
	return history, last
}

func geminiText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", ErrEmptyResponse
	}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		var sb strings.Builder
		for _, p := range cand.Content.Parts {
			if text, ok := p.(genai.Text); ok {
				sb.WriteString(string(text))
			}
		}
		if sb.Len() > 0 {
			return sb.String(), nil
		}
	}
	return "", ErrEmptyResponse
}

func toGeminiSchema(s *Schema) *genai.Schema {
	out := &genai.Schema{
		Type:        geminiTypes[s.Type],
		Description: s.Description,
		Enum:        s.Enum,
		Required:    s.Required,
	}
	if len(s.Enum) > 0 {
		out.Format = "enum"
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, p := range s.Properties {
			out.Properties[name] = toGeminiSchema(p)
		}
	}
	return out
}
