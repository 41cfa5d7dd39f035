package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIGenerate(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"{\"overview\":\"fine\"}"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	m, err := NewOpenAI("sk-test", "", srv.URL+"/v1")
	require.NoError(t, err)

	out, err := m.Generate(context.Background(), Request{
		System: "sys",
		Turns:  []Turn{{Role: RoleUser, Text: "read this"}},
		Image:  &Image{Data: []byte("img"), MIMEType: "image/png"},
		JSON:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"overview":"fine"}`, out)

	assert.Equal(t, defaultOpenAIModel, got["model"])
	assert.Equal(t, map[string]any{"type": "json_object"}, got["response_format"])
	msgs := got["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	parts := msgs[1].(map[string]any)["content"].([]any)
	require.Len(t, parts, 2)
	img := parts[1].(map[string]any)["image_url"].(map[string]any)
	assert.Equal(t, "data:image/png;base64,aW1n", img["url"])
}

func TestGeminiModelConfig(t *testing.T) {
	m := &genai.GenerativeModel{}
	configureGeminiModel(m, buildScanRequest([]byte("img"), "image/jpeg", testToday))

	require.NotNil(t, m.SystemInstruction)
	assert.Equal(t, "application/json", m.ResponseMIMEType)
	require.NotNil(t, m.ResponseSchema)
	assert.Equal(t, genai.TypeObject, m.ResponseSchema.Type)
	category := m.ResponseSchema.Properties["category"]
	require.NotNil(t, category)
	assert.Equal(t, genai.TypeString, category.Type)
	assert.Equal(t, "enum", category.Format)
	assert.Equal(t, genai.TypeNumber, m.ResponseSchema.Properties["amount"].Type)
}

func TestGeminiContents(t *testing.T) {
	history, last := geminiContents(Request{
		Turns: []Turn{
			{Role: RoleUser, Text: "hi"},
			{Role: RoleModel, Text: "hello"},
			{Role: RoleUser, Text: "read this"},
		},
		Image: &Image{Data: []byte("img"), MIMEType: "image/png"},
	})

	require.Len(t, history, 2)
	assert.Equal(t, "user", history[0].Role)
	assert.Equal(t, "model", history[1].Role)
	assert.Equal(t, []genai.Part{genai.Text("hello")}, history[1].Parts)

	require.Len(t, last, 2)
	assert.Equal(t, genai.Blob{MIMEType: "image/png", Data: []byte("img")}, last[0])
	assert.Equal(t, genai.Text("read this"), last[1])
}

func TestGeminiText(t *testing.T) {
	out, err := geminiText(&genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: nil},
			{Content: &genai.Content{Parts: []genai.Part{genai.Text(`{"title":`), genai.Text(`"Cafe"}`)}}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"title":"Cafe"}`, out)

	_, err = geminiText(&genai.GenerateContentResponse{})
	assert.ErrorIs(t, err, ErrEmptyResponse)
	_, err = geminiText(nil)
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestGeminiRequiresKey(t *testing.T) {
	_, err := NewGemini(context.Background(), "", "")
	assert.Error(t, err)
}
