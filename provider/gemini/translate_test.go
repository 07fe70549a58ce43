package gemini_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kr "github.com/ineyio/keyrelay"
	"github.com/ineyio/keyrelay/provider/gemini"
)

func TestBuildRequest_MapsRolesInOrder(t *testing.T) {
	req := kr.ChatRequest{
		Messages: []kr.Message{
			kr.TextMessage("system", "be brief"),
			kr.TextMessage("user", "hi"),
			kr.TextMessage("assistant", "hello"),
			kr.TextMessage("user", "bye"),
		},
	}

	gr, err := gemini.BuildRequest(req)
	require.NoError(t, err)
	require.Len(t, gr.Contents, 4)

	roles := make([]string, 0, 4)
	texts := make([]string, 0, 4)
	for _, c := range gr.Contents {
		roles = append(roles, c.Role)
		require.Len(t, c.Parts, 1)
		texts = append(texts, c.Parts[0].Text)
	}
	assert.Equal(t, []string{"user", "user", "model", "user"}, roles)
	assert.Equal(t, []string{"be brief", "hi", "hello", "bye"}, texts)
	assert.Nil(t, gr.GenerationConfig)
}

func TestBuildRequest_PartsContent(t *testing.T) {
	req := kr.ChatRequest{
		Messages: []kr.Message{{
			Role:    "user",
			Content: json.RawMessage(`[{"type":"text","text":"look at "},{"type":"image_url","image_url":{"url":"x"}},{"type":"text","text":"this"}]`),
		}},
	}

	gr, err := gemini.BuildRequest(req)
	require.NoError(t, err)
	assert.Equal(t, "look at this", gr.Contents[0].Parts[0].Text)
}

func TestBuildRequest_GenerationConfig(t *testing.T) {
	var req kr.ChatRequest
	require.NoError(t, json.Unmarshal([]byte(`{
		"model": "gemini-2.0-flash",
		"messages": [{"role": "user", "content": "hi"}],
		"temperature": 0.2,
		"top_p": 0.9,
		"max_completion_tokens": 64,
		"stop": "END",
		"seed": 7,
		"n": 1,
		"logit_bias": {"1": 2}
	}`), &req))

	gr, err := gemini.BuildRequest(req)
	require.NoError(t, err)
	require.NotNil(t, gr.GenerationConfig)

	gc := gr.GenerationConfig
	assert.InDelta(t, 0.2, *gc.Temperature, 1e-9)
	assert.InDelta(t, 0.9, *gc.TopP, 1e-9)
	assert.Equal(t, 64, *gc.MaxOutputTokens)
	assert.Equal(t, []string{"END"}, gc.StopSequences)
	assert.Equal(t, int64(7), *gc.Seed)
	assert.Equal(t, 1, *gc.CandidateCount)

	body, err := json.Marshal(gr)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"maxOutputTokens":64`)
	assert.NotContains(t, string(body), "logit_bias")
}

func TestBuildRequest_MaxTokensPreferred(t *testing.T) {
	gr, err := gemini.BuildRequest(kr.ChatRequest{
		Messages:            []kr.Message{kr.TextMessage("user", "hi")},
		MaxTokens:           kr.IntPtr(10),
		MaxCompletionTokens: kr.IntPtr(20),
		Stop:                json.RawMessage(`["a","b"]`),
	})
	require.NoError(t, err)
	assert.Equal(t, 10, *gr.GenerationConfig.MaxOutputTokens)
	assert.Equal(t, []string{"a", "b"}, gr.GenerationConfig.StopSequences)
}

func TestBuildRequest_Errors(t *testing.T) {
	tests := []struct {
		name string
		req  kr.ChatRequest
	}{
		{"no messages", kr.ChatRequest{}},
		{"object content", kr.ChatRequest{Messages: []kr.Message{{Role: "user", Content: json.RawMessage(`{"a":1}`)}}}},
		{"numeric stop", kr.ChatRequest{
			Messages: []kr.Message{kr.TextMessage("user", "hi")},
			Stop:     json.RawMessage(`42`),
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := gemini.BuildRequest(tt.req)
			assert.ErrorIs(t, err, kr.ErrTranslation)
		})
	}
}

func TestChatPath(t *testing.T) {
	path, q := gemini.ChatPath("models/gemini-2.0-flash", false)
	assert.Equal(t, "/v1beta/models/gemini-2.0-flash:generateContent", path)
	assert.Empty(t, q)

	path, q = gemini.ChatPath("gemini-2.0-flash", true)
	assert.Equal(t, "/v1beta/models/gemini-2.0-flash:streamGenerateContent", path)
	assert.Equal(t, "sse", q.Get("alt"))
}

func TestToChatResponse(t *testing.T) {
	body := []byte(`{
		"candidates": [{
			"content": {"role": "model", "parts": [{"text": "Par"}, {"text": "is"}]},
			"finishReason": "STOP"
		}],
		"usageMetadata": {"promptTokenCount": 5, "candidatesTokenCount": 2, "totalTokenCount": 7}
	}`)

	resp, err := gemini.ToChatResponse(body, "gemini-2.0-flash")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(resp.ID, "chatcmpl-"))
	assert.Equal(t, "chat.completion", resp.Object)
	assert.Equal(t, "gemini-2.0-flash", resp.Model)
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, "assistant", resp.Choices[0].Message.Role)
	assert.Equal(t, "Paris", resp.Choices[0].Message.Content)
	assert.Equal(t, "stop", resp.Choices[0].FinishReason)
	assert.Equal(t, kr.Usage{PromptTokens: 5, CompletionTokens: 2, TotalTokens: 7}, resp.Usage)
}

func TestToChatResponse_BlockedPrompt(t *testing.T) {
	resp, err := gemini.ToChatResponse([]byte(`{"promptFeedback":{"blockReason":"SAFETY"}}`), "m")
	require.NoError(t, err)
	assert.Equal(t, "", resp.Choices[0].Message.Content)
	assert.Equal(t, "content_filter", resp.Choices[0].FinishReason)
}

func TestToChatResponse_Malformed(t *testing.T) {
	_, err := gemini.ToChatResponse([]byte(`<html>`), "m")
	assert.ErrorIs(t, err, kr.ErrTranslation)
}

func TestMapFinishReason(t *testing.T) {
	assert.Equal(t, "stop", gemini.MapFinishReason("STOP"))
	assert.Equal(t, "length", gemini.MapFinishReason("MAX_TOKENS"))
	assert.Equal(t, "content_filter", gemini.MapFinishReason("SAFETY"))
	assert.Equal(t, "content_filter", gemini.MapFinishReason("RECITATION"))
	assert.Equal(t, "malformed_function_call", gemini.MapFinishReason("MALFORMED_FUNCTION_CALL"))
}
