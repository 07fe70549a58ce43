// Package gemini translates between the chat-completion dialect and the Gemini
// generateContent API, and provides the upstream HTTP client for it.
package gemini

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ineyio/keyrelay"
)

// Gemini API types.
type GenerateContentRequest struct {
	Contents         []Content         `json:"contents"`
	GenerationConfig *GenerationConfig `json:"generationConfig,omitempty"`
}

type Content struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

type Part struct {
	Text string `json:"text"`
}

type GenerationConfig struct {
	Temperature      *float64 `json:"temperature,omitempty"`
	MaxOutputTokens  *int     `json:"maxOutputTokens,omitempty"`
	TopP             *float64 `json:"topP,omitempty"`
	StopSequences    []string `json:"stopSequences,omitempty"`
	CandidateCount   *int     `json:"candidateCount,omitempty"`
	PresencePenalty  *float64 `json:"presencePenalty,omitempty"`
	FrequencyPenalty *float64 `json:"frequencyPenalty,omitempty"`
	Seed             *int64   `json:"seed,omitempty"`
}

type generateContentResponse struct {
	Candidates []struct {
		Content      Content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	UsageMetadata struct {
		PromptTokenCount     int64 `json:"promptTokenCount"`
		CandidatesTokenCount int64 `json:"candidatesTokenCount"`
		TotalTokenCount      int64 `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	ModelVersion string `json:"modelVersion"`
}

const (
	roleUser  = "user"
	roleModel = "model"
)

// BuildRequest maps a chat request onto a generateContent request.
// The assistant role becomes the model role; every other role becomes user.
// Unsupported parameters are dropped.
func BuildRequest(req keyrelay.ChatRequest) (GenerateContentRequest, error) {
	if len(req.Messages) == 0 {
		return GenerateContentRequest{}, fmt.Errorf("%w: messages must not be empty", keyrelay.ErrTranslation)
	}

	contents := make([]Content, 0, len(req.Messages))
	for i, m := range req.Messages {
		text, err := messageText(m.Content)
		if err != nil {
			return GenerateContentRequest{}, fmt.Errorf("%w: messages[%d]: %w", keyrelay.ErrTranslation, i, err)
		}

		role := roleUser
		if m.Role == "assistant" {
			role = roleModel
		}
		contents = append(contents, Content{
			Role:  role,
			Parts: []Part{{Text: text}},
		})
	}

	stop, err := stopSequences(req.Stop)
	if err != nil {
		return GenerateContentRequest{}, fmt.Errorf("%w: stop: %w", keyrelay.ErrTranslation, err)
	}

	maxTokens := req.MaxTokens
	if maxTokens == nil {
		maxTokens = req.MaxCompletionTokens
	}

	gc := GenerationConfig{
		Temperature:      req.Temperature,
		MaxOutputTokens:  maxTokens,
		TopP:             req.TopP,
		StopSequences:    stop,
		CandidateCount:   req.N,
		PresencePenalty:  req.PresencePenalty,
		FrequencyPenalty: req.FrequencyPenalty,
		Seed:             req.Seed,
	}

	gr := GenerateContentRequest{Contents: contents}
	if !gc.empty() {
		gr.GenerationConfig = &gc
	}
	return gr, nil
}

func (gc GenerationConfig) empty() bool {
	return gc.Temperature == nil && gc.MaxOutputTokens == nil && gc.TopP == nil &&
		len(gc.StopSequences) == 0 && gc.CandidateCount == nil &&
		gc.PresencePenalty == nil && gc.FrequencyPenalty == nil && gc.Seed == nil
}

// messageText flattens string or typed-part content into plain text.
// Non-text parts are dropped.
func messageText(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	case '[':
		var parts []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		}
		if err := json.Unmarshal(raw, &parts); err != nil {
			return "", err
		}
		var sb strings.Builder
		for _, p := range parts {
			if p.Type == "text" {
				sb.WriteString(p.Text)
			}
		}
		return sb.String(), nil
	default:
		return "", fmt.Errorf("content must be a string or an array of parts")
	}
}

func stopSequences(raw json.RawMessage) ([]string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		return []string{s}, nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// ChatPath returns the upstream path and query for a chat call on model.
func ChatPath(model string, stream bool) (string, url.Values) {
	model = strings.TrimPrefix(model, "models/")
	if stream {
		return "/v1beta/models/" + model + ":streamGenerateContent", url.Values{"alt": {"sse"}}
	}
	return "/v1beta/models/" + model + ":generateContent", url.Values{}
}

// ToChatResponse maps a unary generateContent response body onto a chat completion.
func ToChatResponse(body []byte, model string) (keyrelay.ChatResponse, error) {
	var resp generateContentResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return keyrelay.ChatResponse{}, fmt.Errorf("%w: decode gemini response: %w", keyrelay.ErrTranslation, err)
	}

	content := ""
	finish := "content_filter" // blocked prompt: no candidates
	if len(resp.Candidates) > 0 {
		var sb strings.Builder
		for _, p := range resp.Candidates[0].Content.Parts {
			sb.WriteString(p.Text)
		}
		content = sb.String()
		finish = MapFinishReason(resp.Candidates[0].FinishReason)
	}

	return keyrelay.ChatResponse{
		ID:      NewCompletionID(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []keyrelay.Choice{
			{
				Index:        0,
				Message:      keyrelay.ResponseMessage{Role: "assistant", Content: content},
				FinishReason: finish,
			},
		},
		Usage: keyrelay.Usage{
			PromptTokens:     resp.UsageMetadata.PromptTokenCount,
			CompletionTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      resp.UsageMetadata.TotalTokenCount,
		},
	}, nil
}

// MapFinishReason converts a Gemini finish reason to the chat-completion vocabulary.
func MapFinishReason(reason string) string {
	switch reason {
	case "", "STOP", "FINISH_REASON_UNSPECIFIED":
		return "stop"
	case "MAX_TOKENS":
		return "length"
	case "SAFETY", "RECITATION", "BLOCKLIST", "PROHIBITED_CONTENT", "SPII", "IMAGE_SAFETY":
		return "content_filter"
	default:
		return strings.ToLower(reason)
	}
}

// NewCompletionID returns a fresh chat completion id.
func NewCompletionID() string {
	return "chatcmpl-" + uuid.NewString()
}
