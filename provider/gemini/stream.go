package gemini

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/ineyio/keyrelay"
)

var _ keyrelay.ChunkStream = (*ChatStream)(nil)

// ChatStream converts a Gemini server-sent event stream into chat-completion chunks.
// Each upstream event that carries text becomes exactly one chunk, in arrival order.
// Once the upstream finishes with a finish reason, a final chunk with an empty delta
// and the mapped finish reason is emitted, followed by io.EOF.
type ChatStream struct {
	ctx     context.Context
	body    io.ReadCloser
	reader  *bufio.Reader
	model   string
	id      string
	created int64

	roleSent bool
	finish   string
	usage    *keyrelay.Usage
	done     bool
	err      error
	closed   bool
}

// NewChatStream wraps an upstream streaming body. The caller must Close the stream.
func NewChatStream(ctx context.Context, body io.ReadCloser, model string) *ChatStream {
	return &ChatStream{
		ctx:     ctx,
		body:    body,
		reader:  bufio.NewReader(body),
		model:   model,
		id:      NewCompletionID(),
		created: time.Now().Unix(),
	}
}

// ID returns the completion id shared by every chunk.
func (s *ChatStream) ID() string { return s.id }

// Next returns the next chunk, io.EOF after a completed stream, or a non-EOF error
// when the stream ended abnormally. Errors are sticky.
func (s *ChatStream) Next() (keyrelay.StreamChunk, error) {
	if s.err != nil {
		return keyrelay.StreamChunk{}, s.err
	}
	if s.done {
		return keyrelay.StreamChunk{}, io.EOF
	}

	for {
		if err := s.ctx.Err(); err != nil {
			return s.fail(err)
		}

		data, err := s.readEvent()
		if err != nil {
			if ctxErr := s.ctx.Err(); ctxErr != nil {
				return s.fail(ctxErr)
			}
			if !errors.Is(err, io.EOF) {
				return s.fail(fmt.Errorf("%w: read stream: %w", keyrelay.ErrUpstream, err))
			}
			if s.finish == "" {
				return s.fail(fmt.Errorf("%w: stream ended without a finish reason", keyrelay.ErrUpstream))
			}
			s.done = true
			return s.finalChunk(), nil
		}

		if len(data) == 0 {
			continue
		}
		if !gjson.ValidBytes(data) {
			return s.fail(fmt.Errorf("%w: malformed stream event: %q", keyrelay.ErrTranslation, truncate(data, 200)))
		}

		event := gjson.ParseBytes(data)
		if msg := event.Get("error"); msg.Exists() {
			return s.fail(fmt.Errorf("%w: %s", keyrelay.ErrUpstream, errorMessage(msg)))
		}

		if u := event.Get("usageMetadata"); u.Exists() {
			s.usage = &keyrelay.Usage{
				PromptTokens:     u.Get("promptTokenCount").Int(),
				CompletionTokens: u.Get("candidatesTokenCount").Int(),
				TotalTokens:      u.Get("totalTokenCount").Int(),
			}
		}
		if fr := event.Get("candidates.0.finishReason"); fr.Exists() && fr.String() != "" {
			s.finish = MapFinishReason(fr.String())
		} else if event.Get("promptFeedback.blockReason").String() != "" {
			s.finish = "content_filter"
		}

		var sb strings.Builder
		for _, t := range event.Get("candidates.0.content.parts.#.text").Array() {
			sb.WriteString(t.String())
		}
		if sb.Len() == 0 {
			continue
		}
		return s.chunk(keyrelay.Delta{Content: sb.String()}, nil), nil
	}
}

// readEvent returns the joined data lines of the next event.
// An event without data lines yields an empty slice.
func (s *ChatStream) readEvent() ([]byte, error) {
	var data []byte
	for {
		line, err := s.reader.ReadBytes('\n')
		if len(line) > 0 {
			line = bytes.TrimRight(line, "\r\n")
			switch {
			case len(line) == 0:
				if len(data) > 0 {
					return data, nil
				}
			case bytes.HasPrefix(line, []byte("data:")):
				payload := bytes.TrimPrefix(line[len("data:"):], []byte(" "))
				if len(data) > 0 {
					data = append(data, '\n')
				}
				data = append(data, payload...)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) && len(data) > 0 {
				return data, nil
			}
			return nil, err
		}
	}
}

func (s *ChatStream) chunk(delta keyrelay.Delta, finish *string) keyrelay.StreamChunk {
	if !s.roleSent {
		delta.Role = "assistant"
		s.roleSent = true
	}
	return keyrelay.StreamChunk{
		ID:      s.id,
		Object:  "chat.completion.chunk",
		Created: s.created,
		Model:   s.model,
		Choices: []keyrelay.StreamDelta{
			{Index: 0, Delta: delta, FinishReason: finish},
		},
	}
}

func (s *ChatStream) finalChunk() keyrelay.StreamChunk {
	finish := s.finish
	c := s.chunk(keyrelay.Delta{}, &finish)
	c.Usage = s.usage
	return c
}

func (s *ChatStream) fail(err error) (keyrelay.StreamChunk, error) {
	s.err = err
	return keyrelay.StreamChunk{}, err
}

// Close releases the upstream body. Safe to call more than once.
func (s *ChatStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.body.Close()
}

func errorMessage(v gjson.Result) string {
	if m := v.Get("message"); m.Exists() {
		return m.String()
	}
	return v.Raw
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
