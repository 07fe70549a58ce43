package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"

	"github.com/ineyio/keyrelay"
	"github.com/ineyio/keyrelay/provider/gemini"
)

// upstreamErrorLimit caps how much of a failed upstream body is read.
const upstreamErrorLimit = 64 << 10

// chatCompletions handles POST /v1/chat/completions.
func (s *Server) chatCompletions(c *gin.Context) {
	var req keyrelay.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeErr(c, err)
			return
		}
		writeError(c, http.StatusBadRequest, "invalid_request_error", "invalid request body: "+err.Error())
		return
	}

	model := req.Model
	if model == "" {
		model = s.defaultModel
	}

	gr, err := gemini.BuildRequest(req)
	if err != nil {
		writeErr(c, err)
		return
	}
	body, err := json.Marshal(gr)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "api_error", "encode upstream request: "+err.Error())
		return
	}

	path, query := gemini.ChatPath(model, req.Stream)
	res, err := s.dispatcher.Dispatch(c.Request.Context(), keyrelay.Call{
		Method:          http.MethodPost,
		Path:            path,
		Query:           query,
		Body:            body,
		Stream:          req.Stream,
		EstimatedTokens: keyrelay.EstimateTokens(req.Messages),
	})
	if err != nil {
		writeErr(c, err)
		return
	}

	resp := res.Response
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		s.relayUpstreamError(c, resp)
		return
	}

	if req.Stream {
		s.streamChat(c, resp, model)
		return
	}

	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		writeErr(c, fmt.Errorf("%w: read response: %w", keyrelay.ErrUpstream, err))
		return
	}
	out, err := gemini.ToChatResponse(raw, model)
	if err != nil {
		writeError(c, http.StatusBadGateway, "upstream_error", err.Error())
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) streamChat(c *gin.Context, resp *keyrelay.Response, model string) {
	ctx := c.Request.Context()
	stream := keyrelay.NewMeteredStream(gemini.NewChatStream(ctx, resp.Body, model), s.meter, model)
	defer stream.Close()

	sw, err := newSSEWriter(c.Writer)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "api_error", err.Error())
		return
	}
	sw.setHeaders()
	c.Status(http.StatusOK)
	c.Writer.Flush()

	for {
		chunk, err := stream.Next()
		if errors.Is(err, io.EOF) {
			_ = sw.writeDone()
			return
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn("chat stream ended abnormally", "model", model, "error", err)
			status, errType := errorStatus(err)
			if errors.Is(err, keyrelay.ErrTranslation) {
				status, errType = http.StatusBadGateway, "upstream_error"
			}
			_ = sw.writeData(keyrelay.ErrorBody{Error: keyrelay.ErrorDetail{
				Message: err.Error(),
				Type:    errType,
				Code:    status,
			}})
			return
		}
		if err := sw.writeData(chunk); err != nil {
			return
		}
	}
}

// relayUpstreamError reports a non-2xx upstream answer with its own status.
func (s *Server) relayUpstreamError(c *gin.Context, resp *keyrelay.Response) {
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, upstreamErrorLimit))

	status := resp.StatusCode
	if status < 400 || status > 599 {
		status = http.StatusBadGateway
	}

	msg := gjson.GetBytes(raw, "error.message").String()
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
		if len(raw) > 0 && !gjson.ValidBytes(raw) {
			msg = string(raw)
		}
	}
	writeError(c, status, "upstream_error", msg)
}
