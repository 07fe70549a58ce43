package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ineyio/keyrelay"
)

// response headers not copied back to the client.
var droppedResponseHeaders = map[string]bool{
	"Content-Encoding":  true,
	"Content-Length":    true,
	"Transfer-Encoding": true,
	"Connection":        true,
}

// passthrough forwards native Gemini requests on any path unchanged,
// swapping the placeholder token for a pooled credential.
func (s *Server) passthrough(c *gin.Context) {
	var body []byte
	if c.Request.Body != nil {
		b, err := io.ReadAll(c.Request.Body)
		if err != nil {
			writeErr(c, err)
			return
		}
		if len(b) > 0 {
			body = b
		}
	}

	path := c.Request.URL.Path
	res, err := s.dispatcher.Dispatch(c.Request.Context(), keyrelay.Call{
		Method: c.Request.Method,
		Path:   path,
		Query:  c.Request.URL.Query(),
		Header: c.Request.Header.Clone(),
		Body:   body,
		Stream: strings.Contains(path, ":streamGenerateContent"),
	})
	if err != nil {
		writeErr(c, err)
		return
	}

	resp := res.Response
	defer resp.Body.Close()

	for k, vs := range resp.Header {
		if droppedResponseHeaders[http.CanonicalHeaderKey(k)] {
			continue
		}
		for _, v := range vs {
			c.Writer.Header().Add(k, v)
		}
	}
	c.Status(resp.StatusCode)
	c.Writer.WriteHeaderNow()

	buf := make([]byte, 32<<10)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := c.Writer.Write(buf[:n]); werr != nil {
				return
			}
			c.Writer.Flush()
		}
		if rerr != nil {
			if !errors.Is(rerr, io.EOF) && c.Request.Context().Err() == nil {
				s.logger.Warn("passthrough body ended abnormally", "path", path, "error", rerr)
			}
			return
		}
	}
}
