package meter_test

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	kr "github.com/ineyio/keyrelay"
	"github.com/ineyio/keyrelay/meter"
)

func TestLogMeter_Events(t *testing.T) {
	var buf bytes.Buffer
	m := meter.NewLogMeter(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	m.OnRoute(kr.RouteEvent{Credential: "...abcd", AttemptNum: 1, Path: "/v1beta/models/m:generateContent"})
	m.OnRoute(kr.RouteEvent{Credential: "...wxyz", Skipped: true})
	m.OnResult(kr.ResultEvent{Credential: "...abcd", AttemptNum: 1, StatusCode: 429, Quota: true})
	m.OnResult(kr.ResultEvent{Credential: "...abcd", AttemptNum: 2, StatusCode: 200, Success: true})
	m.OnStream(kr.StreamEvent{Model: "m", Chunks: 3, Error: errors.New("cut")})

	out := buf.String()
	assert.Contains(t, out, "msg=route")
	assert.Contains(t, out, "msg=skip_exhausted")
	assert.Contains(t, out, "msg=quota_exhausted")
	assert.Contains(t, out, "msg=result ")
	assert.Contains(t, out, "msg=stream_error")
	assert.Contains(t, out, "credential=...abcd")
}

func TestDiscard(t *testing.T) {
	m := meter.Discard
	m.OnRoute(kr.RouteEvent{})
	m.OnResult(kr.ResultEvent{})
	m.OnStream(kr.StreamEvent{})
}
