package meter

import (
	"log/slog"

	"github.com/ineyio/keyrelay"
)

// LogMeter logs dispatch events using slog.
type LogMeter struct {
	Logger *slog.Logger
}

var _ keyrelay.Meter = (*LogMeter)(nil)

// NewLogMeter creates a LogMeter with the given logger.
// If logger is nil, slog.Default() is used.
func NewLogMeter(logger *slog.Logger) *LogMeter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMeter{Logger: logger}
}

func (m *LogMeter) OnRoute(e keyrelay.RouteEvent) {
	if e.Skipped {
		m.Logger.Debug("skip_exhausted",
			"credential", e.Credential,
			"path", e.Path,
		)
		return
	}
	m.Logger.Info("route",
		"credential", e.Credential,
		"attempt", e.AttemptNum,
		"path", e.Path,
		"stream", e.Stream,
		"estimated_tokens", e.EstimatedIn,
	)
}

func (m *LogMeter) OnResult(e keyrelay.ResultEvent) {
	switch {
	case e.Quota:
		m.Logger.Warn("quota_exhausted",
			"credential", e.Credential,
			"attempt", e.AttemptNum,
			"status", e.StatusCode,
			"duration_ms", e.Duration.Milliseconds(),
		)
	case e.Error != nil:
		m.Logger.Error("result_error",
			"credential", e.Credential,
			"attempt", e.AttemptNum,
			"duration_ms", e.Duration.Milliseconds(),
			"error", e.Error,
		)
	case e.Success:
		m.Logger.Info("result",
			"credential", e.Credential,
			"attempt", e.AttemptNum,
			"status", e.StatusCode,
			"duration_ms", e.Duration.Milliseconds(),
		)
	default:
		m.Logger.Warn("result_status",
			"credential", e.Credential,
			"attempt", e.AttemptNum,
			"status", e.StatusCode,
			"duration_ms", e.Duration.Milliseconds(),
		)
	}
}

func (m *LogMeter) OnStream(e keyrelay.StreamEvent) {
	if e.Error != nil {
		m.Logger.Warn("stream_error",
			"model", e.Model,
			"chunks", e.Chunks,
			"duration_ms", e.Duration.Milliseconds(),
			"error", e.Error,
		)
		return
	}
	m.Logger.Info("stream",
		"model", e.Model,
		"chunks", e.Chunks,
		"duration_ms", e.Duration.Milliseconds(),
	)
}
