package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ineyio/keyrelay"
)

// health handles GET /health.
func (s *Server) health(c *gin.Context) {
	usage := s.dispatcher.Usage()
	snap := usage.Snapshot()

	status := "ok"
	if usage.AllExhausted() {
		status = "exhausted"
	}

	degraded := 0
	for _, cred := range s.dispatcher.Pool().Credentials() {
		if s.dispatcher.Health().State(cred) == keyrelay.HealthDegraded {
			degraded++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    status,
		"keys":      s.dispatcher.Pool().Size(),
		"exhausted": len(snap.Exhausted),
		"degraded":  degraded,
		"date":      snap.Date,
	})
}

type keyUsage struct {
	Key       string               `json:"key"`
	Count     int64                `json:"count"`
	Exhausted bool                 `json:"exhausted"`
	Health    keyrelay.HealthState `json:"health"`
}

// usage handles GET /v1/usage.
func (s *Server) usage(c *gin.Context) {
	snap := s.dispatcher.Usage().Snapshot()
	exhausted := make(map[string]bool, len(snap.Exhausted))
	for _, k := range snap.Exhausted {
		exhausted[k] = true
	}

	creds := s.dispatcher.Pool().Credentials()
	keys := make([]keyUsage, 0, len(creds))
	var total int64
	for _, cred := range creds {
		n := snap.Counts[cred]
		total += n
		keys = append(keys, keyUsage{
			Key:       keyrelay.MaskCredential(cred),
			Count:     n,
			Exhausted: exhausted[cred],
			Health:    s.dispatcher.Health().State(cred),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"date":  snap.Date,
		"total": total,
		"keys":  keys,
	})
}

// models handles GET /v1/models.
func (s *Server) models(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"object": "list",
		"data": []gin.H{
			{
				"id":       s.defaultModel,
				"object":   "model",
				"created":  time.Now().Unix(),
				"owned_by": "google",
			},
		},
	})
}
