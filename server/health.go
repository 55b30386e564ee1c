package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/caffeineduck/runit/cache"
	"github.com/caffeineduck/runit/project"
	"github.com/caffeineduck/runit/sandbox"
)

// Metrics is the body of /metrics.
type Metrics struct {
	Uptime   float64            `json:"uptime_seconds"`
	Requests RequestStats       `json:"requests"`
	Cache    cache.Stats        `json:"cache"`
	Pool     *sandbox.PoolStats `json:"pool,omitempty"`
}

// RequestStats counts invocation requests by outcome.
type RequestStats struct {
	Total       int64 `json:"total"`
	InFlight    int64 `json:"in_flight"`
	Succeeded   int64 `json:"succeeded"`
	Failed      int64 `json:"failed"`
	NotFound    int64 `json:"not_found"`
	Unavailable int64 `json:"unavailable"`
}

func (s *Server) uptime() time.Duration { return time.Since(s.started) }

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":          "ok",
		"uptime":          s.uptime().Round(time.Second).String(),
		"requests_served": s.counters.total.Load(),
	})
}

func (s *Server) ready(c *gin.Context) {
	if s.stopping.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "stopping"})
		return
	}

	desc, err := project.Load(s.cfg.Dir)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "error": err.Error()})
		return
	}
	if err := desc.Validate(s.registry); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"project": gin.H{
			"id":       desc.ID,
			"name":     desc.Name,
			"language": desc.Language,
		},
	})
}

// Stats reports the current counters.
func (s *Server) Stats() Metrics {
	m := Metrics{
		Uptime: s.uptime().Seconds(),
		Requests: RequestStats{
			Total:       s.counters.total.Load(),
			InFlight:    s.inFlight.Load(),
			Succeeded:   s.counters.succeeded.Load(),
			Failed:      s.counters.failed.Load(),
			NotFound:    s.counters.notFound.Load(),
			Unavailable: s.counters.unavailable.Load(),
		},
		Cache: s.cache.Stats(),
	}
	if pool, ok := s.backend.(*sandbox.Pool); ok {
		stats := pool.Stats()
		m.Pool = &stats
	}
	return m
}

func (s *Server) metrics(c *gin.Context) {
	c.JSON(http.StatusOK, s.Stats())
}
