// Package api serves stored days, metrics, rankings and highlights as JSON.
package api

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Napageneral/dailwatch/internal/bus"
	"github.com/Napageneral/dailwatch/internal/ingest"
	"github.com/Napageneral/dailwatch/internal/metrics"
)

type server struct {
	db  *sql.DB
	now func() time.Time
}

// NewRouter builds the read-only API over db.
func NewRouter(db *sql.DB) *gin.Engine {
	s := &server{db: db, now: time.Now}

	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.health)
	api := r.Group("/api")
	{
		api.GET("/days", s.days)
		api.GET("/periods", s.periods)
		api.GET("/metrics", s.metrics)
		api.GET("/metrics/:legislator_id/issues", s.issues)
		api.GET("/rankings", s.rankings)
		api.GET("/highlights", s.highlights)
		api.GET("/events", s.events)
	}
	return r
}

var (
	errNoPeriod = errors.New("no metrics have been computed yet")
	errStorage  = errors.New("storage error")
)

func (s *server) health(c *gin.Context) {
	if err := s.db.PingContext(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// dateRange reads start/end, defaulting to the trailing week.
func (s *server) dateRange(c *gin.Context) (string, string, error) {
	defStart, defEnd := ingest.DefaultRange(s.now())
	start := c.DefaultQuery("start", defStart)
	end := c.DefaultQuery("end", defEnd)
	if err := metrics.ValidatePeriod(start, end); err != nil {
		return "", "", err
	}
	return start, end, nil
}

// period reads start/end, defaulting to the most recently computed period.
func (s *server) period(c *gin.Context) (string, string, error) {
	start, end := c.Query("start"), c.Query("end")
	if start == "" && end == "" {
		periods, err := metrics.ListPeriods(c.Request.Context(), s.db)
		if err != nil {
			return "", "", fmt.Errorf("%w: %v", errStorage, err)
		}
		if len(periods) == 0 {
			return "", "", errNoPeriod
		}
		return periods[0].Start, periods[0].End, nil
	}
	if err := metrics.ValidatePeriod(start, end); err != nil {
		return "", "", err
	}
	return start, end, nil
}

func (s *server) periodOrAbort(c *gin.Context) (string, string, bool) {
	start, end, err := s.period(c)
	switch {
	case errors.Is(err, errNoPeriod):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return "", "", false
	case errors.Is(err, errStorage):
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return "", "", false
	case err != nil:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", "", false
	}
	return start, end, true
}

func (s *server) days(c *gin.Context) {
	start, end, err := s.dateRange(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	days, err := ingest.ListDays(c.Request.Context(), s.db, c.Query("chamber"), start, end)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if days == nil {
		days = []ingest.Day{}
	}
	c.JSON(http.StatusOK, gin.H{"start": start, "end": end, "days": days})
}

func (s *server) periods(c *gin.Context) {
	periods, err := metrics.ListPeriods(c.Request.Context(), s.db)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if periods == nil {
		periods = []metrics.Period{}
	}
	c.JSON(http.StatusOK, gin.H{"periods": periods})
}

func (s *server) metrics(c *gin.Context) {
	start, end, ok := s.periodOrAbort(c)
	if !ok {
		return
	}
	snaps, err := metrics.LoadSnapshots(c.Request.Context(), s.db, start, end)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if snaps == nil {
		snaps = []metrics.Snapshot{}
	}
	c.JSON(http.StatusOK, gin.H{"start": start, "end": end, "metrics": snaps})
}

func (s *server) issues(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("legislator_id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "legislator_id must be a positive integer"})
		return
	}
	start, end, ok := s.periodOrAbort(c)
	if !ok {
		return
	}
	focus, err := metrics.LoadIssueFocus(c.Request.Context(), s.db, id, start, end)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if focus == nil {
		focus = []metrics.IssueFocus{}
	}
	c.JSON(http.StatusOK, gin.H{"legislator_id": id, "start": start, "end": end, "issues": focus})
}

func (s *server) rankings(c *gin.Context) {
	start, end, ok := s.periodOrAbort(c)
	if !ok {
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil || limit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
		return
	}
	snaps, err := metrics.LoadSnapshots(c.Request.Context(), s.db, start, end)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	ranked := metrics.Rank(snaps)
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	c.JSON(http.StatusOK, gin.H{"start": start, "end": end, "rankings": ranked})
}

func (s *server) highlights(c *gin.Context) {
	start, end, err := s.dateRange(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	hs, err := metrics.HighlightCandidates(c.Request.Context(), s.db, start, end)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if hs == nil {
		hs = []metrics.Highlight{}
	}
	c.JSON(http.StatusOK, gin.H{"start": start, "end": end, "highlights": hs})
}

// events pages the activity log by sequence number.
func (s *server) events(c *gin.Context) {
	after, err := strconv.ParseInt(c.DefaultQuery("after", "0"), 10, 64)
	if err != nil || after < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "after must be a non-negative integer"})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit <= 0 || limit > 1000 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 1000"})
		return
	}
	events, err := bus.List(c.Request.Context(), s.db, after, c.Query("type"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if events == nil {
		events = []bus.Event{}
	}
	next := after
	if len(events) > 0 {
		next = events[len(events)-1].Seq
	}
	c.JSON(http.StatusOK, gin.H{"events": events, "next": next})
}
