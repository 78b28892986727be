// Package api serves persisted NDVI time series over HTTP.
package api

import (
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/forest-guardian/planet-ndvi/internal/timeseries"
	"github.com/gin-gonic/gin"
)

type TimeSeriesHandler struct {
	store timeseries.Store
	aois  []string
}

func NewTimeSeriesHandler(store timeseries.Store, aois []string) *TimeSeriesHandler {
	return &TimeSeriesHandler{store: store, aois: aois}
}

func (h *TimeSeriesHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", h.Ping)
	group := router.Group("/api/v1")
	group.GET("/aois", h.ListAOIs)
	group.GET("/aois/:aoi/timeseries", h.GetTimeSeries)
	group.GET("/aois/:aoi/timeseries/latest", h.GetLatest)
}

// NewRouter returns a gin engine with the time-series routes registered.
func NewRouter(h *TimeSeriesHandler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	h.RegisterRoutes(r)
	return r
}

// Point is a Record as JSON. NaN statistics become null.
type Point struct {
	Timestamp time.Time `json:"timestamp"`
	Mean      *float64  `json:"mean"`
	SD        *float64  `json:"sd"`
}

func toPoint(r timeseries.Record) Point {
	p := Point{Timestamp: r.Timestamp}
	if !math.IsNaN(r.Mean) {
		p.Mean = &r.Mean
	}
	if !math.IsNaN(r.SD) {
		p.SD = &r.SD
	}
	return p
}

func errorResponse(c *gin.Context, status int, title, detail string) {
	c.JSON(status, gin.H{"error": title, "message": detail})
}

func (h *TimeSeriesHandler) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "pong"})
}

func (h *TimeSeriesHandler) ListAOIs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"aois": h.aois})
}

func (h *TimeSeriesHandler) load(c *gin.Context) ([]timeseries.Record, bool) {
	aoi := c.Param("aoi")
	if aoi == "" || strings.ContainsAny(aoi, `/\.`) {
		errorResponse(c, http.StatusBadRequest, "Bad Request", "invalid AOI name")
		return nil, false
	}
	records, err := h.store.Load(c.Request.Context(), aoi)
	if err != nil {
		slog.Error("failed to load time series", "aoi", aoi, "error", err)
		errorResponse(c, http.StatusInternalServerError, "Internal server error", "failed to load time series")
		return nil, false
	}
	if len(records) == 0 {
		errorResponse(c, http.StatusNotFound, "Not Found", "no time series for AOI "+aoi)
		return nil, false
	}
	return records, true
}

func parseBound(c *gin.Context, key string) (time.Time, bool) {
	value := c.Query(key)
	if value == "" {
		return time.Time{}, true
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	errorResponse(c, http.StatusBadRequest, "Bad Request", key+" must be RFC3339 or YYYY-MM-DD")
	return time.Time{}, false
}

// GetTimeSeries returns the series of one AOI, optionally limited by the
// from and to query parameters (inclusive).
func (h *TimeSeriesHandler) GetTimeSeries(c *gin.Context) {
	from, ok := parseBound(c, "from")
	if !ok {
		return
	}
	to, ok := parseBound(c, "to")
	if !ok {
		return
	}
	records, ok := h.load(c)
	if !ok {
		return
	}

	points := make([]Point, 0, len(records))
	for _, r := range records {
		if !from.IsZero() && r.Timestamp.Before(from) {
			continue
		}
		if !to.IsZero() && r.Timestamp.After(to) {
			continue
		}
		points = append(points, toPoint(r))
	}
	c.JSON(http.StatusOK, gin.H{"aoi": c.Param("aoi"), "count": len(points), "points": points})
}

func (h *TimeSeriesHandler) GetLatest(c *gin.Context) {
	records, ok := h.load(c)
	if !ok {
		return
	}
	latest := records[0]
	for _, r := range records[1:] {
		if r.Timestamp.After(latest.Timestamp) {
			latest = r
		}
	}
	c.JSON(http.StatusOK, toPoint(latest))
}
