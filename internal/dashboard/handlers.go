package dashboard

import (
	"net/http"
	"time"

	"github.com/araddon/dateparse"
	"github.com/labstack/echo/v4"
	"github.com/montanaflynn/stats"

	"github.com/lanwatch/speedmon/internal/domain"
	"github.com/lanwatch/speedmon/internal/speedtest"
)

// Handler serves the read-only dashboard API over the result store. It
// never participates in the write path.
type Handler struct {
	repo               speedtest.ResultRepository
	autoRefreshSeconds int
}

func NewHandler(repo speedtest.ResultRepository, autoRefreshSeconds int) *Handler {
	return &Handler{repo: repo, autoRefreshSeconds: autoRefreshSeconds}
}

// Register mounts the dashboard routes under prefix.
func (h *Handler) Register(e *echo.Echo, prefix string) {
	g := e.Group(prefix)
	g.GET("/", h.Index)
	g.GET("/api/current", h.GetCurrent)
	g.GET("/api/history", h.GetHistory)
	g.GET("/api/stats", h.GetStatistics)
}

func fail(c echo.Context, status int, code, message string) error {
	return c.JSON(status, map[string]interface{}{
		"code":    code,
		"message": message,
	})
}

// parseRange extracts the required start/end query parameters. Missing or
// unparsable values yield a 400.
func parseRange(c echo.Context) (start, end time.Time, err error) {
	startStr := c.QueryParam("start")
	endStr := c.QueryParam("end")
	if startStr == "" || endStr == "" {
		return start, end, echo.NewHTTPError(http.StatusBadRequest,
			"'start' and 'end' query parameters are required")
	}
	start, err = dateparse.ParseAny(startStr)
	if err != nil {
		return start, end, echo.NewHTTPError(http.StatusBadRequest,
			"invalid datetime for 'start': "+startStr)
	}
	end, err = dateparse.ParseAny(endStr)
	if err != nil {
		return start, end, echo.NewHTTPError(http.StatusBadRequest,
			"invalid datetime for 'end': "+endStr)
	}
	return start, end, nil
}

// GetCurrent returns the most recent result, or JSON null when the store
// is empty.
// @Router /api/current [get]
func (h *Handler) GetCurrent(c echo.Context) error {
	results, err := h.repo.Latest(c.Request().Context(), 1)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "QUERY_FAILED", "Failed to query results")
	}
	if len(results) == 0 {
		return c.JSON(http.StatusOK, nil)
	}
	return c.JSON(http.StatusOK, results[0].View())
}

// GetHistory returns all results in [start, end], ascending by timestamp.
// @Router /api/history [get]
func (h *Handler) GetHistory(c echo.Context) error {
	start, end, err := parseRange(c)
	if err != nil {
		return err
	}
	results, err := h.repo.QueryRange(c.Request().Context(), start, end)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "QUERY_FAILED", "Failed to query results")
	}
	views := make([]domain.ResultView, 0, len(results))
	for _, r := range results {
		views = append(views, r.View())
	}
	return c.JSON(http.StatusOK, views)
}

// GetStatistics returns avg/min/max aggregates over the successful results
// in [start, end], or JSON null when none exist. Totals count every result
// in range, failures included.
// @Router /api/stats [get]
func (h *Handler) GetStatistics(c echo.Context) error {
	start, end, err := parseRange(c)
	if err != nil {
		return err
	}
	results, err := h.repo.QueryRange(c.Request().Context(), start, end)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "QUERY_FAILED", "Failed to query results")
	}

	var downloads, uploads, pings []float64
	failed := 0
	for _, r := range results {
		if !r.Success {
			failed++
			continue
		}
		downloads = append(downloads, r.DownloadMbps)
		uploads = append(uploads, r.UploadMbps)
		pings = append(pings, r.PingMs)
	}
	if len(downloads) == 0 {
		return c.JSON(http.StatusOK, nil)
	}

	agg := domain.Statistics{
		AvgDownloadMbps: mean(downloads),
		AvgUploadMbps:   mean(uploads),
		AvgPingMs:       mean(pings),
		MinDownloadMbps: min(downloads),
		MaxDownloadMbps: max(downloads),
		MinUploadMbps:   min(uploads),
		MaxUploadMbps:   max(uploads),
		MinPingMs:       min(pings),
		MaxPingMs:       max(pings),
		TotalTests:      len(results),
		FailedTests:     failed,
		PeriodStart:     start,
		PeriodEnd:       end,
	}
	return c.JSON(http.StatusOK, agg.View())
}

func mean(data []float64) float64 {
	v, _ := stats.Mean(stats.Float64Data(data))
	return v
}

func min(data []float64) float64 {
	v, _ := stats.Min(stats.Float64Data(data))
	return v
}

func max(data []float64) float64 {
	v, _ := stats.Max(stats.Float64Data(data))
	return v
}
