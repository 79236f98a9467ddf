package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/lanwatch/speedmon/internal/domain"
)

// cannedRepo serves fixed results to the handlers.
type cannedRepo struct {
	results []domain.SpeedTestResult
}

func (r *cannedRepo) Insert(ctx context.Context, result *domain.SpeedTestResult) (int64, error) {
	return 0, errors.New("read-only")
}

func (r *cannedRepo) QueryRange(ctx context.Context, start, end time.Time) ([]domain.SpeedTestResult, error) {
	var out []domain.SpeedTestResult
	for _, res := range r.results {
		if !res.Timestamp.Before(start) && !res.Timestamp.After(end) {
			out = append(out, res)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (r *cannedRepo) Latest(ctx context.Context, n int) ([]domain.SpeedTestResult, error) {
	out := append([]domain.SpeedTestResult(nil), r.results...)
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (r *cannedRepo) AfterID(ctx context.Context, lastID int64) ([]domain.SpeedTestResult, error) {
	return nil, nil
}
func (r *cannedRepo) DeleteOlderThan(ctx context.Context, retentionDays int) (int64, error) {
	return 0, nil
}
func (r *cannedRepo) Count(ctx context.Context) (int64, error) {
	return int64(len(r.results)), nil
}

func serve(repo *cannedRepo, target string) *httptest.ResponseRecorder {
	e := echo.New()
	NewHandler(repo, 60).Register(e, "")
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func successResult(id int64, ts time.Time, download, upload, ping float64) domain.SpeedTestResult {
	server := "srv.example.net:8080"
	return domain.SpeedTestResult{
		ID: id, Timestamp: ts,
		DownloadMbps: download, UploadMbps: upload, PingMs: ping,
		TestServer: &server, Success: true,
	}
}

func failedResult(id int64, ts time.Time) domain.SpeedTestResult {
	msg := "timeout"
	return domain.SpeedTestResult{ID: id, Timestamp: ts, Success: false, ErrorMessage: &msg}
}

func TestHistoryRequiresRangeParams(t *testing.T) {
	repo := &cannedRepo{}
	for _, target := range []string{
		"/api/history",
		"/api/history?start=2024-06-01T00:00:00",
		"/api/history?end=2024-06-01T00:00:00",
		"/api/history?start=garbage&end=2024-06-01T00:00:00",
		"/api/history?start=2024-06-01T00:00:00&end=garbage",
		"/api/stats?start=garbage&end=2024-06-02T00:00:00",
	} {
		rec := serve(repo, target)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: got status %d, want 400", target, rec.Code)
		}
	}
}

func TestHistoryReturnsRoundedAscending(t *testing.T) {
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	repo := &cannedRepo{results: []domain.SpeedTestResult{
		successResult(2, base.Add(12*time.Hour), 88.888, 11.111, 9.99),
		successResult(1, base, 100.456, 20.123, 15.04),
		successResult(3, base.Add(48*time.Hour), 70, 10, 20), // outside range
	}}

	rec := serve(repo, "/api/history?start=2024-06-01T00:00:00&end=2024-06-02T00:00:00")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
	}

	var views []domain.ResultView
	if err := json.Unmarshal(rec.Body.Bytes(), &views); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("expected 2 results, got %d", len(views))
	}
	if views[0].ID != 1 || views[1].ID != 2 {
		t.Fatalf("expected ascending timestamp order, got ids %d,%d", views[0].ID, views[1].ID)
	}
	if views[0].DownloadMbps != 100.46 {
		t.Fatalf("download not rounded to 2 decimals: %v", views[0].DownloadMbps)
	}
	if views[0].PingMs != 15 {
		t.Fatalf("ping not rounded to 1 decimal: %v", views[0].PingMs)
	}
}

func TestStatsAggregatesSuccessfulOnly(t *testing.T) {
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	repo := &cannedRepo{results: []domain.SpeedTestResult{
		successResult(1, base, 100, 20, 10),
		successResult(2, base.Add(time.Hour), 50, 10, 30),
		failedResult(3, base.Add(2*time.Hour)),
	}}

	rec := serve(repo, "/api/stats?start=2024-06-01T00:00:00&end=2024-06-02T00:00:00")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
	}

	var view domain.StatisticsView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.Averages.DownloadMbps != 75 || view.Averages.UploadMbps != 15 || view.Averages.PingMs != 20 {
		t.Fatalf("averages wrong: %+v", view.Averages)
	}
	if view.Download.Min != 50 || view.Download.Max != 100 {
		t.Fatalf("download min/max wrong: %+v", view.Download)
	}
	if view.Ping.Min != 10 || view.Ping.Max != 30 {
		t.Fatalf("ping min/max wrong: %+v", view.Ping)
	}
	if view.Tests.Total != 3 || view.Tests.Failed != 1 {
		t.Fatalf("test counts wrong: %+v", view.Tests)
	}
	if view.Tests.SuccessRate != 66.7 {
		t.Fatalf("success rate %v, want 66.7", view.Tests.SuccessRate)
	}
}

func TestStatsNullWhenNoSuccessfulResults(t *testing.T) {
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	repo := &cannedRepo{results: []domain.SpeedTestResult{
		failedResult(1, base),
	}}

	rec := serve(repo, "/api/stats?start=2024-06-01T00:00:00&end=2024-06-02T00:00:00")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var view *domain.StatisticsView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view != nil {
		t.Fatalf("expected null stats, got %+v", view)
	}
}

func TestCurrentReturnsLatestOrNull(t *testing.T) {
	rec := serve(&cannedRepo{}, "/api/current")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var view *domain.ResultView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view != nil {
		t.Fatalf("expected null on empty store, got %+v", view)
	}

	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	repo := &cannedRepo{results: []domain.SpeedTestResult{
		successResult(1, base, 10, 5, 20),
		successResult(2, base.Add(time.Hour), 30, 15, 25),
	}}
	rec = serve(repo, "/api/current")
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view == nil || view.ID != 2 {
		t.Fatalf("expected most recent result, got %+v", view)
	}
}
