package speedtest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/lanwatch/speedmon/internal/domain"
)

var testDBSeq int

func openTestRepo(t *testing.T) *GormResultRepository {
	t.Helper()
	testDBSeq++
	dsn := fmt.Sprintf("file:repo_test_%d_%d?mode=memory&cache=shared", time.Now().UnixNano(), testDBSeq)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.Migrator().AutoMigrate(domain.Tables...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewGormResultRepository(db)
}

func resultAt(ts time.Time, download float64) *domain.SpeedTestResult {
	server := "test-server:8080"
	return &domain.SpeedTestResult{
		Timestamp:    ts,
		DownloadMbps: download,
		UploadMbps:   download / 10,
		PingMs:       12.3,
		TestServer:   &server,
		Success:      true,
	}
}

func mustInsert(t *testing.T, repo *GormResultRepository, r *domain.SpeedTestResult) int64 {
	t.Helper()
	id, err := repo.Insert(context.Background(), r)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	return id
}

func TestInsertAssignsMonotonicIDs(t *testing.T) {
	repo := openTestRepo(t)
	ts := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	var last int64
	for i := 0; i < 5; i++ {
		id := mustInsert(t, repo, resultAt(ts.Add(time.Duration(i)*time.Minute), 100))
		if id <= last {
			t.Fatalf("expected monotonically increasing ids, got %d after %d", id, last)
		}
		last = id
	}

	count, err := repo.Count(context.Background())
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 5 {
		t.Fatalf("expected 5 rows, got %d", count)
	}
}

func TestInsertThenLatestRoundTrips(t *testing.T) {
	repo := openTestRepo(t)
	ts := time.Date(2024, 6, 1, 12, 30, 0, 0, time.UTC)
	in := resultAt(ts, 87.654321)
	in.UploadMbps = 12.345678
	in.PingMs = 23.456789
	mustInsert(t, repo, in)

	out, err := repo.Latest(context.Background(), 1)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 row, got %d", len(out))
	}
	got := out[0]
	if !got.Timestamp.Equal(ts) {
		t.Fatalf("timestamp mismatch: got %v want %v", got.Timestamp, ts)
	}
	approx := func(a, b float64) bool { d := a - b; return d < 1e-6 && d > -1e-6 }
	if !approx(got.DownloadMbps, in.DownloadMbps) || !approx(got.UploadMbps, in.UploadMbps) || !approx(got.PingMs, in.PingMs) {
		t.Fatalf("metrics mismatch: got %+v", got)
	}
	if got.TestServer == nil || *got.TestServer != *in.TestServer {
		t.Fatalf("server label mismatch: got %v", got.TestServer)
	}
}

func TestLatestLargerThanRowCountReturnsAll(t *testing.T) {
	repo := openTestRepo(t)
	ts := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	mustInsert(t, repo, resultAt(ts, 10))
	mustInsert(t, repo, resultAt(ts.Add(time.Hour), 20))

	out, err := repo.Latest(context.Background(), 100)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(out))
	}
	if !out[0].Timestamp.After(out[1].Timestamp) {
		t.Fatalf("expected descending timestamp order, got %v then %v", out[0].Timestamp, out[1].Timestamp)
	}
}

func TestQueryRangeInclusiveBounds(t *testing.T) {
	repo := openTestRepo(t)
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	mustInsert(t, repo, resultAt(base, 1))                    // 2024-06-01T00:00
	mustInsert(t, repo, resultAt(base.Add(12*time.Hour), 2))  // 2024-06-01T12:00
	mustInsert(t, repo, resultAt(base.Add(48*time.Hour), 3))  // 2024-06-03T00:00

	out, err := repo.QueryRange(context.Background(), base, base.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("query range: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 rows in range, got %d", len(out))
	}
	if out[0].DownloadMbps != 1 || out[1].DownloadMbps != 2 {
		t.Fatalf("expected ascending rows 1,2 got %v,%v", out[0].DownloadMbps, out[1].DownloadMbps)
	}
}

func TestQueryRangeEmptyWindowReturnsEmpty(t *testing.T) {
	repo := openTestRepo(t)
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	mustInsert(t, repo, resultAt(base, 1))

	out, err := repo.QueryRange(context.Background(), base.Add(time.Hour), base.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("query range: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected no rows, got %d", len(out))
	}
}

func TestAfterIDOrdersByIDNotTimestamp(t *testing.T) {
	repo := openTestRepo(t)
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	// Insert with timestamps out of insertion order, simulating clock skew.
	id1 := mustInsert(t, repo, resultAt(base.Add(2*time.Hour), 1))
	id2 := mustInsert(t, repo, resultAt(base, 2))
	id3 := mustInsert(t, repo, resultAt(base.Add(time.Hour), 3))

	out, err := repo.AfterID(context.Background(), id1)
	if err != nil {
		t.Fatalf("after id: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 rows after id %d, got %d", id1, len(out))
	}
	if out[0].ID != id2 || out[1].ID != id3 {
		t.Fatalf("expected id order %d,%d got %d,%d", id2, id3, out[0].ID, out[1].ID)
	}

	out, err = repo.AfterID(context.Background(), id3)
	if err != nil {
		t.Fatalf("after id: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected no rows after last id, got %d", len(out))
	}
}

func TestCleanupZeroRetentionDeletesNothing(t *testing.T) {
	repo := openTestRepo(t)
	base := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	mustInsert(t, repo, resultAt(base, 1))
	mustInsert(t, repo, resultAt(base.AddDate(0, 0, 1), 2))

	for _, days := range []int{0, -1} {
		deleted, err := repo.DeleteOlderThan(context.Background(), days)
		if err != nil {
			t.Fatalf("cleanup(%d): %v", days, err)
		}
		if deleted != 0 {
			t.Fatalf("cleanup(%d) deleted %d rows, want 0", days, deleted)
		}
	}
	count, _ := repo.Count(context.Background())
	if count != 2 {
		t.Fatalf("expected 2 rows to survive, got %d", count)
	}
}

func TestCleanupDeletesOnlyRowsPastCutoff(t *testing.T) {
	repo := openTestRepo(t)
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	repo.OverrideClock(func() time.Time { return now })

	mustInsert(t, repo, resultAt(now.AddDate(0, 0, -100), 1))
	mustInsert(t, repo, resultAt(now.AddDate(0, 0, -10), 2))
	mustInsert(t, repo, resultAt(now, 3))

	deleted, err := repo.DeleteOlderThan(context.Background(), 30)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deleted row, got %d", deleted)
	}

	remaining, err := repo.QueryRange(context.Background(), now.AddDate(-1, 0, 0), now)
	if err != nil {
		t.Fatalf("query range: %v", err)
	}
	if len(remaining) != 2 {
		t.Fatalf("expected 2 surviving rows, got %d", len(remaining))
	}
	for _, r := range remaining {
		if r.DownloadMbps == 1 {
			t.Fatalf("100-day-old row should have been deleted")
		}
	}
}

func TestCleanupKeepsRowExactlyAtCutoff(t *testing.T) {
	repo := openTestRepo(t)
	now := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	repo.OverrideClock(func() time.Time { return now })

	mustInsert(t, repo, resultAt(now.AddDate(0, 0, -30), 1))

	deleted, err := repo.DeleteOlderThan(context.Background(), 30)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if deleted != 0 {
		t.Fatalf("row at cutoff must survive, deleted %d", deleted)
	}
}

func TestFailedResultStoresErrorDetail(t *testing.T) {
	repo := openTestRepo(t)
	msg := "download test: connection reset"
	failure := &domain.SpeedTestResult{
		Timestamp:    time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		Success:      false,
		ErrorMessage: &msg,
	}
	mustInsert(t, repo, failure)

	out, err := repo.Latest(context.Background(), 1)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	got := out[0]
	if got.Success {
		t.Fatalf("expected success=false")
	}
	if got.DownloadMbps != 0 || got.UploadMbps != 0 || got.PingMs != 0 {
		t.Fatalf("failure row must have zero metrics, got %+v", got)
	}
	if got.ErrorMessage == nil || *got.ErrorMessage != msg {
		t.Fatalf("error message mismatch: %v", got.ErrorMessage)
	}
}
