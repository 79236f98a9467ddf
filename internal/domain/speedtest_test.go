package domain

import (
	"testing"
	"time"
)

func TestViewRounding(t *testing.T) {
	server := "srv"
	r := SpeedTestResult{
		ID:           7,
		Timestamp:    time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		DownloadMbps: 93.456789,
		UploadMbps:   18.994,
		PingMs:       11.55,
		TestServer:   &server,
		Success:      true,
	}
	v := r.View()
	if v.DownloadMbps != 93.46 {
		t.Fatalf("download rounded to %v, want 93.46", v.DownloadMbps)
	}
	if v.UploadMbps != 18.99 {
		t.Fatalf("upload rounded to %v, want 18.99", v.UploadMbps)
	}
	if v.PingMs != 11.6 {
		t.Fatalf("ping rounded to %v, want 11.6", v.PingMs)
	}
	if v.Timestamp != "2024-06-01T12:00:00" {
		t.Fatalf("timestamp formatted as %q", v.Timestamp)
	}
}

func TestSuccessRate(t *testing.T) {
	cases := []struct {
		total, failed int
		want          float64
	}{
		{0, 0, 0},
		{3, 1, 66.7},
		{4, 0, 100},
		{2, 2, 0},
	}
	for _, tc := range cases {
		s := Statistics{TotalTests: tc.total, FailedTests: tc.failed}
		if got := s.SuccessRate(); got != tc.want {
			t.Fatalf("total=%d failed=%d: got %v want %v", tc.total, tc.failed, got, tc.want)
		}
	}
}
