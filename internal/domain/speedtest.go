package domain

import (
	"math"
	"time"
)

// SpeedTestResult stores one measurement attempt, success or failure.
// A failed attempt still produces exactly one row with zero-valued metrics
// and a non-null error message. Rows are never updated in place.
type SpeedTestResult struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Timestamp    time.Time `gorm:"index;not null" json:"timestamp"`
	DownloadMbps float64   `gorm:"not null" json:"download_mbps"`
	UploadMbps   float64   `gorm:"not null" json:"upload_mbps"`
	PingMs       float64   `gorm:"not null" json:"ping_ms"`
	TestServer   *string   `json:"test_server"`
	Success      bool      `gorm:"not null" json:"success"`
	ErrorMessage *string   `json:"error_message"`
	CreatedAt    time.Time `json:"created_at"`
}

// TableName Specify table name
func (SpeedTestResult) TableName() string {
	return "speed_tests"
}

// ResultView is the JSON shape served by the dashboard API, with
// two-decimal rates and one-decimal ping.
type ResultView struct {
	ID           int64   `json:"id"`
	Timestamp    string  `json:"timestamp"`
	DownloadMbps float64 `json:"download_mbps"`
	UploadMbps   float64 `json:"upload_mbps"`
	PingMs       float64 `json:"ping_ms"`
	TestServer   *string `json:"test_server"`
	Success      bool    `json:"success"`
	ErrorMessage *string `json:"error_message"`
}

func (r SpeedTestResult) View() ResultView {
	return ResultView{
		ID:           r.ID,
		Timestamp:    r.Timestamp.Format("2006-01-02T15:04:05"),
		DownloadMbps: Round2(r.DownloadMbps),
		UploadMbps:   Round2(r.UploadMbps),
		PingMs:       Round1(r.PingMs),
		TestServer:   r.TestServer,
		Success:      r.Success,
		ErrorMessage: r.ErrorMessage,
	}
}

// Statistics aggregates successful results over a time period.
type Statistics struct {
	AvgDownloadMbps float64
	AvgUploadMbps   float64
	AvgPingMs       float64

	MinDownloadMbps float64
	MaxDownloadMbps float64
	MinUploadMbps   float64
	MaxUploadMbps   float64
	MinPingMs       float64
	MaxPingMs       float64

	TotalTests  int
	FailedTests int

	PeriodStart time.Time
	PeriodEnd   time.Time
}

type MinMaxView struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

type StatisticsView struct {
	Averages struct {
		DownloadMbps float64 `json:"download_mbps"`
		UploadMbps   float64 `json:"upload_mbps"`
		PingMs       float64 `json:"ping_ms"`
	} `json:"averages"`
	Download MinMaxView `json:"download"`
	Upload   MinMaxView `json:"upload"`
	Ping     MinMaxView `json:"ping"`
	Tests    struct {
		Total       int     `json:"total"`
		Failed      int     `json:"failed"`
		SuccessRate float64 `json:"success_rate"`
	} `json:"tests"`
	Period struct {
		Start string `json:"start"`
		End   string `json:"end"`
	} `json:"period"`
}

func (s Statistics) View() StatisticsView {
	var v StatisticsView
	v.Averages.DownloadMbps = Round2(s.AvgDownloadMbps)
	v.Averages.UploadMbps = Round2(s.AvgUploadMbps)
	v.Averages.PingMs = Round1(s.AvgPingMs)
	v.Download = MinMaxView{Min: Round2(s.MinDownloadMbps), Max: Round2(s.MaxDownloadMbps)}
	v.Upload = MinMaxView{Min: Round2(s.MinUploadMbps), Max: Round2(s.MaxUploadMbps)}
	v.Ping = MinMaxView{Min: Round1(s.MinPingMs), Max: Round1(s.MaxPingMs)}
	v.Tests.Total = s.TotalTests
	v.Tests.Failed = s.FailedTests
	v.Tests.SuccessRate = s.SuccessRate()
	v.Period.Start = s.PeriodStart.Format("2006-01-02T15:04:05")
	v.Period.End = s.PeriodEnd.Format("2006-01-02T15:04:05")
	return v
}

// SuccessRate returns (total-failed)/total*100 rounded to one decimal,
// or 0 when no tests ran.
func (s Statistics) SuccessRate() float64 {
	if s.TotalTests == 0 {
		return 0
	}
	return Round1(float64(s.TotalTests-s.FailedTests) / float64(s.TotalTests) * 100)
}

func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}
