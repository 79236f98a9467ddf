package exporter

import (
	"context"

	"github.com/lanwatch/speedmon/internal/domain"
)

// Row is the ordered tuple appended to a sink for one result.
type Row struct {
	Timestamp    string  `csv:"Timestamp"`
	DownloadMbps float64 `csv:"Download (Mbps)"`
	UploadMbps   float64 `csv:"Upload (Mbps)"`
	PingMs       float64 `csv:"Ping (ms)"`
}

// HeaderRow labels the sink columns, written once on first use.
var HeaderRow = []string{"Timestamp", "Download (Mbps)", "Upload (Mbps)", "Ping (ms)"}

// Sink is an external append-only destination. It deliberately exposes no
// update or delete capability: exported data can only grow, which is what
// makes at-least-once delivery safe.
type Sink interface {
	// EnsureHeader writes the header row if the destination is empty.
	EnsureHeader(ctx context.Context) error

	// AppendRow appends one row to the destination.
	AppendRow(ctx context.Context, row Row) error
}

// RowFromResult derives the exported tuple from a stored result, rounding
// rates to two decimals and ping to one.
func RowFromResult(result domain.SpeedTestResult) Row {
	return Row{
		Timestamp:    result.Timestamp.Format("2006-01-02 15:04:05"),
		DownloadMbps: domain.Round2(result.DownloadMbps),
		UploadMbps:   domain.Round2(result.UploadMbps),
		PingMs:       domain.Round1(result.PingMs),
	}
}
