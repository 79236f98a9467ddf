package exporter

import (
	"context"
	"os"
	"sync"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"
)

// CSVSink appends rows to a local CSV file.
type CSVSink struct {
	path string
	mu   sync.Mutex
}

func NewCSVSink(path string) *CSVSink {
	return &CSVSink{path: path}
}

func (s *CSVSink) EnsureHeader(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := os.Stat(s.path)
	if err == nil && info.Size() > 0 {
		return nil
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return errors.Wrap(err, "create csv file")
	}
	defer f.Close()
	// Marshaling an empty slice emits only the header line.
	return errors.Wrap(gocsv.MarshalFile(&[]*Row{}, f), "write csv header")
}

func (s *CSVSink) AppendRow(ctx context.Context, row Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return errors.Wrap(err, "open csv file")
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return errors.Wrap(err, "stat csv file")
	}
	rows := []*Row{&row}
	if info.Size() == 0 {
		return errors.Wrap(gocsv.MarshalFile(&rows, f), "append csv row")
	}
	return errors.Wrap(gocsv.MarshalWithoutHeaders(&rows, f), "append csv row")
}
