package exporter

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/360EntSecGroup-Skylar/excelize"
	"github.com/pkg/errors"
)

const excelSheet = "Sheet1"

// ExcelSink appends rows to a local XLSX workbook. Access is serialized:
// the workbook is rewritten on every append, so concurrent writers would
// clobber each other.
type ExcelSink struct {
	path string
	mu   sync.Mutex
}

func NewExcelSink(path string) *ExcelSink {
	return &ExcelSink{path: path}
}

func (s *ExcelSink) open() (*excelize.File, error) {
	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return excelize.NewFile(), nil
	}
	f, err := excelize.OpenFile(s.path)
	if err != nil {
		return nil, errors.Wrap(err, "open workbook")
	}
	return f, nil
}

func (s *ExcelSink) EnsureHeader(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.open()
	if err != nil {
		return err
	}
	rows := f.GetRows(excelSheet)
	if len(rows) > 0 && len(rows[0]) > 0 && rows[0][0] != "" {
		return nil
	}
	for i, h := range HeaderRow {
		f.SetCellValue(excelSheet, fmt.Sprintf("%c1", 'A'+i), h)
	}
	return errors.Wrap(f.SaveAs(s.path), "save workbook")
}

func (s *ExcelSink) AppendRow(ctx context.Context, row Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.open()
	if err != nil {
		return err
	}
	n := len(f.GetRows(excelSheet)) + 1
	f.SetCellValue(excelSheet, fmt.Sprintf("A%d", n), row.Timestamp)
	f.SetCellValue(excelSheet, fmt.Sprintf("B%d", n), row.DownloadMbps)
	f.SetCellValue(excelSheet, fmt.Sprintf("C%d", n), row.UploadMbps)
	f.SetCellValue(excelSheet, fmt.Sprintf("D%d", n), row.PingMs)
	return errors.Wrap(f.SaveAs(s.path), "save workbook")
}
