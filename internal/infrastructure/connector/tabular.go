package connector

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/partsync/backend/internal/infrastructure/config"
	"github.com/xuri/excelize/v2"
)

var (
	// ErrEmptyExport is returned when the export has no content at all
	ErrEmptyExport = errors.New("export is empty")

	// ErrInvalidEncoding is returned when a CSV export is not UTF-8
	ErrInvalidEncoding = errors.New("export is not valid UTF-8")
)

type csvStream struct {
	rc     io.Closer
	reader *csv.Reader
	header []string
}

// newCSVStream reads the header of a delimited export. A UTF-8 BOM is
// stripped, cells are trimmed and blank lines are skipped.
func newCSVStream(rc io.ReadCloser, cfg *config.ReferenceSourceConfig) (s rowStream, err error) {
	defer func() {
		if err != nil {
			_ = rc.Close()
		}
	}()
	br := bufio.NewReader(rc)

	// UTF-8 BOM: 0xEF, 0xBB, 0xBF
	if bom, err := br.Peek(3); err == nil && bom[0] == 0xEF && bom[1] == 0xBB && bom[2] == 0xBF {
		_, _ = br.Discard(3)
	}

	head, err := br.Peek(4096)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, fmt.Errorf("failed to read export: %w", err)
	}
	if len(head) == 0 {
		return nil, ErrEmptyExport
	}
	if !utf8.Valid(trimPartialRune(head)) {
		return nil, ErrInvalidEncoding
	}

	reader := csv.NewReader(br)
	reader.Comma = delimiter(cfg.Delimiter)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = false

	header, err := reader.Read()
	if err == io.EOF {
		return nil, ErrEmptyExport
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	return &csvStream{rc: rc, reader: reader, header: trimAll(header)}, nil
}

func (s *csvStream) Header() []string { return s.header }
func (s *csvStream) Close() error     { return s.rc.Close() }

func (s *csvStream) Next() (fileRow, error) {
	for {
		record, err := s.reader.Read()
		if err == io.EOF {
			return fileRow{}, io.EOF
		}
		if err != nil {
			return fileRow{}, fmt.Errorf("malformed export: %w", err)
		}
		values := trimAll(record)
		if isBlank(values) {
			continue
		}
		line, _ := s.reader.FieldPos(0)
		return fileRow{id: "line " + strconv.Itoa(line), values: values}, nil
	}
}

// xlsxStream iterates the configured sheet, or the first one. The workbook
// archive is held in memory by excelize; rows are decoded one at a time.
type xlsxStream struct {
	file   *excelize.File
	rows   *excelize.Rows
	header []string
	line   int
}

func newXLSXStream(rc io.ReadCloser, cfg *config.ReferenceSourceConfig) (rowStream, error) {
	defer rc.Close()

	f, err := excelize.OpenReader(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}

	sheet := cfg.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			_ = f.Close()
			return nil, ErrEmptyExport
		}
		sheet = sheets[0]
	}

	rows, err := f.Rows(sheet)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}
	s := &xlsxStream{file: f, rows: rows}
	if !rows.Next() {
		err := rows.Error()
		_ = s.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
		}
		return nil, ErrEmptyExport
	}
	header, err := rows.Columns()
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to read header of sheet %s: %w", sheet, err)
	}
	s.header = trimAll(header)
	s.line = 1
	return s, nil
}

func (s *xlsxStream) Header() []string { return s.header }

func (s *xlsxStream) Next() (fileRow, error) {
	for s.rows.Next() {
		s.line++
		cells, err := s.rows.Columns()
		if err != nil {
			return fileRow{}, fmt.Errorf("failed to read row %d: %w", s.line, err)
		}
		values := trimAll(cells)
		if isBlank(values) {
			continue
		}
		return fileRow{id: "row " + strconv.Itoa(s.line), values: values}, nil
	}
	if err := s.rows.Error(); err != nil {
		return fileRow{}, fmt.Errorf("failed to read row %d: %w", s.line+1, err)
	}
	return fileRow{}, io.EOF
}

func (s *xlsxStream) Close() error {
	return errors.Join(s.rows.Close(), s.file.Close())
}

func delimiter(s string) rune {
	switch s {
	case "", ",":
		return ','
	case `\t`, "tab":
		return '\t'
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r
}

func trimAll(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strings.TrimSpace(v)
	}
	return out
}

func isBlank(values []string) bool {
	for _, v := range values {
		if v != "" {
			return false
		}
	}
	return true
}

// trimPartialRune drops a rune cut in half at the end of a peek window.
func trimPartialRune(b []byte) []byte {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			if !utf8.FullRune(b[i:]) {
				return b[:i]
			}
			return b
		}
	}
	return b
}
