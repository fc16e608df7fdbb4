package core

// csv_reader.go implements the lazy, header-mapped CSV row stream
// consumed by the import engine. The stream is finite and not
// restartable: once a row has been read it is gone, which is what
// keeps memory constant on arbitrarily large files.

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrEmptyCSV is returned when the source has no header row.
var ErrEmptyCSV = errors.New("empty file")

// Row is one data row zipped against the normalized header.
//
// Number is 1-based and counts the header as row 1, so the first data
// row is number 2. When Err is non-nil the row could not be mapped
// (wrong column count) and Fields is nil; the import engine records it
// as invalid instead of aborting the run.
type Row struct {
	Number int
	Fields map[string]string
	Err    error
}

// CsvStreamReader produces header-mapped rows from a byte stream.
// Header names are normalized (trimmed, lowercased) on construction
// and become the field keys of every row.
type CsvStreamReader struct {
	reader  *csv.Reader
	headers []string
	rowNum  int
}

// NewCsvStreamReader reads and normalizes the header row, returning a
// reader positioned at the first data row. The source is wrapped with
// BOM skipping and UTF-8 sanitization first.
func NewCsvStreamReader(r io.Reader) (*CsvStreamReader, error) {
	cr := csv.NewReader(WrapForStreaming(r, 0))
	cr.FieldsPerRecord = -1 // row length is checked per row, not fatal
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, ErrEmptyCSV
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	headers := make([]string, len(header))
	for i, h := range header {
		headers[i] = strings.ToLower(strings.TrimSpace(h))
	}

	return &CsvStreamReader{
		reader:  cr,
		headers: headers,
		rowNum:  1, // header consumed
	}, nil
}

// Headers returns the normalized header names.
func (r *CsvStreamReader) Headers() []string {
	return r.headers
}

// HasHeader reports whether a normalized header name is present.
func (r *CsvStreamReader) HasHeader(name string) bool {
	for _, h := range r.headers {
		if h == name {
			return true
		}
	}
	return false
}

// Next returns the next data row, or io.EOF when the stream ends.
// Any other error is a stream-level failure and aborts the run.
func (r *CsvStreamReader) Next() (Row, error) {
	record, err := r.reader.Read()
	if err == io.EOF {
		return Row{}, io.EOF
	}
	if err != nil {
		// csv.Reader surfaces malformed quoting etc. as ParseError;
		// with LazyQuotes these are rare and treated as row errors.
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			r.rowNum++
			return Row{
				Number: r.rowNum,
				Err:    fmt.Errorf("malformed row: %v", parseErr.Err),
			}, nil
		}
		return Row{}, fmt.Errorf("read row: %w", err)
	}

	r.rowNum++

	if len(record) != len(r.headers) {
		return Row{
			Number: r.rowNum,
			Err:    fmt.Errorf("expected %d columns, got %d", len(r.headers), len(record)),
		}, nil
	}

	fields := make(map[string]string, len(r.headers))
	for i, h := range r.headers {
		fields[h] = record[i]
	}

	return Row{Number: r.rowNum, Fields: fields}, nil
}
