package ingest

import (
	"encoding/csv"
	"fmt"
	"io"

	"profit-engine/internal/errors"
)

// table is a parsed CSV file: its header map and data rows with their
// 1-based source line numbers.
type table struct {
	file   string
	header *headerMap
	rows   [][]string
	lines  []int
}

func readTable(r io.Reader, file string, cols []column) (*table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, errors.Parsing(file+": empty file", nil).WithContext("file", file)
	}
	if err != nil {
		return nil, errors.Parsing(file+": read header", err).WithContext("file", file)
	}

	hm, err := mapHeader(file, header, cols)
	if err != nil {
		return nil, errors.Parsing("map columns", err).WithContext("file", file)
	}

	t := &table{file: file, header: hm}
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Parsing(file+": read row", err).WithContext("file", file)
		}
		if blank(row) {
			continue
		}
		line, _ := cr.FieldPos(0)
		t.rows = append(t.rows, row)
		t.lines = append(t.lines, line)
	}
	return t, nil
}

// cellError reports a bad value at file:line in the named column.
func (t *table) cellError(i int, col string, cause error) error {
	return errors.Parsing(fmt.Sprintf("%s:%d: column %s", t.file, t.lines[i], col), cause).
		WithContext("file", t.file).
		WithContext("line", t.lines[i]).
		WithContext("column", col)
}

func blank(row []string) bool {
	for _, c := range row {
		if c != "" {
			return false
		}
	}
	return true
}
