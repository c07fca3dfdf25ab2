package batch

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/segmentio/parquet-go"
	"go.uber.org/zap"
)

// recordReader yields input records in file order
type recordReader interface {
	// ReadBatch returns up to n records; an empty batch means end of input
	ReadBatch(n int) ([]Record, error)
	// Failed counts records that could not be read
	Failed() int64
	Close() error
}

func openReader(path string, format FileFormat, column string, logger *zap.Logger) (recordReader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file: %w", err)
	}

	var reader recordReader
	switch format {
	case FormatCSV:
		reader, err = newCSVReader(file, column, logger)
	case FormatJSON:
		reader = newJSONReader(file, column, logger)
	case FormatParquet:
		reader, err = newParquetReader(file, column)
	default:
		err = fmt.Errorf("unsupported file format: %s", format)
	}
	if err != nil {
		file.Close()
		return nil, err
	}
	return reader, nil
}

type csvReader struct {
	file   *os.File
	reader *csv.Reader
	column int
	next   int64
	failed int64
	logger *zap.Logger
}

func newCSVReader(file *os.File, column string, logger *zap.Logger) (*csvReader, error) {
	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	logger.Info("CSV header detected", zap.Strings("columns", header))

	for i, name := range header {
		if name == column {
			return &csvReader{file: file, reader: reader, column: i, logger: logger}, nil
		}
	}
	return nil, fmt.Errorf("CSV header has no %q column", column)
}

func (r *csvReader) ReadBatch(n int) ([]Record, error) {
	var batch []Record
	for len(batch) < n {
		row, err := r.reader.Read()
		if err == io.EOF {
			break
		}
		index := r.next
		r.next++

		if err != nil {
			var parseErr *csv.ParseError
			if !errors.As(err, &parseErr) {
				return batch, fmt.Errorf("failed to read CSV record: %w", err)
			}
			r.failed++
			r.logger.Warn("Failed to read CSV record", zap.Int64("index", index), zap.Error(err))
			continue
		}
		if r.column >= len(row) {
			r.failed++
			r.logger.Warn("CSV record is missing the text column", zap.Int64("index", index))
			continue
		}

		batch = append(batch, Record{Index: index, Text: row[r.column]})
	}
	return batch, nil
}

func (r *csvReader) Failed() int64 { return r.failed }
func (r *csvReader) Close() error  { return r.file.Close() }

type jsonReader struct {
	file    *os.File
	decoder *json.Decoder
	column  string
	next    int64
	failed  int64
	logger  *zap.Logger
}

func newJSONReader(file *os.File, column string, logger *zap.Logger) *jsonReader {
	return &jsonReader{
		file:    file,
		decoder: json.NewDecoder(file),
		column:  column,
		logger:  logger,
	}
}

func (r *jsonReader) ReadBatch(n int) ([]Record, error) {
	var batch []Record
	for len(batch) < n {
		var object map[string]json.RawMessage
		err := r.decoder.Decode(&object)
		if err == io.EOF {
			break
		}
		index := r.next
		r.next++

		if err != nil {
			var syntaxErr *json.SyntaxError
			if errors.As(err, &syntaxErr) {
				// The decoder cannot resynchronise after a syntax error
				return batch, fmt.Errorf("invalid JSON at record %d: %w", index, err)
			}
			r.failed++
			r.logger.Warn("Failed to read JSON record", zap.Int64("index", index), zap.Error(err))
			continue
		}

		var text string
		raw, ok := object[r.column]
		if !ok || json.Unmarshal(raw, &text) != nil {
			r.failed++
			r.logger.Warn("JSON record has no string text field",
				zap.Int64("index", index),
				zap.String("column", r.column))
			continue
		}

		batch = append(batch, Record{Index: index, Text: text})
	}
	return batch, nil
}

func (r *jsonReader) Failed() int64 { return r.failed }
func (r *jsonReader) Close() error  { return r.file.Close() }

type parquetReader struct {
	file   *os.File
	reader *parquet.Reader
	column int
	rows   []parquet.Row
	next   int64
	failed int64
	done   bool
}

func newParquetReader(file *os.File, column string) (*parquetReader, error) {
	stat, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat parquet file: %w", err)
	}

	// NewReader panics on malformed input, so open the file first
	pf, err := parquet.OpenFile(file, stat.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}
	reader := parquet.NewReader(pf)

	leaf, ok := reader.Schema().Lookup(column)
	if !ok {
		reader.Close()
		return nil, fmt.Errorf("parquet schema has no %q column", column)
	}

	return &parquetReader{
		file:   file,
		reader: reader,
		column: leaf.ColumnIndex,
	}, nil
}

func (r *parquetReader) ReadBatch(n int) ([]Record, error) {
	if cap(r.rows) < n {
		r.rows = make([]parquet.Row, n)
	}

	var batch []Record
	for len(batch) < n && !r.done {
		rows := r.rows[:n-len(batch)]

		count, err := r.reader.ReadRows(rows)
		if err != nil && err != io.EOF {
			return batch, fmt.Errorf("failed to read parquet rows: %w", err)
		}
		if err == io.EOF || count == 0 {
			r.done = true
		}

		for _, row := range rows[:count] {
			index := r.next
			r.next++

			text, ok := rowText(row, r.column)
			if !ok {
				r.failed++
				continue
			}
			batch = append(batch, Record{Index: index, Text: text})
		}
	}
	return batch, nil
}

// rowText returns the value of the given leaf column when it is non-null
func rowText(row parquet.Row, column int) (string, bool) {
	for _, value := range row {
		if value.Column() != column {
			continue
		}
		if value.IsNull() {
			return "", false
		}
		return string(value.ByteArray()), true
	}
	return "", false
}

func (r *parquetReader) Failed() int64 { return r.failed }

func (r *parquetReader) Close() error {
	r.reader.Close()
	return r.file.Close()
}
