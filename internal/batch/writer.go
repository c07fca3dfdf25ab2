package batch

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/segmentio/parquet-go"
)

// recordWriter writes cleaned records in input order
type recordWriter interface {
	Write(records []OutputRecord) error
	Close() error
}

var csvHeader = []string{"index", "original", "cleaned", "changed"}

func createWriter(path string, format FileFormat) (recordWriter, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}

	switch format {
	case FormatCSV:
		writer := csv.NewWriter(file)
		if err := writer.Write(csvHeader); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to write CSV header: %w", err)
		}
		return &csvWriter{file: file, writer: writer}, nil
	case FormatJSON:
		buffered := bufio.NewWriter(file)
		return &jsonWriter{file: file, buffered: buffered, encoder: json.NewEncoder(buffered)}, nil
	case FormatParquet:
		return &parquetWriter{file: file, writer: parquet.NewGenericWriter[OutputRecord](file)}, nil
	default:
		file.Close()
		return nil, fmt.Errorf("unsupported file format: %s", format)
	}
}

type csvWriter struct {
	file   *os.File
	writer *csv.Writer
}

func (w *csvWriter) Write(records []OutputRecord) error {
	for _, record := range records {
		row := []string{
			strconv.FormatInt(record.Index, 10),
			record.Original,
			record.Cleaned,
			strconv.FormatBool(record.Changed),
		}
		if err := w.writer.Write(row); err != nil {
			return err
		}
	}
	w.writer.Flush()
	return w.writer.Error()
}

func (w *csvWriter) Close() error {
	w.writer.Flush()
	if err := w.writer.Error(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}

type jsonWriter struct {
	file     *os.File
	buffered *bufio.Writer
	encoder  *json.Encoder
}

func (w *jsonWriter) Write(records []OutputRecord) error {
	for _, record := range records {
		if err := w.encoder.Encode(record); err != nil {
			return err
		}
	}
	return nil
}

func (w *jsonWriter) Close() error {
	if err := w.buffered.Flush(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}

type parquetWriter struct {
	file   *os.File
	writer *parquet.GenericWriter[OutputRecord]
}

func (w *parquetWriter) Write(records []OutputRecord) error {
	_, err := w.writer.Write(records)
	return err
}

func (w *parquetWriter) Close() error {
	if err := w.writer.Close(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}
