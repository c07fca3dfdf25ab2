package batch

import (
	"strings"
	"time"
)

// Record is one input text with its position in the input file
type Record struct {
	Index int64
	Text  string
}

// OutputRecord is one cleaned text as written to the output file
type OutputRecord struct {
	Index    int64  `parquet:"index" json:"index"`
	Original string `parquet:"original" json:"original"`
	Cleaned  string `parquet:"cleaned" json:"cleaned"`
	Changed  bool   `parquet:"changed" json:"changed"`
}

// Result summarises one processed file
type Result struct {
	TotalRecords int64         `json:"total_records"`
	Changed      int64         `json:"changed"`
	Unchanged    int64         `json:"unchanged"`
	Skipped      int64         `json:"skipped"` // rejected by the Japanese-only gate
	Failed       int64         `json:"failed"`  // unreadable input records
	Duration     time.Duration `json:"duration"`
	Errors       []string      `json:"errors,omitempty"`
}

// FileFormat represents supported file formats
type FileFormat string

const (
	FormatCSV     FileFormat = "csv"
	FormatParquet FileFormat = "parquet"
	FormatJSON    FileFormat = "json"
)

// DetectFileFormat detects file format from extension. JSON files hold one
// object per line.
func DetectFileFormat(filename string) FileFormat {
	lower := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(lower, ".parquet"):
		return FormatParquet
	case strings.HasSuffix(lower, ".json"), strings.HasSuffix(lower, ".jsonl"), strings.HasSuffix(lower, ".ndjson"):
		return FormatJSON
	default:
		return FormatCSV
	}
}
