// Package report exports scan results as flat records in JSON and CSV.
//
// Both formats carry the same records in the same order. The field names
// are the column names of the consolidated evidence report.
package report

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"time"

	"github.com/Aman-CERP/prometheus/internal/evidence"
)

// Record is one match flattened for export.
type Record struct {
	SourceFile   string `json:"source_file"`
	InternalPath string `json:"internal_path"`
	FileType     string `json:"file_type"`
	PatternType  string `json:"pattern_type"`
	MatchValue   string `json:"match_value"`
	Context      string `json:"context"`
	Locator      string `json:"locator"`
	Offset       int    `json:"offset"`
	Timestamp    string `json:"timestamp"`
	Lossy        bool   `json:"lossy"`
}

// Columns is the CSV header, in JSON field order.
var Columns = []string{
	"source_file",
	"internal_path",
	"file_type",
	"pattern_type",
	"match_value",
	"context",
	"locator",
	"offset",
	"timestamp",
	"lossy",
}

// Flatten converts the result into export records, keeping its order.
func Flatten(result *evidence.ScanResult) []Record {
	if result == nil {
		return []Record{}
	}
	out := make([]Record, 0, len(result.Records))
	for _, r := range result.Records {
		out = append(out, Record{
			SourceFile:   r.ArchivePath,
			InternalPath: r.EntryPath,
			FileType:     string(r.ExtractorKind),
			PatternType:  r.Pattern,
			MatchValue:   r.Value,
			Context:      r.Context,
			Locator:      r.Locator.String(),
			Offset:       r.Offset,
			Timestamp:    timestamp(r.Timestamp),
			Lossy:        r.Lossy,
		})
	}
	return out
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func (r Record) row() []string {
	return []string{
		r.SourceFile,
		r.InternalPath,
		r.FileType,
		r.PatternType,
		r.MatchValue,
		r.Context,
		r.Locator,
		strconv.Itoa(r.Offset),
		r.Timestamp,
		strconv.FormatBool(r.Lossy),
	}
}

// WriteJSON writes the records as an indented JSON array.
func WriteJSON(w io.Writer, result *evidence.ScanResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(Flatten(result))
}

// WriteCSV writes a header row followed by one row per record.
func WriteCSV(w io.Writer, result *evidence.ScanResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	for _, r := range Flatten(result) {
		if err := cw.Write(r.row()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteSummary writes the run statistics as indented JSON.
func WriteSummary(w io.Writer, stats evidence.RunStats) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(stats)
}
