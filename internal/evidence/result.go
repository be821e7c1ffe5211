package evidence

// Failure describes one archive or entry that could not be processed.
type Failure struct {
	Archive string `json:"archive"`
	Entry   string `json:"entry,omitempty"`
	Code    string `json:"code"`
	Reason  string `json:"reason"`
	Timeout bool   `json:"timeout,omitempty"`
}

// RunStats summarizes a scan. It is read-only once Scan returns.
type RunStats struct {
	ArchivesAttempted int            `json:"archives_attempted"`
	ArchivesSucceeded int            `json:"archives_succeeded"`
	ArchivesFailed    int            `json:"archives_failed"`
	Failures          []Failure      `json:"failures,omitempty"`
	EntryFailures     []Failure      `json:"entry_failures,omitempty"`
	EntriesSkipped    map[string]int `json:"entries_skipped"`
	BlobCellsSkipped  int            `json:"blob_cells_skipped"`
	LossyUnits        int            `json:"lossy_units"`
	Timeouts          int            `json:"timeouts"`
	MatchesByPattern  map[string]int `json:"matches_by_pattern"`
	TotalMatches      int            `json:"total_matches"`
	Canceled          bool           `json:"canceled,omitempty"`
}

// ScanResult is the ordered, deduplicated set of match records of a run plus
// its statistics.
type ScanResult struct {
	Records []MatchRecord `json:"records"`
	Stats   RunStats      `json:"stats"`
}

// Empty reports whether the run found no matches.
func (r *ScanResult) Empty() bool {
	return r == nil || len(r.Records) == 0
}
