package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Filter selects journal entries. Zero fields match everything.
type Filter struct {
	EnvelopeID string
	Verdict    string
	From       time.Time
	To         time.Time
	// Last keeps only the newest n matches when positive.
	Last int
}

// Summary counts the selected entries.
type Summary struct {
	Total          int            `json:"total"`
	Accepted       int            `json:"accepted"`
	Rejected       int            `json:"rejected"`
	SafeModeEvents int            `json:"safe_mode_events"`
	Codes          map[string]int `json:"codes,omitempty"`
	FirstTimestamp string         `json:"first_timestamp"`
	LastTimestamp  string         `json:"last_timestamp"`
}

// Result holds filtered entries and their summary.
type Result struct {
	Entries []Entry `json:"entries"`
	Summary Summary `json:"summary"`
}

// Read scans the journal and returns entries matching filter, oldest first.
// Malformed lines are skipped; use Verify to detect them.
func Read(path string, filter Filter) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("audit: open journal: %w", err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		if filter.match(e) {
			entries = append(entries, e)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("audit: read journal: %w", err)
	}

	if filter.Last > 0 && len(entries) > filter.Last {
		entries = entries[len(entries)-filter.Last:]
	}
	res := &Result{Entries: entries}
	for _, e := range entries {
		res.Summary.add(e)
	}
	return res, nil
}

func (f Filter) match(e Entry) bool {
	if f.EnvelopeID != "" && e.EnvelopeID != f.EnvelopeID {
		return false
	}
	if f.Verdict != "" && e.Verdict != f.Verdict {
		return false
	}
	if f.From.IsZero() && f.To.IsZero() {
		return true
	}
	ts, err := time.Parse(TimestampFormat, e.Timestamp)
	if err != nil {
		return false
	}
	if !f.From.IsZero() && ts.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && ts.After(f.To) {
		return false
	}
	return true
}

func (s *Summary) add(e Entry) {
	s.Total++
	switch e.Type {
	case TypeSafeMode:
		s.SafeModeEvents++
	case TypeDecision:
		if e.Verdict == "ACCEPTED" {
			s.Accepted++
		} else {
			s.Rejected++
		}
		if e.Code != "" {
			if s.Codes == nil {
				s.Codes = make(map[string]int)
			}
			s.Codes[e.Code]++
		}
	}
	if s.FirstTimestamp == "" {
		s.FirstTimestamp = e.Timestamp
	}
	s.LastTimestamp = e.Timestamp
}
