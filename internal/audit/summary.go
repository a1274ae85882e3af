package audit

// Summary is a derived view over a set of trail entries. It is computed on
// demand rather than maintained incrementally.
type Summary struct {
	Count        int `json:"count"`
	SuccessCount int `json:"success_count"`
	ErrorCount   int `json:"error_count"`

	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Summarize aggregates a slice of entries into a Summary.
func Summarize(entries []Entry) Summary {
	var s Summary
	for _, e := range entries {
		s.Count++
		if e.Success {
			s.SuccessCount++
		} else {
			s.ErrorCount++
		}
		s.InputTokens += e.InputTokens
		s.OutputTokens += e.OutputTokens
	}
	s.TotalTokens = s.InputTokens + s.OutputTokens
	return s
}

// RecordSummaries groups entries by record identifier and summarizes each
// group. Entries with no record attribution are keyed under "".
func RecordSummaries(entries []Entry) map[string]Summary {
	byRecord := make(map[string][]Entry)
	for _, e := range entries {
		byRecord[e.RecordID] = append(byRecord[e.RecordID], e)
	}

	out := make(map[string]Summary, len(byRecord))
	for id, group := range byRecord {
		out[id] = Summarize(group)
	}
	return out
}
