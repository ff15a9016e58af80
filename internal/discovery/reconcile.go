package discovery

import (
	"github.com/sells-group/discovery-console/internal/model"
)

// LatestPerSource folds a result history into the most recent result per
// catalog entry, ordered by completion time (start time when incomplete).
// On an exact tie the later element of results wins. It makes no assumption
// about arrival order, so it is re-run over the full history whenever a new
// result arrives.
func LatestPerSource(results []model.TestResult) map[string]model.TestResult {
	latest := make(map[string]model.TestResult)
	for _, r := range results {
		cur, ok := latest[r.CatalogEntryID]
		if !ok || !r.Timestamp().Before(cur.Timestamp()) {
			latest[r.CatalogEntryID] = r
		}
	}
	return latest
}

// StatusSummary counts the latest statuses across sources.
type StatusSummary struct {
	Total  int                      `json:"total"`
	Counts map[model.TestStatus]int `json:"counts"`
}

// Summarize counts statuses in a reconciled map.
func Summarize(latest map[string]model.TestResult) StatusSummary {
	s := StatusSummary{Counts: make(map[model.TestStatus]int)}
	for _, r := range latest {
		s.Total++
		s.Counts[r.Status]++
	}
	return s
}

// Promotable returns the latest successful results among ids, in ids order.
func Promotable(latest map[string]model.TestResult, ids []string) []model.TestResult {
	var out []model.TestResult
	for _, id := range ids {
		if r, ok := latest[id]; ok && r.Status == model.TestStatusSuccess {
			out = append(out, r)
		}
	}
	return out
}
