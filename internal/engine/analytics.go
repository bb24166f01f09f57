package engine

import (
	"sort"

	"github.com/lattica-ai/chaincore/internal/store"
	"github.com/lattica-ai/chaincore/pkg/schema"
)

// TopErrorLimit caps the number of distinct error messages reported.
const TopErrorLimit = 5

// ChainAnalytics summarizes the execution history of one chain.
type ChainAnalytics struct {
	ChainID           string                         `json:"chain_id"`
	ExecutionCount    int                            `json:"execution_count"`
	SuccessRate       float64                        `json:"success_rate"`
	AverageDurationMs float64                        `json:"average_duration_ms"`
	TopErrors         []ErrorFrequency               `json:"top_errors,omitempty"`
	StatusCounts      map[schema.ExecutionStatus]int `json:"status_counts"`
}

// ErrorFrequency is one distinct error message and its occurrence count.
type ErrorFrequency struct {
	Message string `json:"message"`
	Count   int    `json:"count"`
}

// Analyze computes analytics over a chain's executions.
//
// successRate = completed / total, 0 for an empty history. Average duration
// covers only executions that completed and carry both timestamps; running
// and failed executions are excluded from the average.
func Analyze(chainID string, executions []*store.Execution) *ChainAnalytics {
	a := &ChainAnalytics{
		ChainID:      chainID,
		StatusCounts: make(map[schema.ExecutionStatus]int),
	}

	var (
		durationSum float64
		durationN   int
		errorCounts = make(map[string]int)
	)

	for _, exec := range executions {
		a.ExecutionCount++
		a.StatusCounts[exec.Status]++

		if exec.Status == schema.ExecutionCompleted && exec.CompletedAt != nil && !exec.StartedAt.IsZero() {
			durationSum += float64(exec.CompletedAt.Sub(exec.StartedAt).Milliseconds())
			durationN++
		}

		if exec.ErrorMessage != "" {
			errorCounts[exec.ErrorMessage]++
		}
	}

	if a.ExecutionCount > 0 {
		a.SuccessRate = float64(a.StatusCounts[schema.ExecutionCompleted]) / float64(a.ExecutionCount)
	}
	if durationN > 0 {
		a.AverageDurationMs = durationSum / float64(durationN)
	}
	a.TopErrors = rankErrors(errorCounts)

	return a
}

// rankErrors orders distinct error messages by frequency descending, ties
// broken lexicographically for stable output, truncated to TopErrorLimit.
func rankErrors(counts map[string]int) []ErrorFrequency {
	if len(counts) == 0 {
		return nil
	}

	ranked := make([]ErrorFrequency, 0, len(counts))
	for msg, n := range counts {
		ranked = append(ranked, ErrorFrequency{Message: msg, Count: n})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].Message < ranked[j].Message
	})

	if len(ranked) > TopErrorLimit {
		ranked = ranked[:TopErrorLimit]
	}
	return ranked
}
