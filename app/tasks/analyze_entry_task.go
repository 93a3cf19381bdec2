package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/threatcomb/threatcomb/app/analysis"
)

// AnalysisRunner is the orchestrator surface background tasks use.
type AnalysisRunner interface {
	Run(ctx context.Context, entryID string, analysisType analysis.Type) (*analysis.Result, error)
}

// AnalyzeEntryTask runs one analysis type for one entry in the
// background, used by the auto-analyze ingestion path.
type AnalyzeEntryTask struct {
	Task
	EntryID      string
	AnalysisType analysis.Type
	runner       AnalysisRunner
}

func NewAnalyzeEntryTask(entryID string, analysisType analysis.Type, runner AnalysisRunner) *AnalyzeEntryTask {
	return &AnalyzeEntryTask{
		Task:         NewTask(TaskTypeAnalyzeEntry, entryID),
		EntryID:      entryID,
		AnalysisType: analysisType,
		runner:       runner,
	}
}

func (t *AnalyzeEntryTask) Execute(ctx context.Context) error {

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	result, err := t.runner.Run(ctx, t.EntryID, t.AnalysisType)
	if err != nil {
		// Unusable or malformed output will not improve on a blind
		// re-run against the same content; don't burn retries on it.
		if errors.Is(err, analysis.ErrUnusableOutput) || errors.Is(err, analysis.ErrMalformedRuleOutput) {
			slog.Warn("Analysis output rejected",
				"entry", t.EntryID, "analysis", string(t.AnalysisType), "error", err)
			t.RetryCount = t.MaxRetries
		}
		return fmt.Errorf("analysis failed: %w", err)
	}

	slog.Info("Task completed",
		"type", "AnalyzeEntry",
		"entry", t.EntryID,
		"analysis", string(t.AnalysisType),
		"duration", t.GetDuration(),
		"iocs_found", result.HasIOCs())

	return nil
}
