package analysis

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/threatcomb/threatcomb/app/database"
)

// Generator is the model client surface the orchestrator needs.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Orchestrator sequences model calls and response parsing per entry and
// analysis type, and persists the structured result. Concurrent requests
// for the same (entry, type) collapse into one execution; the second
// caller receives the first caller's result.
type Orchestrator struct {
	generator    Generator
	parser       *ResponseParser
	feedRepo     database.FeedRepository
	entryRepo    database.EntryRepository
	analysisRepo database.AnalysisRepository
	group        singleflight.Group
}

func NewOrchestrator(generator Generator, feedRepo database.FeedRepository,
	entryRepo database.EntryRepository, analysisRepo database.AnalysisRepository) *Orchestrator {
	return &Orchestrator{
		generator:    generator,
		parser:       NewResponseParser(),
		feedRepo:     feedRepo,
		entryRepo:    entryRepo,
		analysisRepo: analysisRepo,
	}
}

func (o *Orchestrator) Run(ctx context.Context, entryID string, analysisType Type) (*Result, error) {
	if !analysisType.Valid() {
		return nil, fmt.Errorf("unknown analysis type: %q", analysisType)
	}

	entry, err := o.entryRepo.GetEntry(entryID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, entryID)
	}

	if analysisType == TypeSecurity {
		feed, err := o.feedRepo.GetFeed(entry.FeedID)
		if err != nil {
			return nil, err
		}
		if feed == nil || !feed.IsSecurityFeed {
			return nil, fmt.Errorf("%w: feed of entry %s is not a security feed", ErrInapplicableAnalysis, entryID)
		}
	}

	// An analysis runs to completion once started; a caller going away
	// must not cancel the shared execution other waiters rely on.
	execCtx := context.WithoutCancel(ctx)

	key := entryID + ":" + string(analysisType)
	value, err, shared := o.group.Do(key, func() (interface{}, error) {
		return o.execute(execCtx, entry, analysisType)
	})
	if err != nil {
		return nil, err
	}

	if shared {
		slog.Debug("Analysis request collapsed into in-flight execution",
			"entry", entryID, "type", string(analysisType))
	}

	return value.(*Result), nil
}

func (o *Orchestrator) execute(ctx context.Context, entry *database.Entry, analysisType Type) (*Result, error) {
	prompt := BuildPrompt(analysisType, entry.Content)

	raw, err := o.generator.Generate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	result := &Result{EntryID: entry.ID, Type: analysisType}

	switch analysisType {
	case TypeSummarize:
		summary := o.parser.ParseSummary(raw)
		if summary == "" {
			return nil, fmt.Errorf("%w: empty summary", ErrUnusableOutput)
		}
		if err := o.analysisRepo.ReplaceSummary(entry.ID, summary); err != nil {
			return nil, err
		}
		result.Summary = summary

	case TypeDetailed:
		detailed, err := o.parser.ParseDetailed(raw)
		if err != nil {
			return nil, err
		}
		if err := o.analysisRepo.ReplaceDetailedAnalysis(entry.ID, database.DetailedAnalysis{
			KeyPoints:        detailed.KeyPoints,
			TechnicalDetails: detailed.TechnicalDetails,
			ImpactAssessment: detailed.ImpactAssessment,
			RelatedConcepts:  detailed.RelatedConcepts,
			Recommendations:  detailed.Recommendations,
		}); err != nil {
			return nil, err
		}
		if !detailed.Complete() {
			slog.Debug("Detailed analysis parsed partially",
				"entry", entry.ID, "missing", detailed.MissingSections)
		}
		result.Detailed = detailed

	case TypeSecurity:
		security, err := o.parser.ParseSecurity(raw)
		if err != nil {
			return nil, err
		}

		iocs := make([]database.IOC, 0, len(security.IOCs))
		for _, ioc := range security.IOCs {
			iocs = append(iocs, database.IOC{
				Type:    string(ioc.Type),
				Value:   ioc.Value,
				Context: ioc.Context,
			})
		}

		var rule *database.SigmaRule
		if security.Rule != nil {
			rule = &database.SigmaRule{
				Title:       security.Rule.Title,
				Description: security.Rule.Description,
				Status:      security.Rule.Status,
				Level:       security.Rule.Level,
				Detection:   security.Rule.Detection,
				Raw:         security.Rule.Raw,
			}
		}

		if err := o.analysisRepo.ReplaceSecurityAnalysis(entry.ID, iocs, rule); err != nil {
			return nil, err
		}
		result.Security = security
	}

	slog.Info("Analysis completed", "entry", entry.ID, "type", string(analysisType))

	return result, nil
}
