package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/threatcomb/threatcomb/app/analysis"
	"github.com/threatcomb/threatcomb/app/cfg"
	"github.com/threatcomb/threatcomb/app/database"
	"github.com/threatcomb/threatcomb/app/feed"
)

// ProcessFeedTask runs one fetch-and-ingest cycle for a single feed:
// fetch, parse, partition against stored identifiers, insert the new
// entries. Failures stay scoped to this feed.
type ProcessFeedTask struct {
	Task
	Feed         database.Feed
	fetcher      *feed.Fetcher
	deduplicator *feed.Deduplicator
	extractor    *feed.ContentExtractor
	feedRepo     database.FeedRepository
	entryRepo    database.EntryRepository
	scheduler    TaskSchedulerInterface
	runner       AnalysisRunner
	httpClient   *http.Client
}

func NewProcessFeedTask(f database.Feed, fetcher *feed.Fetcher, deduplicator *feed.Deduplicator,
	extractor *feed.ContentExtractor, feedRepo database.FeedRepository,
	entryRepo database.EntryRepository, scheduler TaskSchedulerInterface,
	runner AnalysisRunner, httpClient *http.Client) *ProcessFeedTask {
	return &ProcessFeedTask{
		Task:         NewTask(TaskTypeProcessFeed, f.ID),
		Feed:         f,
		fetcher:      fetcher,
		deduplicator: deduplicator,
		extractor:    extractor,
		feedRepo:     feedRepo,
		entryRepo:    entryRepo,
		scheduler:    scheduler,
		runner:       runner,
		httpClient:   httpClient,
	}
}

func (t *ProcessFeedTask) Execute(ctx context.Context) error {

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	metadata, items, err := t.fetcher.Run(ctx, t.Feed.URL)
	if err != nil {
		var fetchErr *feed.FetchError
		if errors.As(err, &fetchErr) {
			slog.Warn("Feed fetch failed", "feed", t.Feed.URL, "reason", string(fetchErr.Reason), "error", err)
		}
		return err
	}

	// Fill in a missing title from upstream; a title set at registration
	// stays as the user named it.
	if t.Feed.Title == "" && metadata.Title != "" {
		if err := t.feedRepo.UpdateFeedTitle(t.Feed.ID, metadata.Title); err != nil {
			slog.Warn("Failed to update feed title", "feed", t.Feed.ID, "error", err)
		}
	}

	known, err := t.entryRepo.GetKnownGUIDs(t.Feed.ID)
	if err != nil {
		return fmt.Errorf("failed to load known identifiers: %w", err)
	}

	dedup := t.deduplicator.Run(items, known)

	newEntries := make([]database.NewEntry, 0, len(dedup.New))
	for _, item := range dedup.New {
		content := item.Content
		if cfg.Get().ExtractContent && item.Link != "" {
			if extracted := t.extractArticle(ctx, item.Link); extracted != "" {
				content = extracted
			}
		}

		newEntries = append(newEntries, database.NewEntry{
			GUID:        item.GUID,
			Title:       item.Title,
			Link:        item.Link,
			Content:     content,
			PublishedAt: item.PublishedAt,
		})
	}

	inserted, err := t.entryRepo.InsertEntries(t.Feed.ID, newEntries)
	if err != nil {
		return fmt.Errorf("failed to store entries: %w", err)
	}

	if err := t.feedRepo.SetLastUpdated(t.Feed.ID, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to record successful update: %w", err)
	}

	if cfg.Get().AutoAnalyze {
		t.enqueueAnalysis(inserted)
	}

	slog.Info("Task completed",
		"type", "ProcessFeed",
		"feed", t.Feed.URL,
		"duration", t.GetDuration(),
		"total", len(items),
		"known", dedup.Known,
		"dropped", dedup.Dropped,
		"new", len(inserted))

	return nil
}

func (t *ProcessFeedTask) extractArticle(ctx context.Context, link string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return ""
	}
	req.Header.Set("User-Agent", cfg.Get().UserAgent)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		slog.Debug("Article fetch failed", "link", link, "error", err)
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ""
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return ""
	}

	content, err := t.extractor.Run(data)
	if err != nil {
		slog.Debug("Content extraction failed", "link", link, "error", err)
		return ""
	}

	return content
}

func (t *ProcessFeedTask) enqueueAnalysis(entries []database.Entry) {
	for _, entry := range entries {
		types := []analysis.Type{analysis.TypeSummarize}
		if t.Feed.IsSecurityFeed {
			types = append(types, analysis.TypeSecurity)
		}

		for _, analysisType := range types {
			task := NewAnalyzeEntryTask(entry.ID, analysisType, t.runner)
			if err := t.scheduler.EnqueueTask(task); err != nil {
				slog.Warn("Failed to enqueue AnalyzeEntryTask",
					"entry", entry.ID, "analysis", string(analysisType), "error", err)
			}
		}
	}
}
