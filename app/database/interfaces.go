package database

import (
	"time"
)

type FeedRepository interface {
	// UpsertFeed registers a feed by URL. An existing feed keeps its
	// identity; the security flag, title and category are refreshed.
	UpsertFeed(url, title, category string, isSecurityFeed bool) (*Feed, error)
	GetFeed(feedID string) (*Feed, error)
	GetFeeds() ([]Feed, error)
	GetFeedCount() (int, error)

	UpdateFeedTitle(feedID string, title string) error
	SetLastUpdated(feedID string, lastUpdated time.Time) error
}

type EntryRepository interface {
	GetEntry(entryID string) (*Entry, error)
	GetEntriesByFeed(feedID string, limit int) ([]Entry, error)
	GetEntryCount(feedID string) (int, error)
	GetTotalEntryCount() (int, error)

	// GetKnownGUIDs returns the set of external identifiers already
	// stored for a feed, used by the deduplicator.
	GetKnownGUIDs(feedID string) (map[string]struct{}, error)

	// InsertEntries stores first-sighted entries. Entries whose
	// (feed, guid) already exists are skipped, never overwritten.
	InsertEntries(feedID string, entries []NewEntry) ([]Entry, error)

	MarkRead(entryID string, isRead bool) error
}

type AnalysisRepository interface {
	GetSummary(entryID string) (*Summary, error)
	GetDetailedAnalysis(entryID string) (*DetailedAnalysis, error)
	GetSecurityAnalysis(entryID string) (*SecurityAnalysis, error)

	// Replace* methods overwrite any prior result of the same analysis
	// type for the entry as a single atomic write.
	ReplaceSummary(entryID string, content string) error
	ReplaceDetailedAnalysis(entryID string, analysis DetailedAnalysis) error
	ReplaceSecurityAnalysis(entryID string, iocs []IOC, rule *SigmaRule) error
}
