package feed

import (
	"fmt"
	"time"
)

type Metadata struct {
	Title       string
	Link        string
	Description string
	Language    string
	UpdatedAt   *time.Time
}

// Item is a normalized fetched entry. GUID is the external identifier:
// the feed-provided guid, or the link when the guid is absent. Items with
// neither cannot be deduplicated and are dropped by the Deduplicator.
type Item struct {
	GUID        string
	Title       string
	Link        string
	Content     string
	PublishedAt *time.Time
}

type FetchReason string

const (
	ReasonNetwork FetchReason = "network"
	ReasonTimeout FetchReason = "timeout"
	ReasonParse   FetchReason = "parse"
)

// FetchError is a per-feed failure. The scheduler records it and moves on
// to the next feed; it is never fatal to a fetch cycle.
type FetchError struct {
	Reason FetchReason
	URL    string
	Err    error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch failed (%s) for %s: %v", e.Reason, e.URL, e.Err)
	}
	return fmt.Sprintf("fetch failed (%s) for %s", e.Reason, e.URL)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
