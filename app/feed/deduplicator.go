package feed

import (
	"log/slog"
)

// Deduplicator partitions freshly fetched items against the stored
// identifier set for a feed. Re-running the same cycle against unchanged
// upstream content yields zero new items.
type Deduplicator struct{}

func NewDeduplicator() *Deduplicator {
	return &Deduplicator{}
}

type DedupResult struct {
	New     []Item
	Known   int
	Dropped int // Items with no usable external identifier
}

func (d *Deduplicator) Run(items []Item, known map[string]struct{}) DedupResult {
	result := DedupResult{}
	seen := make(map[string]struct{}, len(items))

	for _, item := range items {
		if item.GUID == "" {
			// No guid and no link: the item cannot be recognized on a
			// later cycle, so storing it would duplicate forever.
			result.Dropped++
			slog.Debug("Dropping unidentifiable item", "title", item.Title)
			continue
		}

		if _, ok := known[item.GUID]; ok {
			result.Known++
			continue
		}

		// Feeds occasionally repeat an item within one document.
		if _, ok := seen[item.GUID]; ok {
			result.Known++
			continue
		}
		seen[item.GUID] = struct{}{}

		result.New = append(result.New, item)
	}

	return result
}
