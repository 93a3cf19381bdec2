package feed

import (
	"bytes"
	"cmp"
	"fmt"
	"log/slog"

	"github.com/mmcdole/gofeed"
)

type Parser struct {
	gofeedParser *gofeed.Parser
}

func NewParser() *Parser {
	return &Parser{
		gofeedParser: gofeed.NewParser(),
	}
}

// Run parses an RSS or Atom document into feed metadata and normalized
// items. Individual items that carry no usable data are skipped and
// counted; only a document-level failure aborts the parse.
func (p *Parser) Run(data []byte) (*Metadata, []Item, error) {
	parsed, err := p.gofeedParser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	metadata := &Metadata{
		Title:       parsed.Title,
		Link:        parsed.Link,
		Description: parsed.Description,
		Language:    parsed.Language,
	}

	if parsed.UpdatedParsed != nil {
		metadata.UpdatedAt = parsed.UpdatedParsed
	}

	items := make([]Item, 0, len(parsed.Items))
	skipped := 0
	for _, item := range parsed.Items {
		if item == nil || (item.Title == "" && item.Link == "" && item.GUID == "") {
			skipped++
			continue
		}
		items = append(items, p.normalizeItem(item))
	}

	if skipped > 0 {
		slog.Debug("Skipped malformed feed items", "feed", metadata.Title, "skipped", skipped)
	}

	return metadata, items, nil
}

func (p *Parser) normalizeItem(item *gofeed.Item) Item {
	normalized := Item{
		GUID:    cmp.Or(item.GUID, item.Link),
		Title:   item.Title,
		Link:    item.Link,
		Content: cmp.Or(item.Content, item.Description),
	}

	if item.PublishedParsed != nil {
		normalized.PublishedAt = item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		normalized.PublishedAt = item.UpdatedParsed
	}

	return normalized
}
