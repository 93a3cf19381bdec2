package feed

import (
	"testing"
)

func TestDeduplicator_AllNew(t *testing.T) {
	deduplicator := NewDeduplicator()

	items := []Item{
		{GUID: "a", Title: "First"},
		{GUID: "b", Title: "Second"},
	}

	result := deduplicator.Run(items, map[string]struct{}{})

	if len(result.New) != 2 {
		t.Errorf("Expected 2 new items, got %d", len(result.New))
	}
	if result.Known != 0 {
		t.Errorf("Expected 0 known items, got %d", result.Known)
	}
	if result.Dropped != 0 {
		t.Errorf("Expected 0 dropped items, got %d", result.Dropped)
	}
}

func TestDeduplicator_KnownItemsSkipped(t *testing.T) {
	deduplicator := NewDeduplicator()

	items := []Item{
		{GUID: "a", Title: "Already Stored"},
		{GUID: "b", Title: "Fresh"},
	}
	known := map[string]struct{}{"a": {}}

	result := deduplicator.Run(items, known)

	if len(result.New) != 1 {
		t.Fatalf("Expected 1 new item, got %d", len(result.New))
	}
	if result.New[0].GUID != "b" {
		t.Errorf("Expected new item 'b', got: %s", result.New[0].GUID)
	}
	if result.Known != 1 {
		t.Errorf("Expected 1 known item, got %d", result.Known)
	}
}

func TestDeduplicator_DropsUnidentifiableItems(t *testing.T) {
	deduplicator := NewDeduplicator()

	items := []Item{
		{GUID: "", Title: "No identity at all"},
		{GUID: "c", Title: "Identifiable"},
	}

	result := deduplicator.Run(items, map[string]struct{}{})

	if len(result.New) != 1 {
		t.Errorf("Expected 1 new item, got %d", len(result.New))
	}
	if result.Dropped != 1 {
		t.Errorf("Expected 1 dropped item, got %d", result.Dropped)
	}
}

func TestDeduplicator_InBatchDuplicates(t *testing.T) {
	deduplicator := NewDeduplicator()

	items := []Item{
		{GUID: "a", Title: "First occurrence"},
		{GUID: "a", Title: "Repeated in same document"},
	}

	result := deduplicator.Run(items, map[string]struct{}{})

	if len(result.New) != 1 {
		t.Errorf("Expected 1 new item, got %d", len(result.New))
	}
	if result.Known != 1 {
		t.Errorf("Expected repeated item counted as known, got %d", result.Known)
	}
}

// Running the same batch against the identifiers it produced must yield
// zero new items.
func TestDeduplicator_Idempotent(t *testing.T) {
	deduplicator := NewDeduplicator()

	items := []Item{
		{GUID: "a", Title: "One"},
		{GUID: "b", Title: "Two"},
	}

	first := deduplicator.Run(items, map[string]struct{}{})
	if len(first.New) != 2 {
		t.Fatalf("Expected 2 new items on first run, got %d", len(first.New))
	}

	known := make(map[string]struct{})
	for _, item := range first.New {
		known[item.GUID] = struct{}{}
	}

	second := deduplicator.Run(items, known)
	if len(second.New) != 0 {
		t.Errorf("Expected 0 new items on second run, got %d", len(second.New))
	}
	if second.Known != 2 {
		t.Errorf("Expected 2 known items on second run, got %d", second.Known)
	}
}
