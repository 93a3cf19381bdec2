package database

import (
	"time"
)

type Feed struct {
	ID             string
	URL            string
	Title          string
	Category       string
	IsSecurityFeed bool
	LastUpdatedAt  *time.Time // Set only after a successful fetch cycle
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Entry struct {
	ID          string
	FeedID      string
	GUID        string // External identifier: feed-provided guid, or link when absent
	Title       string
	Link        string
	Content     string
	PublishedAt *time.Time
	IsRead      bool
	CreatedAt   time.Time
}

// NewEntry carries a normalized fetched entry into the store.
type NewEntry struct {
	GUID        string
	Title       string
	Link        string
	Content     string
	PublishedAt *time.Time
}

type Summary struct {
	ID          string
	EntryID     string
	Content     string
	GeneratedAt time.Time
}

type DetailedAnalysis struct {
	ID               string
	EntryID          string
	KeyPoints        string
	TechnicalDetails string
	ImpactAssessment string
	RelatedConcepts  string
	Recommendations  string
	GeneratedAt      time.Time
}

type IOC struct {
	ID           string
	EntryID      string
	Type         string
	Value        string
	Context      string
	DiscoveredAt time.Time
}

type SigmaRule struct {
	ID          string
	EntryID     string
	Title       string
	Description string
	Status      string
	Level       string
	Detection   string // YAML-encoded detection section
	Raw         string // Full rule document as generated
	GeneratedAt time.Time
}

// SecurityAnalysis is the composite read model for an entry's security
// results: the extracted indicators and, when generated, the Sigma rule.
type SecurityAnalysis struct {
	ID          string
	EntryID     string
	IOCs        []IOC
	SigmaRule   *SigmaRule
	GeneratedAt time.Time
}
