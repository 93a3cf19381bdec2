package analysis

import (
	"errors"
)

type Type string

const (
	TypeSummarize Type = "summarize"
	TypeDetailed  Type = "analyze"
	TypeSecurity  Type = "security"
)

func (t Type) Valid() bool {
	switch t {
	case TypeSummarize, TypeDetailed, TypeSecurity:
		return true
	}
	return false
}

var (
	// ErrInapplicableAnalysis: security analysis requested for an entry
	// whose feed is not flagged as a security feed.
	ErrInapplicableAnalysis = errors.New("analysis not applicable to this entry")

	// ErrMalformedRuleOutput: the model's Sigma output could not be
	// parsed into a structurally complete rule. Nothing is persisted;
	// the caller may re-invoke the analysis.
	ErrMalformedRuleOutput = errors.New("malformed sigma rule output")

	// ErrUnusableOutput: the model produced text with no recognizable
	// structure at all. Distinct from a partial parse, which succeeds.
	ErrUnusableOutput = errors.New("model output is unusable")

	ErrEntryNotFound = errors.New("entry not found")
)

type IOCType string

const (
	IOCTypeIP     IOCType = "ip"
	IOCTypeDomain IOCType = "domain"
	IOCTypeURL    IOCType = "url"
	IOCTypeHash   IOCType = "hash"
	IOCTypeOther  IOCType = "other"
)

type ParsedIOC struct {
	Type    IOCType
	Value   string
	Context string
}

// DetailedResult is the parse of a detailed-analysis response. A missing
// section is an empty string; MissingSections records which ones, so
// callers can tell a partial parse from a complete one.
type DetailedResult struct {
	KeyPoints        string
	TechnicalDetails string
	ImpactAssessment string
	RelatedConcepts  string
	Recommendations  string

	MissingSections []string
}

func (r *DetailedResult) Complete() bool {
	return len(r.MissingSections) == 0
}

// ParsedRule is a structurally validated Sigma rule. Detection holds the
// re-serialized detection section; Raw is the document as generated.
type ParsedRule struct {
	Title       string
	Description string
	Status      string
	Level       string
	Detection   string
	Raw         string
}

type SecurityResult struct {
	IOCs []ParsedIOC
	Rule *ParsedRule
}

// Result is what an analysis run hands back to the caller. Exactly one
// of Summary, Detailed, Security is set, matching Type.
type Result struct {
	EntryID string
	Type    Type

	Summary  string
	Detailed *DetailedResult
	Security *SecurityResult
}

// HasIOCs reports whether a security run extracted any indicators.
// Callers use it to decide presentation focus.
func (r *Result) HasIOCs() bool {
	return r.Security != nil && len(r.Security.IOCs) > 0
}
