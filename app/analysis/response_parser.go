package analysis

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

// ResponseParser turns free-text model output into typed structures.
// Model output is natural language with no format guarantee, so every
// parse here is defensive: partial structure is preferred over nothing.
type ResponseParser struct{}

func NewResponseParser() *ResponseParser {
	return &ResponseParser{}
}

// Reasoning models wrap chain-of-thought in think tags; it is never part
// of the answer.
var thinkingRe = regexp.MustCompile(`(?s)<think>.*?</think>`)

func stripThinking(text string) string {
	return thinkingRe.ReplaceAllString(text, "")
}

var summaryPreambleRe = regexp.MustCompile(`(?i)^(?:sure[,.!]?\s+)?(?:here(?:'s| is) (?:a |the )?(?:brief |concise |short )?summary[^:\n]*:|summary:)\s*`)

// ParseSummary strips boilerplate preambles and surrounding noise; the
// remaining text is used verbatim.
func (p *ResponseParser) ParseSummary(raw string) string {
	text := strings.TrimSpace(stripThinking(raw))
	text = summaryPreambleRe.ReplaceAllString(text, "")
	text = strings.Trim(strings.TrimSpace(text), `"`)
	return strings.TrimSpace(text)
}

type sectionSpec struct {
	name    string
	aliases []string
}

var detailedSections = []sectionSpec{
	{"key_points", []string{"key points", "key findings"}},
	{"technical_details", []string{"technical details"}},
	{"impact_assessment", []string{"impact assessment", "impact"}},
	{"related_concepts", []string{"related concepts", "related technologies"}},
	{"recommendations", []string{"recommendations", "conclusions"}},
}

var headerPrefixRe = regexp.MustCompile(`^\s*(?:#+\s*|\d+[.)]\s*|[-*•]\s*)*`)

// ParseDetailed locates the five expected section headers and captures
// each section's text until the next header. A missing section yields an
// empty string; output with no recognizable section at all is unusable.
func (p *ResponseParser) ParseDetailed(raw string) (*DetailedResult, error) {
	text := strings.TrimSpace(stripThinking(raw))
	if text == "" {
		return nil, fmt.Errorf("%w: empty response", ErrUnusableOutput)
	}

	captured := make(map[string]*strings.Builder)
	var current *strings.Builder

	for _, line := range strings.Split(text, "\n") {
		if name, remainder, ok := matchSectionHeader(line); ok {
			builder, exists := captured[name]
			if !exists {
				builder = &strings.Builder{}
				captured[name] = builder
			}
			current = builder
			if remainder != "" {
				current.WriteString(remainder + "\n")
			}
			continue
		}
		if current != nil {
			current.WriteString(line + "\n")
		}
	}

	if len(captured) == 0 {
		return nil, fmt.Errorf("%w: no recognizable sections", ErrUnusableOutput)
	}

	result := &DetailedResult{}
	for _, spec := range detailedSections {
		content := ""
		if builder, ok := captured[spec.name]; ok {
			content = strings.TrimSpace(builder.String())
		}
		if content == "" {
			result.MissingSections = append(result.MissingSections, spec.name)
		}

		switch spec.name {
		case "key_points":
			result.KeyPoints = content
		case "technical_details":
			result.TechnicalDetails = content
		case "impact_assessment":
			result.ImpactAssessment = content
		case "related_concepts":
			result.RelatedConcepts = content
		case "recommendations":
			result.Recommendations = content
		}
	}

	return result, nil
}

// matchSectionHeader reports whether a line is one of the expected
// section headers, tolerating numbering, markdown markers and casing.
// Content following the header's colon on the same line is returned.
func matchSectionHeader(line string) (string, string, bool) {
	cleaned := headerPrefixRe.ReplaceAllString(strings.TrimSpace(line), "")
	cleaned = strings.Trim(cleaned, "*_ ")
	lower := strings.ToLower(cleaned)

	for _, spec := range detailedSections {
		for _, alias := range spec.aliases {
			if !strings.HasPrefix(lower, alias) {
				continue
			}

			rest := strings.TrimSpace(cleaned[len(alias):])
			rest = strings.Trim(rest, "*_")

			if rest == "" {
				return spec.name, "", true
			}
			if strings.HasPrefix(rest, ":") {
				return spec.name, strings.TrimSpace(strings.TrimPrefix(rest, ":")), true
			}
			// "Key points and findings" style extensions still read as a
			// header; a prose sentence does not.
			if idx := strings.Index(rest, ":"); idx >= 0 && idx <= 30 {
				return spec.name, strings.TrimSpace(rest[idx+1:]), true
			}
			if len(rest) <= 30 && !strings.Contains(rest, ".") {
				return spec.name, "", true
			}
		}
	}

	return "", "", false
}

var (
	hexRe    = regexp.MustCompile(`^[A-Fa-f0-9]+$`)
	domainRe = regexp.MustCompile(`^(?:[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)+[a-zA-Z]{2,}$`)
	bulletRe = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s+`)
)

// Threat reports commonly defang indicators so they are not clickable.
var refanger = strings.NewReplacer(
	"hxxps://", "https://",
	"hxxp://", "http://",
	"[.]", ".",
	"(.)", ".",
	"{.}", ".",
	"[:]", ":",
	"[://]", "://",
)

// Header and placeholder words that show up in list output but are not
// indicators themselves.
var iocNoiseWords = map[string]struct{}{
	"ioc": {}, "iocs": {}, "indicator": {}, "indicators": {},
	"type": {}, "value": {}, "context": {}, "confidence": {},
	"ip": {}, "domain": {}, "url": {}, "hash": {}, "other": {},
	"none": {}, "n/a": {}, "na": {}, "unknown": {}, "no": {},
}

// ParseIOCs extracts indicators from a delimited list or table. Every
// candidate is validated by pattern; a list entry matching no pattern is
// kept as type "other" rather than dropped. Duplicates collapse.
func (p *ResponseParser) ParseIOCs(raw string) []ParsedIOC {
	text := stripThinking(raw)

	var iocs []ParsedIOC
	seen := make(map[string]struct{})

	add := func(iocType IOCType, value, context string) {
		key := string(iocType) + "|" + strings.ToLower(value)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		iocs = append(iocs, ParsedIOC{Type: iocType, Value: value, Context: context})
	}

	for _, line := range strings.Split(text, "\n") {
		context := strings.TrimSpace(line)
		if context == "" || isTableRule(context) {
			continue
		}

		structured := bulletRe.MatchString(context) || strings.Contains(context, "|")
		body := bulletRe.ReplaceAllString(context, "")
		body = strings.Trim(body, "|")

		tokens := strings.FieldsFunc(body, func(r rune) bool {
			return r == ' ' || r == '\t' || r == ',' || r == ';' || r == '|'
		})

		matched := false
		for _, token := range tokens {
			if iocType, value, ok := classifyIndicator(token); ok {
				add(iocType, value, context)
				matched = true
			}
		}

		// A list entry that matched nothing is still an indicator claim
		// by the model; keep its value rather than lose recall.
		if !matched && structured {
			if value := otherCandidate(body); value != "" {
				add(IOCTypeOther, value, context)
			}
		}
	}

	return iocs
}

// Entries arrive as "value - context note" or table cells; the value is
// whatever precedes the first separator.
var iocSeparatorRe = regexp.MustCompile(`\s+-\s+|\s*–\s*|\s*,\s*|\s*\|\s*`)

// otherCandidate salvages the value of a structured entry whose tokens
// matched no pattern. Leading noise segments (table type labels) are
// skipped; a candidate with internal spaces is prose, not an indicator.
func otherCandidate(body string) string {
	for _, segment := range iocSeparatorRe.Split(body, -1) {
		candidate := strings.TrimSpace(segment)
		if candidate == "" || strings.ContainsAny(candidate, " \t") {
			return ""
		}
		value := cleanToken(candidate)
		if value == "" {
			return ""
		}
		if _, noise := iocNoiseWords[strings.ToLower(value)]; noise {
			continue
		}
		return value
	}
	return ""
}

func isTableRule(line string) bool {
	trimmed := strings.Trim(line, "| ")
	if trimmed == "" {
		return true
	}
	return strings.Trim(trimmed, "-:") == ""
}

func cleanToken(token string) string {
	value := refanger.Replace(token)
	value = strings.Trim(value, `.,;:!?"'()[]<>*`+"`")
	return norm.NFC.String(value)
}

// classifyIndicator validates a candidate token against the closed type
// set. Precision order: ip, url, hash, domain.
func classifyIndicator(token string) (IOCType, string, bool) {
	value := cleanToken(token)
	if value == "" {
		return "", "", false
	}

	if ip := net.ParseIP(value); ip != nil {
		return IOCTypeIP, value, true
	}

	lower := strings.ToLower(value)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		if parsed, err := url.Parse(value); err == nil && parsed.Host != "" {
			return IOCTypeURL, value, true
		}
	}

	if hexRe.MatchString(value) {
		switch len(value) {
		case 32, 40, 64: // md5, sha1, sha256
			return IOCTypeHash, lower, true
		}
	}

	if domainRe.MatchString(value) {
		return IOCTypeDomain, lower, true
	}

	return "", "", false
}

var (
	fenceRe        = regexp.MustCompile("(?s)```(?:ya?ml)?[ \t]*\n(.*?)```")
	sigmaHeadingRe = regexp.MustCompile(`(?im)^\s*(?:#+\s*|\*\*)?sigma\s+rule\b`)
	titleLineRe    = regexp.MustCompile(`(?m)^title:`)
)

type sigmaDoc struct {
	Title       string                 `yaml:"title"`
	Description string                 `yaml:"description"`
	Status      string                 `yaml:"status"`
	Level       string                 `yaml:"level"`
	Detection   map[string]interface{} `yaml:"detection"`
}

// ParseSigmaRule extracts and structurally validates a Sigma rule from
// model output. No rule document at all is a valid absence (the model
// may decline); a document missing required fields is a failure and is
// never persisted.
func (p *ResponseParser) ParseSigmaRule(raw string) (*ParsedRule, error) {
	text := strings.TrimSpace(stripThinking(raw))

	doc := ""
	if m := fenceRe.FindStringSubmatch(text); m != nil {
		doc = m[1]
	} else if loc := titleLineRe.FindStringIndex(text); loc != nil {
		doc = text[loc[0]:]
	}

	doc = strings.TrimSpace(doc)
	if doc == "" {
		return nil, nil
	}

	var rule sigmaDoc
	if err := yaml.Unmarshal([]byte(doc), &rule); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRuleOutput, err)
	}

	var missing []string
	if strings.TrimSpace(rule.Title) == "" {
		missing = append(missing, "title")
	}
	if strings.TrimSpace(rule.Description) == "" {
		missing = append(missing, "description")
	}
	if strings.TrimSpace(rule.Status) == "" {
		missing = append(missing, "status")
	}
	if strings.TrimSpace(rule.Level) == "" {
		missing = append(missing, "level")
	}
	if len(rule.Detection) == 0 {
		missing = append(missing, "detection")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %s", ErrMalformedRuleOutput, strings.Join(missing, ", "))
	}

	detection, err := yaml.Marshal(rule.Detection)
	if err != nil {
		return nil, fmt.Errorf("%w: detection section not serializable: %v", ErrMalformedRuleOutput, err)
	}

	return &ParsedRule{
		Title:       rule.Title,
		Description: rule.Description,
		Status:      rule.Status,
		Level:       rule.Level,
		Detection:   string(detection),
		Raw:         doc,
	}, nil
}

// ParseSecurity parses a combined security-analysis response: an
// indicator list followed by an optional Sigma rule. A malformed rule
// fails the whole parse so no partial result reaches the store.
func (p *ResponseParser) ParseSecurity(raw string) (*SecurityResult, error) {
	text := stripThinking(raw)

	iocPart := text
	if loc := fenceRe.FindStringIndex(text); loc != nil {
		iocPart = text[:loc[0]]
	} else if loc := sigmaHeadingRe.FindStringIndex(text); loc != nil {
		iocPart = text[:loc[0]]
	}

	rule, err := p.ParseSigmaRule(text)
	if err != nil {
		return nil, err
	}

	return &SecurityResult{
		IOCs: p.ParseIOCs(iocPart),
		Rule: rule,
	}, nil
}
