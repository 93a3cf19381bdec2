package database

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

var _ AnalysisRepository = (*analysisRepository)(nil)

type analysisRepository struct {
	db *DB
}

func NewAnalysisRepository(db *DB) AnalysisRepository {
	return &analysisRepository{db: db}
}

func (r *analysisRepository) GetSummary(entryID string) (*Summary, error) {
	var summary Summary

	err := r.db.QueryRow(`
		SELECT id, entry_id, content, generated_at
		FROM summaries
		WHERE entry_id = ?
	`, entryID).Scan(&summary.ID, &summary.EntryID, &summary.Content, &summary.GeneratedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get summary: %w", err)
	}

	return &summary, nil
}

func (r *analysisRepository) GetDetailedAnalysis(entryID string) (*DetailedAnalysis, error) {
	var analysis DetailedAnalysis

	err := r.db.QueryRow(`
		SELECT id, entry_id, key_points, technical_details, impact_assessment,
		       related_concepts, recommendations, generated_at
		FROM detailed_analyses
		WHERE entry_id = ?
	`, entryID).Scan(&analysis.ID, &analysis.EntryID, &analysis.KeyPoints,
		&analysis.TechnicalDetails, &analysis.ImpactAssessment,
		&analysis.RelatedConcepts, &analysis.Recommendations, &analysis.GeneratedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get detailed analysis: %w", err)
	}

	return &analysis, nil
}

func (r *analysisRepository) GetSecurityAnalysis(entryID string) (*SecurityAnalysis, error) {
	var analysis SecurityAnalysis

	err := r.db.QueryRow(`
		SELECT id, entry_id, generated_at
		FROM security_analyses
		WHERE entry_id = ?
	`, entryID).Scan(&analysis.ID, &analysis.EntryID, &analysis.GeneratedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get security analysis: %w", err)
	}

	rows, err := r.db.Query(`
		SELECT id, entry_id, type, value, context, discovered_at
		FROM iocs
		WHERE entry_id = ?
		ORDER BY type, value
	`, entryID)
	if err != nil {
		return nil, fmt.Errorf("failed to get IOCs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ioc IOC
		err := rows.Scan(&ioc.ID, &ioc.EntryID, &ioc.Type, &ioc.Value,
			&ioc.Context, &ioc.DiscoveredAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan IOC: %w", err)
		}
		analysis.IOCs = append(analysis.IOCs, ioc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var rule SigmaRule
	err = r.db.QueryRow(`
		SELECT id, entry_id, title, description, status, level, detection, raw, generated_at
		FROM sigma_rules
		WHERE entry_id = ?
	`, entryID).Scan(&rule.ID, &rule.EntryID, &rule.Title, &rule.Description,
		&rule.Status, &rule.Level, &rule.Detection, &rule.Raw, &rule.GeneratedAt)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to get sigma rule: %w", err)
	}
	if err == nil {
		analysis.SigmaRule = &rule
	}

	return &analysis, nil
}

func (r *analysisRepository) ReplaceSummary(entryID string, content string) error {
	_, err := r.db.Exec(`
		INSERT INTO summaries (id, entry_id, content)
		VALUES (?, ?, ?)
		ON CONFLICT (entry_id) DO UPDATE SET
			content = excluded.content,
			generated_at = CURRENT_TIMESTAMP
	`, uuid.NewString(), entryID, content)
	if err != nil {
		return fmt.Errorf("failed to store summary: %w", err)
	}

	return nil
}

func (r *analysisRepository) ReplaceDetailedAnalysis(entryID string, analysis DetailedAnalysis) error {
	_, err := r.db.Exec(`
		INSERT INTO detailed_analyses (
			id, entry_id, key_points, technical_details,
			impact_assessment, related_concepts, recommendations
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (entry_id) DO UPDATE SET
			key_points = excluded.key_points,
			technical_details = excluded.technical_details,
			impact_assessment = excluded.impact_assessment,
			related_concepts = excluded.related_concepts,
			recommendations = excluded.recommendations,
			generated_at = CURRENT_TIMESTAMP
	`, uuid.NewString(), entryID, analysis.KeyPoints, analysis.TechnicalDetails,
		analysis.ImpactAssessment, analysis.RelatedConcepts, analysis.Recommendations)
	if err != nil {
		return fmt.Errorf("failed to store detailed analysis: %w", err)
	}

	return nil
}

// ReplaceSecurityAnalysis fully replaces the prior security result for the
// entry in one transaction, so readers never observe a mix of old and new
// indicators or an old rule paired with new IOCs.
func (r *analysisRepository) ReplaceSecurityAnalysis(entryID string, iocs []IOC, rule *SigmaRule) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO security_analyses (id, entry_id)
		VALUES (?, ?)
		ON CONFLICT (entry_id) DO UPDATE SET
			generated_at = CURRENT_TIMESTAMP
	`, uuid.NewString(), entryID)
	if err != nil {
		return fmt.Errorf("failed to store security analysis: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM iocs WHERE entry_id = ?`, entryID); err != nil {
		return fmt.Errorf("failed to clear prior IOCs: %w", err)
	}

	for _, ioc := range iocs {
		_, err := tx.Exec(`
			INSERT INTO iocs (id, entry_id, type, value, context)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (entry_id, type, value) DO NOTHING
		`, uuid.NewString(), entryID, ioc.Type, ioc.Value, ioc.Context)
		if err != nil {
			return fmt.Errorf("failed to insert IOC: %w", err)
		}
	}

	if _, err := tx.Exec(`DELETE FROM sigma_rules WHERE entry_id = ?`, entryID); err != nil {
		return fmt.Errorf("failed to clear prior sigma rule: %w", err)
	}

	if rule != nil {
		_, err := tx.Exec(`
			INSERT INTO sigma_rules (id, entry_id, title, description, status, level, detection, raw)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, uuid.NewString(), entryID, rule.Title, rule.Description,
			rule.Status, rule.Level, rule.Detection, rule.Raw)
		if err != nil {
			return fmt.Errorf("failed to insert sigma rule: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit security analysis: %w", err)
	}

	return nil
}
