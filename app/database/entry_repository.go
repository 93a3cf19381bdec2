package database

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

var _ EntryRepository = (*entryRepository)(nil)

type entryRepository struct {
	db *DB
}

func NewEntryRepository(db *DB) EntryRepository {
	return &entryRepository{db: db}
}

func (r *entryRepository) GetEntry(entryID string) (*Entry, error) {
	var entry Entry
	var publishedAt sql.NullTime

	err := r.db.QueryRow(`
		SELECT id, feed_id, guid, title, link, content,
		       published_at, is_read, created_at
		FROM entries
		WHERE id = ?
	`, entryID).Scan(
		&entry.ID, &entry.FeedID, &entry.GUID, &entry.Title, &entry.Link,
		&entry.Content, &publishedAt, &entry.IsRead, &entry.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entry: %w", err)
	}

	if publishedAt.Valid {
		entry.PublishedAt = &publishedAt.Time
	}

	return &entry, nil
}

func (r *entryRepository) GetEntriesByFeed(feedID string, limit int) ([]Entry, error) {
	rows, err := r.db.Query(`
		SELECT id, feed_id, guid, title, link, content,
		       published_at, is_read, created_at
		FROM entries
		WHERE feed_id = ?
		ORDER BY COALESCE(published_at, created_at) DESC
		LIMIT ?
	`, feedID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		var publishedAt sql.NullTime

		err := rows.Scan(&entry.ID, &entry.FeedID, &entry.GUID, &entry.Title,
			&entry.Link, &entry.Content, &publishedAt, &entry.IsRead, &entry.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}

		if publishedAt.Valid {
			entry.PublishedAt = &publishedAt.Time
		}

		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

func (r *entryRepository) GetEntryCount(feedID string) (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM entries WHERE feed_id = ?`, feedID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}
	return count, nil
}

func (r *entryRepository) GetTotalEntryCount() (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM entries`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}
	return count, nil
}

func (r *entryRepository) GetKnownGUIDs(feedID string) (map[string]struct{}, error) {
	rows, err := r.db.Query(`SELECT guid FROM entries WHERE feed_id = ?`, feedID)
	if err != nil {
		return nil, fmt.Errorf("failed to get known identifiers: %w", err)
	}
	defer rows.Close()

	known := make(map[string]struct{})
	for rows.Next() {
		var guid string
		if err := rows.Scan(&guid); err != nil {
			return nil, fmt.Errorf("failed to scan identifier: %w", err)
		}
		known[guid] = struct{}{}
	}

	return known, rows.Err()
}

func (r *entryRepository) InsertEntries(feedID string, entries []NewEntry) ([]Entry, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var inserted []Entry
	for _, entry := range entries {
		id := uuid.NewString()

		// Content is captured once on first sighting; a concurrent
		// cycle that got there first wins and this row is skipped.
		res, err := tx.Exec(`
			INSERT INTO entries (id, feed_id, guid, title, link, content, published_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (feed_id, guid) DO NOTHING
		`, id, feedID, entry.GUID, entry.Title, entry.Link, entry.Content, entry.PublishedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to insert entry: %w", err)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("failed to read insert result: %w", err)
		}
		if affected == 0 {
			continue
		}

		inserted = append(inserted, Entry{
			ID:          id,
			FeedID:      feedID,
			GUID:        entry.GUID,
			Title:       entry.Title,
			Link:        entry.Link,
			Content:     entry.Content,
			PublishedAt: entry.PublishedAt,
		})
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit entries: %w", err)
	}

	return inserted, nil
}

func (r *entryRepository) MarkRead(entryID string, isRead bool) error {
	_, err := r.db.Exec(`UPDATE entries SET is_read = ? WHERE id = ?`, isRead, entryID)
	if err != nil {
		return fmt.Errorf("failed to update read flag: %w", err)
	}
	return nil
}
