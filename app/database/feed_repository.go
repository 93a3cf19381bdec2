package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var _ FeedRepository = (*feedRepository)(nil)

type feedRepository struct {
	db *DB
}

func NewFeedRepository(db *DB) FeedRepository {
	return &feedRepository{db: db}
}

func (r *feedRepository) UpsertFeed(url, title, category string, isSecurityFeed bool) (*Feed, error) {
	id := uuid.NewString()

	_, err := r.db.Exec(`
		INSERT INTO feeds (id, url, title, category, is_security_feed)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (url) DO UPDATE SET
			title = CASE WHEN excluded.title != '' THEN excluded.title ELSE feeds.title END,
			category = CASE WHEN excluded.category != '' THEN excluded.category ELSE feeds.category END,
			is_security_feed = excluded.is_security_feed,
			updated_at = CURRENT_TIMESTAMP
	`, id, url, title, category, isSecurityFeed)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert feed: %w", err)
	}

	feed, err := r.getFeedByURL(url)
	if err != nil {
		return nil, err
	}
	if feed == nil {
		return nil, fmt.Errorf("feed not found after upsert: %s", url)
	}

	return feed, nil
}

func (r *feedRepository) GetFeed(feedID string) (*Feed, error) {
	return r.getFeed(`WHERE id = ?`, feedID)
}

func (r *feedRepository) getFeedByURL(url string) (*Feed, error) {
	return r.getFeed(`WHERE url = ?`, url)
}

func (r *feedRepository) getFeed(where string, arg interface{}) (*Feed, error) {
	var feed Feed
	var lastUpdated sql.NullTime

	err := r.db.QueryRow(`
		SELECT id, url, title, category, is_security_feed,
		       last_updated_at, created_at, updated_at
		FROM feeds `+where, arg).Scan(
		&feed.ID, &feed.URL, &feed.Title, &feed.Category, &feed.IsSecurityFeed,
		&lastUpdated, &feed.CreatedAt, &feed.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get feed: %w", err)
	}

	if lastUpdated.Valid {
		feed.LastUpdatedAt = &lastUpdated.Time
	}

	return &feed, nil
}

func (r *feedRepository) GetFeeds() ([]Feed, error) {
	rows, err := r.db.Query(`
		SELECT id, url, title, category, is_security_feed,
		       last_updated_at, created_at, updated_at
		FROM feeds
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list feeds: %w", err)
	}
	defer rows.Close()

	var feeds []Feed
	for rows.Next() {
		var feed Feed
		var lastUpdated sql.NullTime

		err := rows.Scan(&feed.ID, &feed.URL, &feed.Title, &feed.Category,
			&feed.IsSecurityFeed, &lastUpdated, &feed.CreatedAt, &feed.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feed: %w", err)
		}

		if lastUpdated.Valid {
			feed.LastUpdatedAt = &lastUpdated.Time
		}

		feeds = append(feeds, feed)
	}

	return feeds, rows.Err()
}

func (r *feedRepository) GetFeedCount() (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM feeds`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count feeds: %w", err)
	}
	return count, nil
}

func (r *feedRepository) UpdateFeedTitle(feedID string, title string) error {
	if title == "" {
		return nil
	}

	_, err := r.db.Exec(`
		UPDATE feeds
		SET title = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, title, feedID)
	if err != nil {
		return fmt.Errorf("failed to update feed title: %w", err)
	}

	return nil
}

func (r *feedRepository) SetLastUpdated(feedID string, lastUpdated time.Time) error {
	_, err := r.db.Exec(`
		UPDATE feeds
		SET last_updated_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, lastUpdated.UTC(), feedID)
	if err != nil {
		return fmt.Errorf("failed to update last updated time: %w", err)
	}

	return nil
}
