package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/xiaot623/devchat/prompt"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db      *sql.DB
	factory PromptFactory
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store. The factory reconstructs
// backend-specific prompts from persisted records.
func NewSQLiteStore(dsn string, factory PromptFactory) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db, factory: factory}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS prompts (
			hash TEXT PRIMARY KEY,
			model TEXT NOT NULL,
			user_name TEXT NOT NULL,
			user_email TEXT NOT NULL,
			parent TEXT,
			root_hash TEXT NOT NULL,
			refs TEXT,
			timestamp INTEGER NOT NULL,
			request_tokens INTEGER NOT NULL,
			response_tokens INTEGER NOT NULL,
			messages TEXT NOT NULL,
			responses TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_prompts_timestamp ON prompts(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_prompts_root ON prompts(root_hash, timestamp)`,
		`CREATE TABLE IF NOT EXISTS topics (
			root_hash TEXT PRIMARY KEY,
			latest_hash TEXT NOT NULL,
			title TEXT NOT NULL,
			updated_at INTEGER NOT NULL,
			FOREIGN KEY (root_hash) REFERENCES prompts(hash)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_topics_updated ON topics(updated_at)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// StorePrompt finalizes and persists a prompt, then updates its topic.
func (s *SQLiteStore) StorePrompt(ctx context.Context, p prompt.Prompt) error {
	hash := p.FinalizeHash()
	if hash == "" {
		return fmt.Errorf("cannot store incomplete prompt")
	}

	rootHash := hash
	if parent := p.Parent(); parent != "" {
		var root sql.NullString
		err := s.db.QueryRowContext(ctx,
			`SELECT root_hash FROM prompts WHERE hash = ?`, parent).Scan(&root)
		if err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("failed to resolve topic root: %w", err)
		}
		if root.Valid {
			rootHash = root.String
		}
	}

	messages, err := json.Marshal(p.Messages())
	if err != nil {
		return fmt.Errorf("failed to serialize messages: %w", err)
	}
	responses, err := json.Marshal(p.Responses())
	if err != nil {
		return fmt.Errorf("failed to serialize responses: %w", err)
	}
	refs, err := json.Marshal(p.References())
	if err != nil {
		return fmt.Errorf("failed to serialize references: %w", err)
	}

	userName, userEmail := p.Identity()
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO prompts
		 (hash, model, user_name, user_email, parent, root_hash, refs,
		  timestamp, request_tokens, response_tokens, messages, responses)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		hash, p.Model(), userName, userEmail, nullable(p.Parent()), rootHash,
		string(refs), p.Timestamp(), p.RequestTokens(), p.ResponseTokens(),
		string(messages), string(responses))
	if err != nil {
		return fmt.Errorf("failed to store prompt: %w", err)
	}

	title := p.Request().Content
	if runes := []rune(title); len(runes) > 100 {
		title = string(runes[:100])
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO topics (root_hash, latest_hash, title, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(root_hash) DO UPDATE SET latest_hash = ?, updated_at = ?`,
		rootHash, hash, title, p.Timestamp(), hash, p.Timestamp())
	if err != nil {
		return fmt.Errorf("failed to update topic: %w", err)
	}

	return nil
}

// GetPrompt resolves a hash to a previously persisted prompt.
func (s *SQLiteStore) GetPrompt(ctx context.Context, hash string) (prompt.Prompt, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT hash, model, user_name, user_email, parent, refs,
		        timestamp, request_tokens, response_tokens, messages, responses
		 FROM prompts WHERE hash = ?`, hash)

	var rec prompt.Record
	var parent, refs sql.NullString
	var messages, responses string
	err := row.Scan(&rec.Hash, &rec.Model, &rec.UserName, &rec.UserEmail,
		&parent, &refs, &rec.Timestamp, &rec.RequestTokens, &rec.ResponseTokens,
		&messages, &responses)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("prompt %s: %w", hash, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load prompt: %w", err)
	}

	if parent.Valid {
		rec.Parent = parent.String
	}
	if refs.Valid && refs.String != "" {
		if err := json.Unmarshal([]byte(refs.String), &rec.References); err != nil {
			return nil, fmt.Errorf("failed to parse references: %w", err)
		}
	}
	if err := json.Unmarshal([]byte(messages), &rec.Messages); err != nil {
		return nil, fmt.Errorf("failed to parse messages: %w", err)
	}
	if err := json.Unmarshal([]byte(responses), &rec.Responses); err != nil {
		return nil, fmt.Errorf("failed to parse responses: %w", err)
	}

	p := s.factory(rec.Model, rec.UserName, rec.UserEmail)
	p.Restore(rec)
	return p, nil
}

// SelectRecent returns shortlogs of the most recent prompts, newest first.
func (s *SQLiteStore) SelectRecent(ctx context.Context, limit int) ([]*prompt.Shortlog, error) {
	query := `SELECT hash FROM prompts ORDER BY timestamp DESC, hash`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list prompts: %w", err)
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			return nil, err
		}
		hashes = append(hashes, hash)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	shortlogs := make([]*prompt.Shortlog, 0, len(hashes))
	for _, hash := range hashes {
		p, err := s.GetPrompt(ctx, hash)
		if err != nil {
			return nil, err
		}
		shortlog, err := p.Shortlog()
		if err != nil {
			return nil, fmt.Errorf("failed to summarize prompt %s: %w", hash, err)
		}
		shortlogs = append(shortlogs, shortlog)
	}
	return shortlogs, nil
}

// ListTopics returns conversation topics, most recently active first.
func (s *SQLiteStore) ListTopics(ctx context.Context, limit int) ([]Topic, error) {
	query := `SELECT root_hash, latest_hash, title, updated_at
	          FROM topics ORDER BY updated_at DESC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list topics: %w", err)
	}
	defer rows.Close()

	var topics []Topic
	for rows.Next() {
		var topic Topic
		if err := rows.Scan(&topic.RootHash, &topic.LatestHash, &topic.Title, &topic.UpdatedAt); err != nil {
			return nil, err
		}
		topics = append(topics, topic)
	}
	return topics, rows.Err()
}

func nullable(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
