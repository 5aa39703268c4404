package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Prompt is one entry in the reusable prompt library exposed via the
// prompts.list/prompts.use commands.
type Prompt struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Content     string   `json:"content"`
	Tags        []string `json:"tags,omitempty"`
	UsageCount  int      `json:"usageCount"`
	LastUsedAt  *int64   `json:"lastUsedAt,omitempty"`
	CreatedAt   int64    `json:"createdAt"`
	UpdatedAt   int64    `json:"updatedAt"`
}

type promptRow struct {
	ID          string
	Title       string
	Description sql.NullString
	Content     string
	Tags        sql.NullString
	UsageCount  int
	LastUsedAt  sql.NullInt64
	CreatedAt   int64
	UpdatedAt   int64
}

func (r promptRow) toPrompt() (Prompt, error) {
	p := Prompt{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description.String,
		Content:     r.Content,
		UsageCount:  r.UsageCount,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.LastUsedAt.Valid {
		v := r.LastUsedAt.Int64
		p.LastUsedAt = &v
	}
	if r.Tags.Valid && r.Tags.String != "" {
		if err := json.Unmarshal([]byte(r.Tags.String), &p.Tags); err != nil {
			return Prompt{}, err
		}
	}
	return p, nil
}

// ListPrompts returns every prompt, most recently updated first.
func (s *Store) ListPrompts() ([]Prompt, error) {
	rows, err := s.db.Query(`SELECT id, title, description, content, tags, usage_count, last_used_at, created_at, updated_at
		FROM prompts ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Prompt
	for rows.Next() {
		var r promptRow
		if err := rows.Scan(&r.ID, &r.Title, &r.Description, &r.Content, &r.Tags, &r.UsageCount, &r.LastUsedAt, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		p, err := r.toPrompt()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CreatePrompt inserts a new prompt with a fresh UUID and returns it.
func (s *Store) CreatePrompt(title, description, content string, tags []string) (Prompt, error) {
	id := uuid.New().String()
	now := time.Now().Unix()

	var tagsJSON sql.NullString
	if len(tags) > 0 {
		data, err := json.Marshal(tags)
		if err != nil {
			return Prompt{}, err
		}
		tagsJSON = sql.NullString{String: string(data), Valid: true}
	}

	_, err := s.db.Exec(
		`INSERT INTO prompts (id, title, description, content, tags, usage_count, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 0, ?, ?)`,
		id, title, description, content, tagsJSON, now, now,
	)
	if err != nil {
		return Prompt{}, err
	}
	return Prompt{
		ID: id, Title: title, Description: description, Content: content,
		Tags: tags, CreatedAt: now, UpdatedAt: now,
	}, nil
}

// UpdatePrompt overwrites title/description/content/tags for id.
func (s *Store) UpdatePrompt(id, title, description, content string, tags []string) error {
	now := time.Now().Unix()
	var tagsJSON sql.NullString
	if len(tags) > 0 {
		data, err := json.Marshal(tags)
		if err != nil {
			return err
		}
		tagsJSON = sql.NullString{String: string(data), Valid: true}
	}
	_, err := s.db.Exec(
		`UPDATE prompts SET title = ?, description = ?, content = ?, tags = ?, updated_at = ? WHERE id = ?`,
		title, description, content, tagsJSON, now, id,
	)
	return err
}

// DeletePrompt removes id. Deleting an id that doesn't exist is not an
// error.
func (s *Store) DeletePrompt(id string) error {
	_, err := s.db.Exec("DELETE FROM prompts WHERE id = ?", id)
	return err
}

// RecordUsage increments id's usage_count and stamps last_used_at, for
// the prompts.use command.
func (s *Store) RecordUsage(id string) error {
	_, err := s.db.Exec(
		"UPDATE prompts SET usage_count = usage_count + 1, last_used_at = ? WHERE id = ?",
		time.Now().Unix(), id,
	)
	return err
}
