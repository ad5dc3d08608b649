package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/sadopc/issuedesk/internal/model"
)

func (s *Store) ListTags() ([]model.Tag, error) {
	rows, err := s.db.Query(`SELECT id, name FROM tags ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	tags := []model.Tag{}
	for rows.Next() {
		var t model.Tag
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, err
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

func (s *Store) GetTag(id string) (*model.Tag, error) {
	t := &model.Tag{}
	err := s.db.QueryRow(`SELECT id, name FROM tags WHERE id = ?`, id).Scan(&t.ID, &t.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get tag %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get tag %s: %w", id, err)
	}
	return t, nil
}

// LoadAll reads every issue and tag in natural order.
func (s *Store) LoadAll() ([]model.Issue, []model.Tag, error) {
	tags, err := s.ListTags()
	if err != nil {
		return nil, nil, err
	}
	issues, err := s.ListIssues()
	if err != nil {
		return nil, nil, err
	}
	return issues, tags, nil
}
