package store

import (
	"database/sql"
	"fmt"

	"github.com/Masterminds/squirrel"

	"github.com/sadopc/issuedesk/internal/model"
)

const (
	upsertTagSQL = `INSERT INTO tags (id, name) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name`

	upsertIssueSQL = `INSERT INTO issues
		(id, title, content, created_date, modified_date, completed, priority, reminder_enabled, reminder_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			content = excluded.content,
			created_date = excluded.created_date,
			modified_date = excluded.modified_date,
			completed = excluded.completed,
			priority = excluded.priority,
			reminder_enabled = excluded.reminder_enabled,
			reminder_time = excluded.reminder_time`

	// Links to tags that do not exist are dropped.
	insertLinkSQL = `INSERT OR IGNORE INTO issue_tags (issue_id, tag_id)
		SELECT ?, id FROM tags WHERE id = ?`
)

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Commit applies the changeset in a single transaction: tag upserts, issue
// upserts with their links, then issue and tag deletes.
func (s *Store) Commit(cs Changeset) (err error) {
	if cs.Empty() {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin commit: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = upsertTags(tx, cs.Tags); err != nil {
		return err
	}
	if err = upsertIssues(tx, cs.Issues); err != nil {
		return err
	}
	for _, id := range cs.DeletedIssues {
		if _, err = tx.Exec(`DELETE FROM issues WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete issue %s: %w", id, err)
		}
	}
	for _, id := range cs.DeletedTags {
		if _, err = tx.Exec(`DELETE FROM tags WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete tag %s: %w", id, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func upsertTags(tx *sql.Tx, tags []model.Tag) error {
	if len(tags) == 0 {
		return nil
	}
	stmt, err := tx.Prepare(upsertTagSQL)
	if err != nil {
		return fmt.Errorf("prepare tag upsert: %w", err)
	}
	defer stmt.Close()
	for _, t := range tags {
		if _, err := stmt.Exec(t.ID, t.Name); err != nil {
			return fmt.Errorf("upsert tag %s: %w", t.ID, err)
		}
	}
	return nil
}

func upsertIssues(tx *sql.Tx, issues []model.Issue) error {
	if len(issues) == 0 {
		return nil
	}
	upsert, err := tx.Prepare(upsertIssueSQL)
	if err != nil {
		return fmt.Errorf("prepare issue upsert: %w", err)
	}
	defer upsert.Close()
	link, err := tx.Prepare(insertLinkSQL)
	if err != nil {
		return fmt.Errorf("prepare link insert: %w", err)
	}
	defer link.Close()

	for _, is := range issues {
		_, err := upsert.Exec(
			is.ID, is.Title, is.Content,
			model.FormatTime(is.CreatedDate), model.FormatTime(is.ModifiedDate),
			boolInt(is.Completed), is.Priority,
			boolInt(is.ReminderEnabled), model.FormatTime(is.ReminderTime),
		)
		if err != nil {
			return fmt.Errorf("upsert issue %s: %w", is.ID, err)
		}
		if _, err := tx.Exec(`DELETE FROM issue_tags WHERE issue_id = ?`, is.ID); err != nil {
			return fmt.Errorf("clear links for %s: %w", is.ID, err)
		}
		for _, tagID := range is.TagIDs {
			if _, err := link.Exec(is.ID, tagID); err != nil {
				return fmt.Errorf("link issue %s to tag %s: %w", is.ID, tagID, err)
			}
		}
	}
	return nil
}

// BatchDelete removes every row of the entity matching where (nil for all)
// in one statement and returns the identities it deleted.
func (s *Store) BatchDelete(entity Entity, where squirrel.Sqlizer) ([]string, error) {
	table, err := entity.table()
	if err != nil {
		return nil, fmt.Errorf("batch delete %q: %w", entity, err)
	}
	q := s.sq.Delete(table).Suffix("RETURNING id")
	if where != nil {
		q = q.Where(where)
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("batch delete %s: %w", table, err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("batch delete %s: %w", table, err)
	}
	return ids, nil
}
