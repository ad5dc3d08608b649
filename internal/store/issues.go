package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"

	"github.com/sadopc/issuedesk/internal/model"
)

var issueColumns = []string{
	"issues.id", "issues.title", "issues.content", "issues.created_date", "issues.modified_date",
	"issues.completed", "issues.priority", "issues.reminder_enabled", "issues.reminder_time",
}

var naturalOrder = []string{"issues.title ASC", "issues.created_date ASC", "issues.id ASC"}

type scanner interface {
	Scan(dest ...any) error
}

func scanIssue(sc scanner) (model.Issue, error) {
	var is model.Issue
	var createdDate, modifiedDate, reminderTime string
	var completed, reminderEnabled int
	err := sc.Scan(&is.ID, &is.Title, &is.Content, &createdDate, &modifiedDate,
		&completed, &is.Priority, &reminderEnabled, &reminderTime)
	if err != nil {
		return is, err
	}
	is.Completed = completed == 1
	is.ReminderEnabled = reminderEnabled == 1
	is.CreatedDate = model.ParseTime(createdDate)
	is.ModifiedDate = model.ParseTime(modifiedDate)
	is.ReminderTime = model.ParseTime(reminderTime)
	return is, nil
}

// FetchIssues returns issues matching where (nil for all) in the given
// order, or natural order when orderBy is empty. A zero limit is unbounded.
func (s *Store) FetchIssues(where squirrel.Sqlizer, orderBy []string, limit uint64) ([]model.Issue, error) {
	q := s.sq.Select(issueColumns...).From("issues")
	if where != nil {
		q = q.Where(where)
	}
	if len(orderBy) == 0 {
		orderBy = naturalOrder
	}
	q = q.OrderBy(orderBy...)
	if limit > 0 {
		q = q.Limit(limit)
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build issue query: %w", err)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("fetch issues: %w", err)
	}
	defer rows.Close()

	issues := []model.Issue{}
	for rows.Next() {
		is, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		issues = append(issues, is)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	links, err := s.tagLinks()
	if err != nil {
		return nil, err
	}
	for i := range issues {
		issues[i].TagIDs = links[issues[i].ID]
	}
	return issues, nil
}

func (s *Store) ListIssues() ([]model.Issue, error) {
	return s.FetchIssues(nil, nil, 0)
}

func (s *Store) GetIssue(id string) (*model.Issue, error) {
	query, args, err := s.sq.Select(issueColumns...).From("issues").Where(squirrel.Eq{"issues.id": id}).ToSql()
	if err != nil {
		return nil, err
	}
	is, err := scanIssue(s.db.QueryRow(query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get issue %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get issue %s: %w", id, err)
	}

	rows, err := s.db.Query(`SELECT tag_id FROM issue_tags WHERE issue_id = ? ORDER BY tag_id`, id)
	if err != nil {
		return nil, fmt.Errorf("get issue tags: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var tagID string
		if err := rows.Scan(&tagID); err != nil {
			return nil, err
		}
		is.TagIDs = append(is.TagIDs, tagID)
	}
	return &is, rows.Err()
}

// CountIssues counts issues matching where (nil for all).
func (s *Store) CountIssues(where squirrel.Sqlizer) (int, error) {
	q := s.sq.Select("COUNT(*)").From("issues")
	if where != nil {
		q = q.Where(where)
	}
	query, args, err := q.ToSql()
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRow(query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count issues: %w", err)
	}
	return n, nil
}

func (s *Store) Counts() (Counts, error) {
	var c Counts
	err := s.db.QueryRow(`
		SELECT
			(SELECT COUNT(*) FROM issues),
			(SELECT COUNT(*) FROM issues WHERE completed = 1),
			(SELECT COUNT(*) FROM tags)`).Scan(&c.Issues, &c.Closed, &c.Tags)
	if err != nil {
		return c, fmt.Errorf("counts: %w", err)
	}
	return c, nil
}

// tagLinks maps issue id to its sorted tag ids.
func (s *Store) tagLinks() (map[string][]string, error) {
	rows, err := s.db.Query(`SELECT issue_id, tag_id FROM issue_tags ORDER BY issue_id, tag_id`)
	if err != nil {
		return nil, fmt.Errorf("list issue tags: %w", err)
	}
	defer rows.Close()

	links := make(map[string][]string)
	for rows.Next() {
		var issueID, tagID string
		if err := rows.Scan(&issueID, &tagID); err != nil {
			return nil, err
		}
		links[issueID] = append(links[issueID], tagID)
	}
	return links, rows.Err()
}
