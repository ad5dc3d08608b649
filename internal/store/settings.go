package store

import (
	"fmt"
	"strconv"
)

const (
	SettingFullVersionUnlocked = "full_version_unlocked"
	SettingRemoteCursor        = "remote_cursor"
)

func (s *Store) GetSetting(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err != nil {
		return "", fmt.Errorf("get setting %q: %w", key, err)
	}
	return value, nil
}

func (s *Store) SetSetting(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

func (s *Store) GetAllSettings() ([]Setting, error) {
	rows, err := s.db.Query(`SELECT key, value FROM settings ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	defer rows.Close()

	var settings []Setting
	for rows.Next() {
		var s Setting
		if err := rows.Scan(&s.Key, &s.Value); err != nil {
			return nil, err
		}
		settings = append(settings, s)
	}
	return settings, rows.Err()
}

func (s *Store) FullVersionUnlocked() (bool, error) {
	v, err := s.GetSetting(SettingFullVersionUnlocked)
	if err != nil {
		return false, err
	}
	unlocked, _ := strconv.ParseBool(v)
	return unlocked, nil
}

func (s *Store) SetFullVersionUnlocked(unlocked bool) error {
	return s.SetSetting(SettingFullVersionUnlocked, strconv.FormatBool(unlocked))
}

// RemoteCursor is the last change feed position applied to this store.
func (s *Store) RemoteCursor() (string, error) {
	return s.GetSetting(SettingRemoteCursor)
}

func (s *Store) SetRemoteCursor(cursor string) error {
	return s.SetSetting(SettingRemoteCursor, cursor)
}
