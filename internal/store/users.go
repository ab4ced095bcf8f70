// ABOUTME: User storage operations.
// ABOUTME: Persists caller names, roles and default language for the auth middleware.

package store

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/2389/tabulator/internal/auth"
)

// CreateUser inserts or replaces a user with the given roles and language.
// A languageID of 0 leaves the user without a default language.
func (s *Store) CreateUser(name string, roles []string, languageID int64) error {
	var lang any
	if languageID > 0 {
		lang = languageID
	}
	_, err := s.db.Exec(`
		INSERT INTO users (name, roles, language_id) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET roles = excluded.roles, language_id = excluded.language_id
	`, name, strings.Join(roles, ","), lang)
	return err
}

// GetUser returns the named user, or nil if none exists.
func (s *Store) GetUser(name string) (*auth.User, error) {
	var roles string
	var lang sql.NullInt64
	err := s.db.QueryRow(`SELECT roles, language_id FROM users WHERE name = ?`, name).Scan(&roles, &lang)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &auth.User{
		Name:       name,
		Roles:      splitRoles(roles),
		LanguageID: lang.Int64,
	}, nil
}

// UserExists checks if a user exists
func (s *Store) UserExists(name string) (bool, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM users WHERE name = ?", name).Scan(&count)
	return count > 0, err
}

func splitRoles(roles string) []string {
	var out []string
	for _, r := range strings.Split(roles, ",") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}
