// ABOUTME: Language storage operations.
// ABOUTME: Looks up host languages by id or name for locale resolution.

package store

import (
	"database/sql"
	"errors"

	"github.com/2389/tabulator/internal/locale"
)

// GetLanguage returns the language with the given id, or nil if none exists.
func (s *Store) GetLanguage(id int64) (*locale.Language, error) {
	lang := &locale.Language{}
	err := s.db.QueryRow(`SELECT id, name, title FROM languages WHERE id = ?`, id).
		Scan(&lang.ID, &lang.Name, &lang.Title)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return lang, nil
}

// GetLanguageByName returns the language with the given name, or nil if none exists.
func (s *Store) GetLanguageByName(name string) (*locale.Language, error) {
	lang := &locale.Language{}
	err := s.db.QueryRow(`SELECT id, name, title FROM languages WHERE name = ?`, name).
		Scan(&lang.ID, &lang.Name, &lang.Title)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return lang, nil
}

// ListLanguages returns all languages ordered by id.
func (s *Store) ListLanguages() ([]*locale.Language, error) {
	rows, err := s.db.Query(`SELECT id, name, title FROM languages ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var langs []*locale.Language
	for rows.Next() {
		lang := &locale.Language{}
		if err := rows.Scan(&lang.ID, &lang.Name, &lang.Title); err != nil {
			return nil, err
		}
		langs = append(langs, lang)
	}
	return langs, rows.Err()
}

// CreateLanguage inserts a language and returns its id.
func (s *Store) CreateLanguage(name, title string) (int64, error) {
	res, err := s.db.Exec(`INSERT INTO languages (name, title) VALUES (?, ?)`, name, title)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}
