package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pavelanni/eduquest/internal/model"
)

// UpsertUser adds a user to the roster or refreshes its name, role and email.
func (s *Store) UpsertUser(u model.User) error {
	_, err := s.db.Exec(
		`INSERT INTO users (id, name, role, email) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name, role = excluded.role, email = excluded.email`,
		u.ID, u.Name, u.Role, u.Email,
	)
	if err != nil {
		slog.Error("failed to upsert user", "id", u.ID, "error", err)
		return err
	}
	slog.Debug("upserted user", "id", u.ID, "role", u.Role)
	return nil
}

// EnsureUser adds a user to the roster unless the id is already present. An
// existing user is never modified. It reports whether a row was inserted.
func (s *Store) EnsureUser(u model.User) (bool, error) {
	res, err := s.db.Exec(
		`INSERT INTO users (id, name, role, email) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		u.ID, u.Name, u.Role, u.Email,
	)
	if err != nil {
		slog.Error("failed to ensure user", "id", u.ID, "error", err)
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		slog.Debug("added user", "id", u.ID, "role", u.Role)
	}
	return n > 0, nil
}

// GetUser returns a user by ID.
func (s *Store) GetUser(id string) (model.User, error) {
	var u model.User
	err := s.db.QueryRow(`SELECT id, name, role, email FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Name, &u.Role, &u.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return u, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return u, err
}

// ListUsers returns the roster ordered by id. An empty role lists everyone.
func (s *Store) ListUsers(role model.UserRole) ([]model.User, error) {
	query := `SELECT id, name, role, email FROM users`
	var args []any
	if role != "" {
		query += ` WHERE role = ?`
		args = append(args, role)
	}
	query += ` ORDER BY id`
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	users := []model.User{}
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Role, &u.Email); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
