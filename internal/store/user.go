package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pavelanni/assessor/internal/model"
)

// UpsertProfile inserts a profile or updates its name and role.
func (s *Store) UpsertProfile(ctx context.Context, p model.Profile) error {
	if p.Role == "" {
		p.Role = model.RoleStudent
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO profiles (id, first_name, last_name, role, created_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET first_name = excluded.first_name,
		   last_name = excluded.last_name, role = excluded.role`,
		p.ID, p.FirstName, p.LastName, p.Role, time.Now(),
	)
	if err != nil {
		slog.Error("failed to upsert profile", "id", p.ID, "error", err)
		return err
	}
	slog.Debug("upserted profile", "id", p.ID, "role", p.Role)
	return nil
}

// GetProfile returns a profile by ID.
func (s *Store) GetProfile(ctx context.Context, id string) (model.Profile, error) {
	var p model.Profile
	err := s.db.QueryRowContext(ctx,
		`SELECT id, first_name, last_name, role, created_at FROM profiles WHERE id = ?`, id,
	).Scan(&p.ID, &p.FirstName, &p.LastName, &p.Role, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return p, fmt.Errorf("profile %s: %w", id, ErrNotFound)
	}
	return p, err
}
