package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// UpsertProfile mirrors a signed-in user's display fields, creating the row
// on first login. The profile id is stable across logins for a given email.
func (s *DataService) UpsertProfile(ctx context.Context, email, name string) (*Profile, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, fmt.Errorf("email required: %w", ErrValidation)
	}
	if name == "" {
		name = strings.SplitN(email, "@", 2)[0]
	}

	var profile Profile
	err := s.db.GetContext(ctx, &profile, "SELECT * FROM profiles WHERE email = ?", email)
	if err == nil {
		return &profile, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to look up profile: %w", err)
	}

	profile = Profile{
		ID:        uuid.New().String(),
		Name:      name,
		Email:     email,
		CreatedAt: time.Now().UTC(),
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO profiles (id, name, email, created_at) VALUES (?, ?, ?, ?)",
		profile.ID, profile.Name, profile.Email, profile.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}
	return &profile, nil
}

// GetProfile returns a profile by id.
func (s *DataService) GetProfile(ctx context.Context, id string) (*Profile, error) {
	var profile Profile
	err := s.db.GetContext(ctx, &profile, "SELECT * FROM profiles WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("profile %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return &profile, nil
}
