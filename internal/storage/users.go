package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// GetOrCreateUser resolves an external ID to a user row, creating one on
// first contact. A non-empty display name updates the stored one.
func (s *Store) GetOrCreateUser(ctx context.Context, externalID, displayName string) (User, error) {
	user, err := s.getUserByExternalID(ctx, externalID)
	if err == nil {
		if displayName != "" && user.DisplayName != displayName {
			now := time.Now().UTC()
			if _, err := s.db.ExecContext(ctx,
				"UPDATE users SET display_name = ?, updated_at = ? WHERE id = ?",
				displayName, now, user.ID,
			); err != nil {
				return User{}, fmt.Errorf("updating display name: %w", err)
			}
			user.DisplayName = displayName
			user.UpdatedAt = now
		}
		return user, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return User{}, err
	}

	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		"INSERT INTO users (external_id, display_name, created_at, updated_at) VALUES (?, ?, ?, ?)",
		externalID, nullIfEmpty(displayName), now, now,
	)
	if err != nil {
		return User{}, fmt.Errorf("creating user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return User{}, fmt.Errorf("getting user id: %w", err)
	}

	return User{
		ID:          id,
		ExternalID:  externalID,
		DisplayName: displayName,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// GetUser looks up a user by external ID. Returns ErrNotFound when absent.
func (s *Store) GetUser(ctx context.Context, externalID string) (User, error) {
	return s.getUserByExternalID(ctx, externalID)
}

func (s *Store) getUserByExternalID(ctx context.Context, externalID string) (User, error) {
	var (
		user        User
		displayName sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, external_id, display_name, created_at, updated_at FROM users WHERE external_id = ?",
		externalID,
	).Scan(&user.ID, &user.ExternalID, &displayName, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, fmt.Errorf("user %q: %w", externalID, ErrNotFound)
	}
	if err != nil {
		return User{}, fmt.Errorf("getting user: %w", err)
	}

	user.DisplayName = displayName.String
	return user, nil
}

// GetProfile returns the stored profile for an external ID. Returns
// ErrNotFound when the user or profile does not exist.
func (s *Store) GetProfile(ctx context.Context, externalID string) (Profile, error) {
	user, err := s.getUserByExternalID(ctx, externalID)
	if err != nil {
		return Profile{}, err
	}
	return s.getProfileByUserID(ctx, user.ID)
}

func (s *Store) getProfileByUserID(ctx context.Context, userID int64) (Profile, error) {
	var (
		profile                                   Profile
		goals, preferences, allergies, medication string
		notes                                     sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, goals, dietary_preferences, allergies, medications, notes, updated_at
		 FROM user_profiles WHERE user_id = ?`,
		userID,
	).Scan(&profile.UserID, &goals, &preferences, &allergies, &medication, &notes, &profile.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, fmt.Errorf("profile for user %d: %w", userID, ErrNotFound)
	}
	if err != nil {
		return Profile{}, fmt.Errorf("getting profile: %w", err)
	}

	profile.Notes = notes.String
	for _, col := range []struct {
		raw  string
		dest *[]string
	}{
		{goals, &profile.Goals},
		{preferences, &profile.DietaryPreferences},
		{allergies, &profile.Allergies},
		{medication, &profile.Medications},
	} {
		if err := json.Unmarshal([]byte(col.raw), col.dest); err != nil {
			return Profile{}, fmt.Errorf("decoding profile list: %w", err)
		}
	}

	return profile, nil
}

// EnsureProfile returns the profile for an external ID, creating the user
// and an empty profile as needed.
func (s *Store) EnsureProfile(ctx context.Context, externalID string) (Profile, error) {
	user, err := s.GetOrCreateUser(ctx, externalID, "")
	if err != nil {
		return Profile{}, err
	}

	profile, err := s.getProfileByUserID(ctx, user.ID)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Profile{}, err
	}

	return s.insertEmptyProfile(ctx, user.ID)
}

func (s *Store) insertEmptyProfile(ctx context.Context, userID int64) (Profile, error) {
	now := time.Now().UTC()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO user_profiles (user_id, goals, dietary_preferences, allergies, medications, updated_at)
		 VALUES (?, '[]', '[]', '[]', '[]', ?)`,
		userID, now,
	); err != nil {
		return Profile{}, fmt.Errorf("creating profile: %w", err)
	}

	return Profile{
		UserID:             userID,
		Goals:              []string{},
		DietaryPreferences: []string{},
		Allergies:          []string{},
		Medications:        []string{},
		UpdatedAt:          now,
	}, nil
}

// UpsertProfile applies a partial update, creating the user and profile as
// needed. Nil fields in the patch leave stored values unchanged.
func (s *Store) UpsertProfile(ctx context.Context, externalID string, patch ProfilePatch) (Profile, error) {
	displayName := ""
	if patch.DisplayName != nil {
		displayName = *patch.DisplayName
	}
	user, err := s.GetOrCreateUser(ctx, externalID, displayName)
	if err != nil {
		return Profile{}, err
	}

	profile, err := s.getProfileByUserID(ctx, user.ID)
	if errors.Is(err, ErrNotFound) {
		profile, err = s.insertEmptyProfile(ctx, user.ID)
	}
	if err != nil {
		return Profile{}, err
	}

	if patch.Goals != nil {
		profile.Goals = patch.Goals
	}
	if patch.DietaryPreferences != nil {
		profile.DietaryPreferences = patch.DietaryPreferences
	}
	if patch.Allergies != nil {
		profile.Allergies = patch.Allergies
	}
	if patch.Medications != nil {
		profile.Medications = patch.Medications
	}
	if patch.Notes != nil {
		profile.Notes = *patch.Notes
	}
	profile.UpdatedAt = time.Now().UTC()

	encoded := make([]string, 0, 4)
	for _, list := range [][]string{
		profile.Goals, profile.DietaryPreferences, profile.Allergies, profile.Medications,
	} {
		if list == nil {
			list = []string{}
		}
		raw, err := json.Marshal(list)
		if err != nil {
			return Profile{}, fmt.Errorf("encoding profile list: %w", err)
		}
		encoded = append(encoded, string(raw))
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE user_profiles
		 SET goals = ?, dietary_preferences = ?, allergies = ?, medications = ?, notes = ?, updated_at = ?
		 WHERE user_id = ?`,
		encoded[0], encoded[1], encoded[2], encoded[3],
		nullIfEmpty(profile.Notes), profile.UpdatedAt, user.ID,
	); err != nil {
		return Profile{}, fmt.Errorf("updating profile: %w", err)
	}

	return profile, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
