// Package repository persists profiles and delivery runs in SQL. Queries use
// $N placeholders understood by both lib/pq and modernc.org/sqlite.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Proton-105/horoscope-bot/internal/domain"
)

// ProfileStore defines persistence operations for completed profiles.
type ProfileStore interface {
	Get(ctx context.Context, userID int64) (*domain.UserProfile, error)
	Upsert(ctx context.Context, p *domain.UserProfile) error
	ListEligibleForWindow(ctx context.Context, w domain.Window) ([]*domain.UserProfile, error)
	// MarkDelivered records w as the last delivery window. It reports false
	// when the profile is missing or already carries w.
	MarkDelivered(ctx context.Context, userID int64, w domain.Window) (bool, error)
	SetActive(ctx context.Context, userID int64, active bool) error
	Count(ctx context.Context) (int, error)
}

type profileRepository struct {
	db  *sql.DB
	log *slog.Logger
	now func() time.Time
}

// NewProfileRepository creates a new SQL-backed profile repository.
func NewProfileRepository(db *sql.DB, log *slog.Logger) ProfileStore {
	if log == nil {
		log = slog.Default()
	}

	return &profileRepository{
		db:  db,
		log: log,
		now: func() time.Time { return time.Now().UTC() },
	}
}

const profileColumns = `user_id, name, birth_date, language, gender, profession, hobbies, created_at, updated_at, last_delivery_date, is_active`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*domain.UserProfile, error) {
	var (
		p            domain.UserProfile
		birthDate    string
		language     string
		gender       string
		lastDelivery sql.NullString
	)

	if err := row.Scan(
		&p.ID,
		&p.Name,
		&birthDate,
		&language,
		&gender,
		&p.Profession,
		&p.Hobbies,
		&p.CreatedAt,
		&p.UpdatedAt,
		&lastDelivery,
		&p.Active,
	); err != nil {
		return nil, err
	}

	bd, err := time.Parse(domain.DateLayout, birthDate)
	if err != nil {
		return nil, fmt.Errorf("parse birth_date %q: %w", birthDate, err)
	}
	p.BirthDate = bd
	p.Language = domain.Language(language)
	p.Gender = domain.Gender(gender)

	if lastDelivery.Valid && lastDelivery.String != "" {
		w, err := domain.ParseWindow(lastDelivery.String)
		if err != nil {
			return nil, fmt.Errorf("parse last_delivery_date: %w", err)
		}
		p.LastDeliveryDate = &w
	}

	return &p, nil
}

// Get retrieves a profile by Telegram chat id.
func (r *profileRepository) Get(ctx context.Context, userID int64) (*domain.UserProfile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE user_id = $1`

	p, err := scanProfile(r.db.QueryRowContext(ctx, query, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrProfileNotFound
		}

		r.log.Error("failed to fetch profile", slog.Int64("user_id", userID), slog.Any("error", err))
		return nil, fmt.Errorf("select profile: %w", err)
	}

	return p, nil
}

// Upsert writes a complete profile. An existing row keeps its
// last_delivery_date and is_active: after the insert only MarkDelivered and
// SetActive change them, so a concurrent delivery is never rolled back.
func (r *profileRepository) Upsert(ctx context.Context, p *domain.UserProfile) error {
	if p == nil {
		return errors.New("upsert profile: nil profile")
	}

	const query = `
		INSERT INTO profiles (` + profileColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (user_id) DO UPDATE SET
			name = excluded.name,
			birth_date = excluded.birth_date,
			language = excluded.language,
			gender = excluded.gender,
			profession = excluded.profession,
			hobbies = excluded.hobbies,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at
	`

	now := r.now()
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	var lastDelivery sql.NullString
	if p.LastDeliveryDate != nil {
		lastDelivery = sql.NullString{String: p.LastDeliveryDate.String(), Valid: true}
	}

	if _, err := r.db.ExecContext(
		ctx,
		query,
		p.ID,
		p.Name,
		p.BirthDate.Format(domain.DateLayout),
		string(p.Language),
		string(p.Gender),
		p.Profession,
		p.Hobbies,
		createdAt.UTC(),
		now,
		lastDelivery,
		p.Active,
	); err != nil {
		r.log.Error("failed to upsert profile", slog.Int64("user_id", p.ID), slog.Any("error", err))
		return fmt.Errorf("upsert profile: %w", err)
	}

	p.CreatedAt = createdAt
	p.UpdatedAt = now
	return nil
}

// ListEligibleForWindow returns active profiles not yet delivered in w.
func (r *profileRepository) ListEligibleForWindow(ctx context.Context, w domain.Window) ([]*domain.UserProfile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles
		WHERE is_active = TRUE AND (last_delivery_date IS NULL OR last_delivery_date <> $1)
		ORDER BY user_id`

	rows, err := r.db.QueryContext(ctx, query, w.String())
	if err != nil {
		r.log.Error("failed to list eligible profiles", slog.String("window", w.String()), slog.Any("error", err))
		return nil, fmt.Errorf("list eligible profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*domain.UserProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan eligible profile: %w", err)
		}
		profiles = append(profiles, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate eligible profiles: %w", err)
	}

	return profiles, nil
}

// MarkDelivered is a conditional update, so concurrent runs mark a window once.
func (r *profileRepository) MarkDelivered(ctx context.Context, userID int64, w domain.Window) (bool, error) {
	const query = `
		UPDATE profiles SET last_delivery_date = $1, updated_at = $2
		WHERE user_id = $3 AND (last_delivery_date IS NULL OR last_delivery_date <> $1)
	`

	res, err := r.db.ExecContext(ctx, query, w.String(), r.now(), userID)
	if err != nil {
		r.log.Error("failed to mark delivery", slog.Int64("user_id", userID), slog.String("window", w.String()), slog.Any("error", err))
		return false, fmt.Errorf("mark delivered: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark delivered rows affected: %w", err)
	}

	return affected == 1, nil
}

// SetActive toggles scheduled delivery for a profile.
func (r *profileRepository) SetActive(ctx context.Context, userID int64, active bool) error {
	const query = `UPDATE profiles SET is_active = $1, updated_at = $2 WHERE user_id = $3`

	res, err := r.db.ExecContext(ctx, query, active, r.now(), userID)
	if err != nil {
		r.log.Error("failed to update profile activity", slog.Int64("user_id", userID), slog.Any("error", err))
		return fmt.Errorf("set active: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set active rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrProfileNotFound
	}

	return nil
}

// Count returns the number of stored profiles.
func (r *profileRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM profiles`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count profiles: %w", err)
	}
	return n, nil
}
