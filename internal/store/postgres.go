package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// PostgresStore is the pgx-backed VideoStore.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an open connection pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

//go:embed sql/migrations/*.sql
var embedMigrations embed.FS

// Migrate runs the goose migrations.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	goose.SetBaseFS(embedMigrations)

	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	stdDb := stdlib.OpenDBFromPool(s.pool)
	defer stdDb.Close()

	return goose.UpContext(ctx, stdDb, "sql/migrations")
}

const videoColumns = `id, user_id, raw_path, filename, original_size, mime_type,
	duration, width, height, aspect, thumbnail_url,
	encoding_status, encoding_started_at, encoding_completed_at, encoding_error,
	encoding_tiers, manifest_url, mp4_fallback_url, moderation, created_at`

func (s *PostgresStore) Create(ctx context.Context, v *Video) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO videos (`+videoColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
		v.ID, v.UserID, v.RawPath, v.Filename, v.OriginalSize, v.MimeType,
		v.Duration, v.Width, v.Height, v.Aspect, v.ThumbnailURL,
		v.EncodingStatus, v.EncodingStartedAt, v.EncodingCompletedAt, v.EncodingError,
		v.EncodingTiers, v.ManifestURL, v.MP4FallbackURL, v.Moderation, v.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert video %s: %w", v.ID, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*Video, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+videoColumns+` FROM videos WHERE id = $1`, id)
	v, err := scanVideo(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select video %s: %w", id, err)
	}
	return v, nil
}

func (s *PostgresStore) UpdateEncoding(ctx context.Context, id uuid.UUID, update EncodingUpdate) error {
	sets := make([]string, 0, 7)
	args := make([]any, 0, 8)
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if update.Status != nil {
		add("encoding_status", *update.Status)
	}
	if update.StartedAt != nil {
		add("encoding_started_at", *update.StartedAt)
	}
	if update.CompletedAt != nil {
		add("encoding_completed_at", *update.CompletedAt)
	}
	if update.Error != nil {
		add("encoding_error", *update.Error)
	}
	if update.Tiers != nil {
		add("encoding_tiers", *update.Tiers)
	}
	if update.ManifestURL != nil {
		add("manifest_url", *update.ManifestURL)
	}
	if update.MP4FallbackURL != nil {
		add("mp4_fallback_url", *update.MP4FallbackURL)
	}
	if len(sets) == 0 {
		return nil
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE videos SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update video %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SetModeration(ctx context.Context, id uuid.UUID, status ModerationStatus) error {
	tag, err := s.pool.Exec(ctx, `UPDATE videos SET moderation = $1 WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("update moderation %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListStuckEncoding(ctx context.Context, startedBefore time.Time) ([]*Video, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+videoColumns+` FROM videos
		WHERE encoding_status = $1 AND encoding_started_at IS NOT NULL AND encoding_started_at < $2
		ORDER BY encoding_started_at`,
		EncodingActive, startedBefore,
	)
	if err != nil {
		return nil, fmt.Errorf("list stuck encoding: %w", err)
	}
	return collectVideos(rows)
}

func (s *PostgresStore) ListStalePending(ctx context.Context, createdBefore time.Time) ([]*Video, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+videoColumns+` FROM videos
		WHERE encoding_status = $1 AND created_at < $2
		ORDER BY created_at`,
		EncodingPending, createdBefore,
	)
	if err != nil {
		return nil, fmt.Errorf("list stale pending: %w", err)
	}
	return collectVideos(rows)
}

func collectVideos(rows pgx.Rows) ([]*Video, error) {
	defer rows.Close()
	var videos []*Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}
		videos = append(videos, v)
	}
	return videos, rows.Err()
}

func scanVideo(row pgx.Row) (*Video, error) {
	var v Video
	err := row.Scan(
		&v.ID, &v.UserID, &v.RawPath, &v.Filename, &v.OriginalSize, &v.MimeType,
		&v.Duration, &v.Width, &v.Height, &v.Aspect, &v.ThumbnailURL,
		&v.EncodingStatus, &v.EncodingStartedAt, &v.EncodingCompletedAt, &v.EncodingError,
		&v.EncodingTiers, &v.ManifestURL, &v.MP4FallbackURL, &v.Moderation, &v.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
