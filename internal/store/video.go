// Package store owns the video record: the shared state every part of the
// encoding pipeline reads and writes.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// EncodingStatus tracks a video through its encoding lifecycle.
type EncodingStatus string

const (
	EncodingPending  EncodingStatus = "PENDING"
	EncodingActive   EncodingStatus = "ENCODING"
	EncodingReady    EncodingStatus = "READY"
	EncodingFailed   EncodingStatus = "FAILED"
)

// TiersStatus tracks how many quality tiers of a READY video exist.
// It only advances PARTIAL→ALL or degrades to PARTIAL_FAILED; it never
// regresses from ALL.
type TiersStatus string

const (
	TiersNone          TiersStatus = "NONE"
	TiersPartial       TiersStatus = "PARTIAL"
	TiersPartialFailed TiersStatus = "PARTIAL_FAILED"
	TiersAll           TiersStatus = "ALL"
)

// AspectClass is the rotation-corrected aspect-ratio classification.
type AspectClass string

const (
	AspectLandscape AspectClass = "LANDSCAPE"
	AspectPortrait  AspectClass = "PORTRAIT"
	AspectSquare    AspectClass = "SQUARE"
)

// ModerationStatus of a video's content review.
type ModerationStatus string

const (
	ModerationPending  ModerationStatus = "PENDING"
	ModerationApproved ModerationStatus = "APPROVED"
)

// Video is the persisted video record.
type Video struct {
	ID     uuid.UUID
	UserID uuid.UUID

	// Source
	RawPath      string // object-store key of the uploaded original
	Filename     string
	OriginalSize int64
	MimeType     string
	Duration     float64 // seconds
	Width        int     // rotation-corrected display width
	Height       int     // rotation-corrected display height
	Aspect       AspectClass
	ThumbnailURL string

	// Encoding state
	EncodingStatus      EncodingStatus
	EncodingStartedAt   *time.Time
	EncodingCompletedAt *time.Time
	EncodingError       string
	EncodingTiers       TiersStatus
	ManifestURL         string
	MP4FallbackURL      string

	Moderation ModerationStatus

	CreatedAt time.Time
}

// EncodingUpdate is a field-scoped update of the encoding state. Nil fields
// are left untouched, so concurrent writers (worker, webhook handlers,
// watchdog) only ever clobber the fields they own.
type EncodingUpdate struct {
	Status         *EncodingStatus
	StartedAt      *time.Time
	CompletedAt    *time.Time
	Error          *string
	Tiers          *TiersStatus
	ManifestURL    *string
	MP4FallbackURL *string
}

// ErrNotFound is returned when no video exists for the given id.
var ErrNotFound = errors.New("video not found")

// VideoStore is the persistence collaborator for video records.
type VideoStore interface {
	Create(ctx context.Context, v *Video) error
	Get(ctx context.Context, id uuid.UUID) (*Video, error)
	UpdateEncoding(ctx context.Context, id uuid.UUID, update EncodingUpdate) error
	SetModeration(ctx context.Context, id uuid.UUID, status ModerationStatus) error

	// ListStuckEncoding returns videos in ENCODING whose encoding started
	// before the given instant.
	ListStuckEncoding(ctx context.Context, startedBefore time.Time) ([]*Video, error)
	// ListStalePending returns videos still PENDING that were created before
	// the given instant.
	ListStalePending(ctx context.Context, createdBefore time.Time) ([]*Video, error)
}

// StrPtr returns a pointer to s, for building EncodingUpdate values.
func StrPtr(s string) *string { return &s }

// StatusPtr returns a pointer to st.
func StatusPtr(st EncodingStatus) *EncodingStatus { return &st }

// TiersPtr returns a pointer to ts.
func TiersPtr(ts TiersStatus) *TiersStatus { return &ts }

// TimePtr returns a pointer to t.
func TimePtr(t time.Time) *time.Time { return &t }
