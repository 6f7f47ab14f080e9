package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"license-server/internal/logging"
	"license-server/internal/model"
	"license-server/internal/signer"
	"license-server/internal/store"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const (
	DefaultDurationDays = 365
	MaxDurationDays     = 36500
	secondsPerDay       = 24 * 3600
)

// DefaultFeatures is the feature flag set embedded in every token.
var DefaultFeatures = map[string]bool{"bot": true}

// TokenSigner is the part of *signer.Signer the manager uses.
type TokenSigner interface {
	Sign(claims signer.Claims) (string, error)
	Decode(raw string) (*signer.Claims, error)
	Verify(raw string) (*signer.Claims, error)
}

type ActivateInput struct {
	LicenseKey   string `validate:"required"`
	HWID         string `validate:"required"`
	User         string
	DurationDays *int `validate:"omitempty,min=0,max=36500"` // nil means DefaultDurationDays
}

type ActivateResult struct {
	Token     string `json:"token"`
	ID        string `json:"jti"`
	ExpiresAt int64  `json:"expires_at"`
}

type RevokeResult struct {
	ID      string `json:"jti"`
	Revoked bool   `json:"revoked"`
}

// LicenseStatus is the read projection of a record.
type LicenseStatus struct {
	ID         string `json:"id"`
	LicenseKey string `json:"license_key"`
	HWID       string `json:"hwid"`
	User       string `json:"user"`
	IssuedAt   int64  `json:"issued_at"`
	ExpiresAt  int64  `json:"expires_at"`
	Revoked    bool   `json:"revoked"`
	LastSeen   int64  `json:"last_seen"`
}

// HeartbeatResult carries exactly one of Revoked, Expired or OK.
type HeartbeatResult struct {
	OK        bool  `json:"ok,omitempty"`
	Revoked   bool  `json:"revoked,omitempty"`
	Expired   bool  `json:"expired,omitempty"`
	ExpiresAt int64 `json:"expires_at,omitempty"`
}

func (r HeartbeatResult) Verdict() string {
	switch {
	case r.Revoked:
		return "revoked"
	case r.Expired:
		return "expired"
	}
	return "ok"
}

// Manager runs the license lifecycle: activation, revocation, status and
// heartbeat. It is safe for concurrent use.
type Manager struct {
	signer          TokenSigner
	store           store.Store
	recorders       Recorders
	validate        *validator.Validate
	verifyHeartbeat bool
	nowFn           func() time.Time
	newID           func() string
	logger          *slog.Logger
}

type Option func(*Manager)

func WithRecorders(rs ...Recorder) Option {
	return func(m *Manager) {
		m.recorders = append(m.recorders, rs...)
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.nowFn = now
	}
}

func WithIDGenerator(newID func() string) Option {
	return func(m *Manager) {
		m.newID = newID
	}
}

// WithHeartbeatVerification makes Heartbeat verify the token signature
// instead of only decoding it.
func WithHeartbeatVerification(enabled bool) Option {
	return func(m *Manager) {
		m.verifyHeartbeat = enabled
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

func NewManager(tokens TokenSigner, records store.Store, opts ...Option) *Manager {
	m := &Manager{
		signer:   tokens,
		store:    records,
		validate: validator.New(),
		nowFn:    time.Now,
		newID:    uuid.NewString,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "lifecycle")
	return m
}

// Activate mints an id, signs a token for it and stores the record. Invalid
// input fails before anything is signed or written.
func (m *Manager) Activate(ctx context.Context, in ActivateInput) (*ActivateResult, error) {
	if err := m.validate.Struct(in); err != nil {
		if in.LicenseKey == "" || in.HWID == "" {
			return nil, fmt.Errorf("%w: license_key and hwid required", ErrInvalidInput)
		}
		return nil, fmt.Errorf("%w: duration_days must be between 0 and %d", ErrInvalidInput, MaxDurationDays)
	}
	days := DefaultDurationDays
	if in.DurationDays != nil {
		days = *in.DurationDays
	}

	id := m.newID()
	issued := m.nowFn().Unix()
	expires := issued + int64(days)*secondsPerDay

	token, err := m.signer.Sign(signer.NewClaims(id, in.LicenseKey, in.User, in.HWID, issued, expires, DefaultFeatures))
	if err != nil {
		return nil, fmt.Errorf("sign license token: %w", err)
	}

	record := &model.License{
		ID:         id,
		LicenseKey: in.LicenseKey,
		HWID:       in.HWID,
		User:       in.User,
		IssuedAt:   issued,
		ExpiresAt:  expires,
	}
	if err := m.store.Insert(ctx, record); err != nil {
		return nil, fmt.Errorf("store license %s: %w", id, err)
	}

	m.logger.InfoContext(ctx, "license activated",
		"license_id", id,
		"license_key", logging.MaskKey(in.LicenseKey),
		"expires_at", expires,
	)
	m.record(ctx, record, model.ActionActivate, "ok", issued)

	return &ActivateResult{Token: token, ID: id, ExpiresAt: expires}, nil
}

// Revoke latches the record as revoked. Issued tokens keep a valid signature;
// every authorization check goes through the store.
func (m *Manager) Revoke(ctx context.Context, id string) (*RevokeResult, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: jti required", ErrInvalidInput)
	}
	n, err := m.store.Revoke(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("revoke license %s: %w", id, err)
	}
	if n == 0 {
		return nil, fmt.Errorf("revoke license %s: %w", id, ErrNotFound)
	}

	m.logger.InfoContext(ctx, "license revoked", "license_id", id)
	m.record(ctx, &model.License{ID: id}, model.ActionRevoke, "revoked", m.nowFn().Unix())

	return &RevokeResult{ID: id, Revoked: true}, nil
}

func (m *Manager) Status(ctx context.Context, id string) (*LicenseStatus, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: jti required", ErrInvalidInput)
	}
	l, err := m.store.Lookup(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("license %s: %w", id, err)
	}
	return &LicenseStatus{
		ID:         l.ID,
		LicenseKey: l.LicenseKey,
		HWID:       l.HWID,
		User:       l.User,
		IssuedAt:   l.IssuedAt,
		ExpiresAt:  l.ExpiresAt,
		Revoked:    l.Revoked,
		LastSeen:   l.LastSeen,
	}, nil
}

// Heartbeat records that the token holder is alive and reports whether the
// license is revoked, expired or ok, in that order of precedence.
//
// By default the token is only decoded, not verified: possession of the token
// plus a live record decides. A forged token naming a known jti therefore
// counts as a heartbeat for that license; WithHeartbeatVerification closes
// that gap.
func (m *Manager) Heartbeat(ctx context.Context, token string) (*HeartbeatResult, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: token required", ErrInvalidInput)
	}

	read := m.signer.Decode
	if m.verifyHeartbeat {
		read = m.signer.Verify
	}
	claims, err := read(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.ID == "" {
		return nil, fmt.Errorf("%w: token has no jti", ErrInvalidToken)
	}

	l, err := m.store.Lookup(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("license %s: %w", claims.ID, err)
	}

	now := m.nowFn().Unix()
	if err := m.store.TouchLastSeen(ctx, l.ID, now); err != nil {
		return nil, fmt.Errorf("heartbeat %s: %w", l.ID, err)
	}

	var res HeartbeatResult
	switch {
	case l.Revoked:
		res.Revoked = true
	case l.Expired(now):
		res.Expired = true
	default:
		res.OK = true
		res.ExpiresAt = l.ExpiresAt
	}

	m.logger.DebugContext(ctx, "heartbeat", "license_id", l.ID, "result", res.Verdict())
	m.record(ctx, l, model.ActionHeartbeat, res.Verdict(), now)

	return &res, nil
}

func (m *Manager) record(ctx context.Context, l *model.License, action, result string, at int64) {
	if len(m.recorders) == 0 {
		return
	}
	m.recorders.Record(ctx, model.LicenseEvent{
		LicenseID:  l.ID,
		LicenseKey: l.LicenseKey,
		HWID:       l.HWID,
		Action:     action,
		Result:     result,
		CreatedAt:  time.Unix(at, 0).UTC(),
	})
}
