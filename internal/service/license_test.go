package service

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"license-server/internal/model"
	"license-server/internal/signer"
	"license-server/internal/store"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Unix(1_700_000_000, 0)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// spyStore counts writes on top of a MemoryStore.
type spyStore struct {
	*store.MemoryStore
	inserts atomic.Int64
}

func (s *spyStore) Insert(ctx context.Context, l *model.License) error {
	s.inserts.Add(1)
	return s.MemoryStore.Insert(ctx, l)
}

// fakeSigner skips cryptography: the token is the jti.
type fakeSigner struct {
	calls atomic.Int64
	err   error
}

func (f *fakeSigner) Sign(c signer.Claims) (string, error) {
	f.calls.Add(1)
	if f.err != nil {
		return "", f.err
	}
	return c.ID, nil
}

func (f *fakeSigner) Decode(raw string) (*signer.Claims, error) {
	c := signer.Claims{}
	c.ID = raw
	return &c, nil
}

func (f *fakeSigner) Verify(raw string) (*signer.Claims, error) {
	return f.Decode(raw)
}

func newSigner(t *testing.T) *signer.Signer {
	t.Helper()
	pemBytes, err := signer.GenerateKey("EdDSA", 0)
	require.NoError(t, err)
	s, err := signer.New(pemBytes)
	require.NoError(t, err)
	return s
}

func intPtr(n int) *int {
	return &n
}

func TestLifecycleScenario(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	m := NewManager(newSigner(t), store.NewMemoryStore(), WithClock(clk.Now))

	act, err := m.Activate(ctx, ActivateInput{LicenseKey: "ABC", HWID: "H1", DurationDays: intPtr(1)})
	require.NoError(t, err)
	assert.NotEmpty(t, act.Token)
	assert.Equal(t, clk.Now().Unix()+86400, act.ExpiresAt)

	st, err := m.Status(ctx, act.ID)
	require.NoError(t, err)
	assert.False(t, st.Revoked)
	assert.Equal(t, "H1", st.HWID)
	assert.Equal(t, "ABC", st.LicenseKey)

	hb, err := m.Heartbeat(ctx, act.Token)
	require.NoError(t, err)
	assert.Equal(t, HeartbeatResult{OK: true, ExpiresAt: act.ExpiresAt}, *hb)

	rv, err := m.Revoke(ctx, act.ID)
	require.NoError(t, err)
	assert.True(t, rv.Revoked)

	hb, err = m.Heartbeat(ctx, act.Token)
	require.NoError(t, err)
	assert.Equal(t, HeartbeatResult{Revoked: true}, *hb)

	st, err = m.Status(ctx, act.ID)
	require.NoError(t, err)
	assert.True(t, st.Revoked)
}

func TestActivateTokenClaims(t *testing.T) {
	clk := newClock()
	m := NewManager(newSigner(t), store.NewMemoryStore(), WithClock(clk.Now))

	act, err := m.Activate(context.Background(), ActivateInput{LicenseKey: "ABC", HWID: "H1", User: "alice"})
	require.NoError(t, err)

	claims, err := signer.Decode(act.Token)
	require.NoError(t, err)
	assert.Equal(t, act.ID, claims.ID)
	assert.Equal(t, "ABC", claims.Subject)
	assert.Equal(t, "alice", claims.User)
	assert.Equal(t, "H1", claims.HWID)
	assert.Equal(t, clk.Now().Unix(), claims.IssuedAt.Unix())
	assert.Equal(t, act.ExpiresAt, claims.ExpiresAt.Unix())
	assert.Equal(t, map[string]bool{"bot": true}, claims.Features)
}

func TestActivateIDsUnique(t *testing.T) {
	const n = 10_000
	m := NewManager(&fakeSigner{}, store.NewMemoryStore())

	seen := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		act, err := m.Activate(context.Background(), ActivateInput{LicenseKey: "ABC", HWID: "H1"})
		require.NoError(t, err)
		_, dup := seen[act.ID]
		require.False(t, dup, "duplicate id %s", act.ID)
		seen[act.ID] = struct{}{}
	}
	assert.Len(t, seen, n)
}

func TestActivateExpiryArithmetic(t *testing.T) {
	tests := []struct {
		name string
		days *int
		want int64
	}{
		{name: "default", days: nil, want: 365 * 86400},
		{name: "zero", days: intPtr(0), want: 0},
		{name: "one", days: intPtr(1), want: 86400},
		{name: "thirty", days: intPtr(30), want: 30 * 86400},
		{name: "ten_years", days: intPtr(3650), want: 3650 * 86400},
		{name: "max", days: intPtr(MaxDurationDays), want: MaxDurationDays * 86400},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records := store.NewMemoryStore()
			m := NewManager(&fakeSigner{}, records, WithClock(newClock().Now))

			act, err := m.Activate(context.Background(), ActivateInput{LicenseKey: "ABC", HWID: "H1", DurationDays: tt.days})
			require.NoError(t, err)

			l, err := records.Lookup(context.Background(), act.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, l.ExpiresAt-l.IssuedAt)
			assert.Equal(t, act.ExpiresAt, l.ExpiresAt)
			assert.GreaterOrEqual(t, l.ExpiresAt, l.IssuedAt)
		})
	}
}

func TestActivateInvalidInput(t *testing.T) {
	tests := []struct {
		name  string
		input ActivateInput
	}{
		{name: "missing_hwid", input: ActivateInput{LicenseKey: "ABC"}},
		{name: "missing_license_key", input: ActivateInput{HWID: "H1"}},
		{name: "missing_both", input: ActivateInput{User: "alice"}},
		{name: "negative_duration", input: ActivateInput{LicenseKey: "ABC", HWID: "H1", DurationDays: intPtr(-1)}},
		{name: "duration_over_max", input: ActivateInput{LicenseKey: "ABC", HWID: "H1", DurationDays: intPtr(MaxDurationDays + 1)}},
		{name: "huge_duration", input: ActivateInput{LicenseKey: "ABC", HWID: "H1", DurationDays: intPtr(math.MaxInt64 / 86400)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records := &spyStore{MemoryStore: store.NewMemoryStore()}
			tokens := &fakeSigner{}
			m := NewManager(tokens, records)

			_, err := m.Activate(context.Background(), tt.input)
			assert.ErrorIs(t, err, ErrInvalidInput)
			assert.Equal(t, KindInvalidInput, KindOf(err))
			assert.Zero(t, records.inserts.Load())
			assert.Zero(t, records.Len())
			assert.Zero(t, tokens.calls.Load())
		})
	}
}

func TestActivateSigningFailure(t *testing.T) {
	records := &spyStore{MemoryStore: store.NewMemoryStore()}
	m := NewManager(&fakeSigner{err: signer.ErrSigning}, records)

	_, err := m.Activate(context.Background(), ActivateInput{LicenseKey: "ABC", HWID: "H1"})
	assert.ErrorIs(t, err, ErrSigning)
	assert.Equal(t, KindSigning, KindOf(err))
	assert.Zero(t, records.inserts.Load())
}

func TestActivateDuplicateID(t *testing.T) {
	m := NewManager(&fakeSigner{}, store.NewMemoryStore(), WithIDGenerator(func() string { return "fixed" }))

	_, err := m.Activate(context.Background(), ActivateInput{LicenseKey: "ABC", HWID: "H1"})
	require.NoError(t, err)

	_, err = m.Activate(context.Background(), ActivateInput{LicenseKey: "ABC", HWID: "H2"})
	assert.ErrorIs(t, err, ErrDuplicateKey)
	assert.Equal(t, KindDuplicateKey, KindOf(err))
}

func TestRevokeIdempotent(t *testing.T) {
	ctx := context.Background()
	m := NewManager(&fakeSigner{}, store.NewMemoryStore())
	act, err := m.Activate(ctx, ActivateInput{LicenseKey: "ABC", HWID: "H1"})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		res, err := m.Revoke(ctx, act.ID)
		require.NoError(t, err)
		assert.Equal(t, RevokeResult{ID: act.ID, Revoked: true}, *res)

		st, err := m.Status(ctx, act.ID)
		require.NoError(t, err)
		assert.True(t, st.Revoked)
	}
}

func TestUnknownIDNotFound(t *testing.T) {
	ctx := context.Background()
	s := newSigner(t)
	m := NewManager(s, store.NewMemoryStore())

	_, err := m.Status(ctx, "never-activated")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = m.Revoke(ctx, "never-activated")
	assert.ErrorIs(t, err, ErrNotFound)

	now := time.Now().Unix()
	token, err := s.Sign(signer.NewClaims("never-activated", "ABC", "", "H1", now, now+60, nil))
	require.NoError(t, err)
	_, err = m.Heartbeat(ctx, token)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestEmptyIDInvalidInput(t *testing.T) {
	m := NewManager(&fakeSigner{}, store.NewMemoryStore())

	_, err := m.Status(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = m.Revoke(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = m.Heartbeat(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestHeartbeatClassification(t *testing.T) {
	tests := []struct {
		name    string
		days    int
		revoke  bool
		advance time.Duration
		want    string
	}{
		{name: "ok", days: 1, want: "ok"},
		{name: "ok_at_expiry_second", days: 1, advance: 24 * time.Hour, want: "ok"},
		{name: "expired", days: 1, advance: 24*time.Hour + time.Second, want: "expired"},
		{name: "revoked", days: 1, revoke: true, want: "revoked"},
		{name: "revoked_wins_over_expired", days: 1, revoke: true, advance: 48 * time.Hour, want: "revoked"},
		{name: "zero_days_expires_next_second", days: 0, advance: time.Second, want: "expired"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			clk := newClock()
			m := NewManager(newSigner(t), store.NewMemoryStore(), WithClock(clk.Now))

			act, err := m.Activate(ctx, ActivateInput{LicenseKey: "ABC", HWID: "H1", DurationDays: intPtr(tt.days)})
			require.NoError(t, err)
			if tt.revoke {
				_, err = m.Revoke(ctx, act.ID)
				require.NoError(t, err)
			}
			clk.Advance(tt.advance)

			hb, err := m.Heartbeat(ctx, act.Token)
			require.NoError(t, err)
			assert.Equal(t, tt.want, hb.Verdict())

			set := 0
			for _, flag := range []bool{hb.OK, hb.Revoked, hb.Expired} {
				if flag {
					set++
				}
			}
			assert.Equal(t, 1, set, "exactly one verdict flag")
			if hb.OK {
				assert.Equal(t, act.ExpiresAt, hb.ExpiresAt)
			} else {
				assert.Zero(t, hb.ExpiresAt)
			}
		})
	}
}

func TestHeartbeatAdvancesLastSeen(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	records := store.NewMemoryStore()
	m := NewManager(newSigner(t), records, WithClock(clk.Now))

	revoked, err := m.Activate(ctx, ActivateInput{LicenseKey: "ABC", HWID: "H1"})
	require.NoError(t, err)
	_, err = m.Revoke(ctx, revoked.ID)
	require.NoError(t, err)

	expired, err := m.Activate(ctx, ActivateInput{LicenseKey: "ABC", HWID: "H2", DurationDays: intPtr(1)})
	require.NoError(t, err)

	clk.Advance(72 * time.Hour)

	for _, act := range []*ActivateResult{revoked, expired} {
		hb, err := m.Heartbeat(ctx, act.Token)
		require.NoError(t, err)
		assert.False(t, hb.OK)

		st, err := m.Status(ctx, act.ID)
		require.NoError(t, err)
		assert.Equal(t, clk.Now().Unix(), st.LastSeen)
	}
}

func TestHeartbeatInvalidToken(t *testing.T) {
	noJTI, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "ABC"}).SignedString([]byte("k"))
	require.NoError(t, err)

	m := NewManager(newSigner(t), store.NewMemoryStore())
	for _, token := range []string{"garbage", "a.b.c", noJTI} {
		_, err := m.Heartbeat(context.Background(), token)
		assert.ErrorIs(t, err, ErrInvalidToken, token)
		assert.Equal(t, KindInvalidToken, KindOf(err))
	}
}

func TestHeartbeatSignatureModes(t *testing.T) {
	ctx := context.Background()
	issuer := newSigner(t)
	forger := newSigner(t)
	records := store.NewMemoryStore()

	act, err := NewManager(issuer, records).Activate(ctx, ActivateInput{LicenseKey: "ABC", HWID: "H1"})
	require.NoError(t, err)

	now := time.Now().Unix()
	forged, err := forger.Sign(signer.NewClaims(act.ID, "ABC", "", "H1", now, now+60, nil))
	require.NoError(t, err)

	// default path only decodes, so the forged token is accepted
	hb, err := NewManager(issuer, records).Heartbeat(ctx, forged)
	require.NoError(t, err)
	assert.True(t, hb.OK)

	strict := NewManager(issuer, records, WithHeartbeatVerification(true))
	_, err = strict.Heartbeat(ctx, forged)
	assert.ErrorIs(t, err, ErrInvalidToken)

	hb, err = strict.Heartbeat(ctx, act.Token)
	require.NoError(t, err)
	assert.True(t, hb.OK)
}

func TestRecordersReceiveEvents(t *testing.T) {
	ctx := context.Background()
	var (
		mu     sync.Mutex
		events []model.LicenseEvent
	)
	capture := RecorderFunc(func(_ context.Context, e model.LicenseEvent) error {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
		return nil
	})
	failing := RecorderFunc(func(context.Context, model.LicenseEvent) error {
		return errors.New("sink down")
	})

	m := NewManager(newSigner(t), store.NewMemoryStore(), WithRecorders(failing, capture))

	act, err := m.Activate(ctx, ActivateInput{LicenseKey: "ABC", HWID: "H1"})
	require.NoError(t, err)
	_, err = m.Heartbeat(ctx, act.Token)
	require.NoError(t, err)
	_, err = m.Revoke(ctx, act.ID)
	require.NoError(t, err)
	_, err = m.Status(ctx, act.ID)
	require.NoError(t, err)

	// failed operations emit nothing
	_, _ = m.Revoke(ctx, "missing")

	require.Len(t, events, 3)
	assert.Equal(t, model.ActionActivate, events[0].Action)
	assert.Equal(t, "ABC", events[0].LicenseKey)
	assert.Equal(t, model.ActionHeartbeat, events[1].Action)
	assert.Equal(t, "ok", events[1].Result)
	assert.Equal(t, model.ActionRevoke, events[2].Action)
	for _, e := range events {
		assert.Equal(t, act.ID, e.LicenseID)
	}
}

func TestConcurrentHeartbeatsAndRevoke(t *testing.T) {
	ctx := context.Background()
	m := NewManager(newSigner(t), store.NewMemoryStore())
	act, err := m.Activate(ctx, ActivateInput{LicenseKey: "ABC", HWID: "H1"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Heartbeat(ctx, act.Token)
			assert.NoError(t, err)
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := m.Revoke(ctx, act.ID)
		assert.NoError(t, err)
	}()
	wg.Wait()

	hb, err := m.Heartbeat(ctx, act.Token)
	require.NoError(t, err)
	assert.True(t, hb.Revoked)
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{err: ErrInvalidInput, want: KindInvalidInput},
		{err: ErrInvalidToken, want: KindInvalidToken},
		{err: store.ErrNotFound, want: KindNotFound},
		{err: store.ErrDuplicateKey, want: KindDuplicateKey},
		{err: signer.ErrSigning, want: KindSigning},
		{err: errors.New("disk full"), want: KindInternal},
	}

	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}
