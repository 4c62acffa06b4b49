package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/vuraweg/prepgate/pkg/account"
	"github.com/vuraweg/prepgate/pkg/credential"
	"github.com/vuraweg/prepgate/pkg/identity"
	"github.com/vuraweg/prepgate/pkg/observability"
	"github.com/vuraweg/prepgate/pkg/profile"
	"github.com/vuraweg/prepgate/pkg/ratelimit"
)

// oauthKey is the ledger identifier for OAuth callbacks: the email is
// unknown until the provider redirect returns, so failed exchanges are
// throttled under this synthetic identifier plus the global key.
const oauthKey = "__oauth__"

// Deps are the manager's collaborators. OAuth may be nil when the
// redirect channel is not configured.
type Deps struct {
	Provider    identity.Provider
	OAuth       *identity.OIDCAuthenticator
	Credentials credential.Store
	Limiter     *ratelimit.Limiter
	Profiles    profile.Store
	Admins      account.AdminChecker
	Avatars     account.AvatarResolver
	Logger      *observability.Logger
	Metrics     *observability.Metrics
}

// Manager owns one browsing context's session. All state mutations run
// under one mutex; the refresh path additionally coalesces concurrent
// callers through a single-flight group so at most one provider refresh
// is outstanding at any time.
type Manager struct {
	deps Deps
	cfg  Config
	now  func() time.Time

	mu          sync.Mutex
	state       State
	profile     *account.Profile
	record      credential.Record
	hasRecord   bool
	lifetime    credential.Lifetime
	channel     account.Channel
	initialized bool
	initGen     uint64

	refresh singleflight.Group

	subMu   sync.Mutex
	subs    map[int]chan Snapshot
	nextSub int

	schedulerStop chan struct{}
	schedulerOn   bool
	closeOnce     sync.Once
	closed        chan struct{}
}

// NewManager creates an uninitialized manager.
func NewManager(deps Deps, cfg Config) *Manager {
	return &Manager{
		deps:   deps,
		cfg:    cfg.normalized(),
		now:    time.Now,
		state:  StateUninitialized,
		subs:   make(map[int]chan Snapshot),
		closed: make(chan struct{}),
	}
}

// Current returns the latest snapshot.
func (m *Manager) Current() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Subscribe returns a channel of state snapshots and a cancel function.
// Slow consumers drop intermediate snapshots; transitions never block on
// a subscriber.
func (m *Manager) Subscribe() (<-chan Snapshot, func()) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	id := m.nextSub
	m.nextSub++
	ch := make(chan Snapshot, 8)
	m.subs[id] = ch

	cancel := func() {
		m.subMu.Lock()
		defer m.subMu.Unlock()
		if _, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

// Initialize resolves the session at process/context start: load the
// stored credential, refresh it if expired, and reconcile the profile.
// Bounded by InitTimeout; on deadline it resolves deterministically to
// Anonymous and a late provider reply cannot resurrect the session.
// Idempotent: a second call returns the current snapshot.
func (m *Manager) Initialize(ctx context.Context) Snapshot {
	m.mu.Lock()
	if m.initialized {
		snap := m.snapshotLocked()
		m.mu.Unlock()
		return snap
	}
	m.initialized = true
	gen := m.initGen
	m.setStateLocked(StateInitializing)
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, m.cfg.InitTimeout)
	defer cancel()

	done := make(chan Snapshot, 1)
	go func() {
		done <- m.initOnce(ctx, gen)
	}()

	select {
	case snap := <-done:
		return snap
	case <-ctx.Done():
		// Invalidate the in-flight attempt before settling anonymous so
		// its late result is discarded.
		m.mu.Lock()
		m.initGen++
		m.setStateLocked(StateAnonymous)
		snap := m.snapshotLocked()
		m.mu.Unlock()

		if m.deps.Metrics != nil {
			m.deps.Metrics.InitializeTimeoutTotal.Inc()
		}
		m.deps.Logger.Warn("Session initialization timed out, resolving anonymous")
		return snap
	}
}

// initOnce does the actual initialization work; its result is applied
// only while gen is still current.
func (m *Manager) initOnce(ctx context.Context, gen uint64) Snapshot {
	rec, lifetime, ok, err := m.deps.Credentials.Get(ctx)
	if err != nil {
		m.deps.Logger.WithError(err).Warn("Credential store read failed during initialization")
	}
	if !ok {
		return m.settleInit(gen, StateAnonymous, nil, credential.Record{}, lifetime)
	}

	if !m.now().Before(rec.ExpiresAt) {
		// Expired: one refresh attempt, then give up and clear.
		refreshed, err := m.deps.Provider.Refresh(ctx, rec.RefreshProof)
		if err != nil {
			m.clearCredentials(ctx)
			return m.settleInit(gen, StateAnonymous, nil, credential.Record{}, lifetime)
		}
		if err := m.deps.Credentials.Put(ctx, refreshed, lifetime); err != nil {
			m.deps.Logger.WithError(err).Warn("Failed to persist refreshed credential")
		}
		rec = refreshed
	}

	prof, err := m.resolveProfile(ctx, rec, m.channelOrDefault())
	if err != nil {
		m.clearCredentials(ctx)
		return m.settleInit(gen, StateAnonymous, nil, credential.Record{}, lifetime)
	}
	return m.settleInit(gen, StateAuthenticated, &prof, rec, lifetime)
}

func (m *Manager) settleInit(gen uint64, state State, prof *account.Profile, rec credential.Record, lifetime credential.Lifetime) Snapshot {
	m.mu.Lock()
	if m.initGen != gen {
		// Initialize already timed out; the session stays anonymous.
		snap := m.snapshotLocked()
		m.mu.Unlock()
		return snap
	}
	m.profile = prof
	m.record = rec
	m.hasRecord = state == StateAuthenticated
	m.lifetime = lifetime
	m.setStateLocked(state)
	snap := m.snapshotLocked()
	m.mu.Unlock()

	if state == StateAuthenticated {
		m.startScheduler()
	}
	return snap
}

// Login authenticates with the password channel. The rate limiter is
// consulted before the provider; failures record an attempt against the
// identifier and global ledgers.
func (m *Manager) Login(ctx context.Context, email, password string, remember bool) (Snapshot, error) {
	return m.authenticate(ctx, email, remember, account.ChannelPassword, func() (identity.Session, error) {
		return m.deps.Provider.SignIn(ctx, email, password)
	})
}

// SignUp registers a new account and signs it in, under the same
// limiter gate as login.
func (m *Manager) SignUp(ctx context.Context, email, password, displayName string, remember bool) (Snapshot, error) {
	return m.authenticate(ctx, email, remember, account.ChannelPassword, func() (identity.Session, error) {
		return m.deps.Provider.SignUp(ctx, email, password, displayName)
	})
}

// SendCode issues a one-time sign-in code, gated by the same ledgers as
// the other channels.
func (m *Manager) SendCode(ctx context.Context, email string) error {
	if m.deps.Limiter.IsBlocked(ctx, email) {
		return identity.RateLimitedError(m.deps.Limiter.TimeUntilUnblock(ctx, email))
	}
	if err := m.deps.Provider.SendCode(ctx, email); err != nil {
		m.deps.Limiter.RecordAttempt(ctx, email)
		return err
	}
	return nil
}

// LoginWithCode exchanges a one-time code for a session.
func (m *Manager) LoginWithCode(ctx context.Context, email, code string, remember bool) (Snapshot, error) {
	return m.authenticate(ctx, email, remember, account.ChannelOTP, func() (identity.Session, error) {
		return m.deps.Provider.VerifyCode(ctx, email, code)
	})
}

// OAuthURL returns the provider redirect target for the OAuth channel.
func (m *Manager) OAuthURL(state string) (string, error) {
	if m.deps.OAuth == nil {
		return "", identity.NewError(identity.CodeProviderConfig, "OAuth sign-in is not configured")
	}
	return m.deps.OAuth.AuthCodeURL(state), nil
}

// CompleteOAuth exchanges the callback code. The identifier is unknown
// before the redirect returns, so the gate runs on the OAuth and global
// ledgers; success resets the ledger for the email the provider reports.
func (m *Manager) CompleteOAuth(ctx context.Context, code string, remember bool) (Snapshot, error) {
	if m.deps.OAuth == nil {
		return m.Current(), identity.NewError(identity.CodeProviderConfig, "OAuth sign-in is not configured")
	}
	return m.authenticate(ctx, oauthKey, remember, account.ChannelOAuth, func() (identity.Session, error) {
		return m.deps.OAuth.Exchange(ctx, code)
	})
}

// authenticate is the shared flow for every proof channel: limiter gate,
// provider delegate, persist, reset ledger, reconcile, publish.
func (m *Manager) authenticate(ctx context.Context, limiterID string, remember bool, channel account.Channel, delegate func() (identity.Session, error)) (Snapshot, error) {
	if m.deps.Limiter.IsBlocked(ctx, limiterID) {
		m.observeAuth(channel, "rate_limited")
		return m.Current(), identity.RateLimitedError(m.deps.Limiter.TimeUntilUnblock(ctx, limiterID))
	}

	sess, err := delegate()
	if err != nil {
		m.deps.Limiter.RecordAttempt(ctx, limiterID)
		m.observeAuth(channel, "failure")
		return m.Current(), err
	}

	lifetime := credential.LifetimeEphemeral
	if remember {
		lifetime = credential.LifetimePersistent
	}
	if err := m.deps.Credentials.Put(ctx, sess.Credential, lifetime); err != nil {
		// The session still works for this process lifetime; losing
		// persistence is not a login failure.
		m.deps.Logger.WithError(err).Warn("Failed to persist credential")
	}

	m.deps.Limiter.Reset(ctx, limiterID)
	if sess.Identity.Email != "" && sess.Identity.Email != limiterID {
		m.deps.Limiter.Reset(ctx, sess.Identity.Email)
	}

	prof := m.reconcile(ctx, sess.Identity, channel)

	m.mu.Lock()
	m.initialized = true
	m.profile = &prof
	m.record = sess.Credential
	m.hasRecord = true
	m.lifetime = lifetime
	m.channel = channel
	m.setStateLocked(StateAuthenticated)
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.startScheduler()
	m.observeAuth(channel, "success")
	return snap, nil
}

// Refresh renews the credential record. Single-flight: concurrent
// callers while one refresh is in flight coalesce onto a single provider
// call and all receive its outcome. Any refresh failure is an
// unconditional local sign-out.
func (m *Manager) Refresh(ctx context.Context) (Snapshot, error) {
	type result struct {
		snap Snapshot
	}

	v, err, shared := m.refresh.Do("refresh", func() (interface{}, error) {
		// Detached context: the shared outcome must not die with the
		// first caller that gives up waiting.
		rctx, cancel := context.WithTimeout(context.Background(), m.cfg.RefreshTimeout)
		defer cancel()

		snap, err := m.doRefresh(rctx)
		return result{snap: snap}, err
	})
	if shared && m.deps.Metrics != nil {
		m.deps.Metrics.RefreshCoalescedTotal.Inc()
	}
	if err != nil {
		return m.Current(), err
	}
	return v.(result).snap, nil
}

func (m *Manager) doRefresh(ctx context.Context) (Snapshot, error) {
	m.mu.Lock()
	if !m.hasRecord {
		snap := m.snapshotLocked()
		m.mu.Unlock()
		return snap, identity.WrapError(identity.CodeSessionExpired, identity.ErrSessionExpired.Message,
			errors.New("no credential record to refresh"))
	}
	rec := m.record
	lifetime := m.lifetime
	channel := m.channelOrDefault()
	m.setStateLocked(StateInitializing)
	m.mu.Unlock()

	refreshed, err := m.deps.Provider.Refresh(ctx, rec.RefreshProof)
	if err != nil {
		// Hard logout, never a silent retry: a stale authenticated state
		// with an unusable proof is worse than forcing re-login.
		m.observeRefresh("failure")
		snap := m.teardown(ctx, StateAnonymous)
		return snap, err
	}

	if err := m.deps.Credentials.Put(ctx, refreshed, lifetime); err != nil {
		m.deps.Logger.WithError(err).Warn("Failed to persist refreshed credential")
	}

	prof := m.reconcile(ctx, m.identityFor(ctx, refreshed), channel)

	m.mu.Lock()
	m.record = refreshed
	m.hasRecord = true
	m.profile = &prof
	m.setStateLocked(StateAuthenticated)
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.observeRefresh("success")
	return snap, nil
}

// Resume re-validates the session when the browsing context regains
// foreground visibility: timers may have been suspended while
// backgrounded, so an expired record refreshes immediately and a live
// one is cheaply validated provider-side.
func (m *Manager) Resume(ctx context.Context) (Snapshot, error) {
	m.mu.Lock()
	hasRecord := m.hasRecord
	rec := m.record
	m.mu.Unlock()

	if !hasRecord {
		return m.Current(), nil
	}
	if !m.now().Before(rec.ExpiresAt.Add(-m.cfg.RefreshSkew)) {
		return m.Refresh(ctx)
	}

	if _, err := m.deps.Provider.User(ctx, rec.AccessProof); err != nil {
		if errors.Is(err, identity.ErrSessionExpired) {
			return m.Refresh(ctx)
		}
		// Network trouble is not proof rejection; keep the session.
		m.deps.Logger.WithError(err).Debug("Resume validation inconclusive")
	}
	return m.Current(), nil
}

// SignOut notifies the provider best-effort, then unconditionally clears
// local state. Provider failure is logged, never surfaced.
func (m *Manager) SignOut(ctx context.Context) Snapshot {
	m.mu.Lock()
	rec := m.record
	hasRecord := m.hasRecord
	m.mu.Unlock()

	if hasRecord {
		if err := m.deps.Provider.SignOut(ctx, rec.AccessProof); err != nil {
			m.deps.Logger.WithError(err).Warn("Provider sign-out failed, clearing locally anyway")
		}
	}

	m.publishState(StateSignedOut)
	return m.teardown(ctx, StateAnonymous)
}

// teardown clears credentials and profile and settles in final. A
// credential tier that cannot be cleared leaves the context incoherent,
// which is the one case that lands in StateError.
func (m *Manager) teardown(ctx context.Context, final State) Snapshot {
	if err := m.clearCredentials(ctx); err != nil {
		final = StateError
	}

	m.mu.Lock()
	m.profile = nil
	m.record = credential.Record{}
	m.hasRecord = false
	m.setStateLocked(final)
	snap := m.snapshotLocked()
	m.mu.Unlock()
	return snap
}

func (m *Manager) clearCredentials(ctx context.Context) error {
	if err := m.deps.Credentials.Clear(ctx); err != nil {
		m.deps.Logger.WithError(err).Error("Failed to clear credential tiers")
		return err
	}
	return nil
}

// Close stops the scheduler and releases subscribers. Idempotent.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.closed)

		m.mu.Lock()
		if m.schedulerOn {
			close(m.schedulerStop)
			m.schedulerOn = false
		}
		m.mu.Unlock()

		m.subMu.Lock()
		for id, ch := range m.subs {
			delete(m.subs, id)
			close(ch)
		}
		m.subMu.Unlock()
	})
}

// startScheduler launches the periodic expiry check. One goroutine per
// manager, started on the first authenticated state, stopped by Close.
func (m *Manager) startScheduler() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.schedulerOn {
		return
	}
	select {
	case <-m.closed:
		return
	default:
	}
	m.schedulerStop = make(chan struct{})
	m.schedulerOn = true

	stop := m.schedulerStop
	go m.runScheduler(stop)
}

func (m *Manager) runScheduler(stop chan struct{}) {
	ticker := time.NewTicker(m.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.mu.Lock()
			due := m.hasRecord && !m.now().Before(m.record.ExpiresAt.Add(-m.cfg.RefreshSkew))
			m.mu.Unlock()

			if due {
				if _, err := m.Refresh(context.Background()); err != nil {
					m.deps.Logger.WithError(err).Warn("Scheduled refresh failed, session torn down")
				}
			}
		}
	}
}

// resolveProfile fetches the identity record and reconciles it; used on
// the initialize path where the provider record is not in hand yet.
func (m *Manager) resolveProfile(ctx context.Context, rec credential.Record, channel account.Channel) (account.Profile, error) {
	idRec, err := m.deps.Provider.User(ctx, rec.AccessProof)
	if err != nil {
		return account.Profile{}, fmt.Errorf("failed to fetch identity record: %w", err)
	}
	return m.reconcile(ctx, idRec, channel), nil
}

// identityFor fetches the identity record behind a fresh credential,
// degrading to the sparse record derivable from the credential itself
// when the provider lookup fails mid-refresh.
func (m *Manager) identityFor(ctx context.Context, rec credential.Record) identity.Record {
	idRec, err := m.deps.Provider.User(ctx, rec.AccessProof)
	if err != nil {
		m.deps.Logger.WithError(err).Warn("Identity lookup failed after refresh, using sparse record")
		m.mu.Lock()
		prev := m.profile
		m.mu.Unlock()
		if prev != nil {
			return identity.Record{ID: prev.ID, Email: prev.Email, DisplayName: prev.DisplayName, AvatarKey: prev.AvatarKey}
		}
		return identity.Record{ID: rec.UserID}
	}
	return idRec
}

// reconcile merges the identity record with the stored portal profile.
// A failed profile lookup reconciles with nil; absence is an expected
// input, and the provider data still yields a complete profile.
func (m *Manager) reconcile(ctx context.Context, rec identity.Record, channel account.Channel) account.Profile {
	var stored *profile.StoredProfile
	if m.deps.Profiles != nil && rec.ID != "" {
		p, err := m.deps.Profiles.Get(ctx, rec.ID)
		switch {
		case err == nil:
			stored = &p
		case errors.Is(err, profile.ErrNotFound):
			// First sign-in; nothing saved yet.
		default:
			m.deps.Logger.WithError(err).Warn("Profile lookup failed, reconciling without it")
		}
	}
	return account.Reconcile(rec, channel, stored, m.deps.Admins, m.deps.Avatars)
}

func (m *Manager) channelOrDefault() account.Channel {
	if m.channel == "" {
		return account.ChannelPassword
	}
	return m.channel
}

// snapshotLocked builds the current snapshot; callers hold mu.
func (m *Manager) snapshotLocked() Snapshot {
	snap := Snapshot{State: m.state}
	if m.profile != nil {
		copied := *m.profile
		snap.Profile = &copied
	}
	if m.hasRecord {
		snap.ExpiresAt = m.record.ExpiresAt
	}
	return snap
}

// setStateLocked transitions and fans out; callers hold mu.
func (m *Manager) setStateLocked(next State) {
	if m.state == next && next != StateInitializing {
		return
	}
	m.state = next
	if m.deps.Metrics != nil {
		m.deps.Metrics.SessionTransitions.WithLabelValues(next.String()).Inc()
	}
	m.fanOut(m.snapshotLocked())
}

func (m *Manager) publishState(next State) {
	m.mu.Lock()
	m.setStateLocked(next)
	m.mu.Unlock()
}

func (m *Manager) fanOut(snap Snapshot) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- snap:
		default:
			// Slow consumer: drop rather than block a transition.
		}
	}
}

func (m *Manager) observeAuth(channel account.Channel, outcome string) {
	if m.deps.Metrics != nil {
		m.deps.Metrics.AuthAttemptsTotal.WithLabelValues(string(channel), outcome).Inc()
	}
}

func (m *Manager) observeRefresh(outcome string) {
	if m.deps.Metrics != nil {
		m.deps.Metrics.RefreshTotal.WithLabelValues(outcome).Inc()
	}
}
