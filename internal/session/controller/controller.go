//go:generate mockgen -source=controller.go -destination=mocks/mocks.go -package=mocks

// Package controller is the client-side session state machine: it drives the
// login, logout, refresh and session-check flows against the auth gateway and
// the persisted session, and publishes the resulting state to subscribers.
package controller

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"teller/internal/auth/models"
	"teller/internal/session/persistence"
	dErrors "teller/pkg/domain-errors"
)

// Gateway is the network side of the auth flows.
type Gateway interface {
	Login(ctx context.Context, email, password string) (*models.AuthResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*models.AuthResponse, error)
	Logout(ctx context.Context, refreshToken string) error
	UserInfo(ctx context.Context, accessToken string) (*models.User, error)
}

// ExpiryChecker reports whether an access token can no longer be used.
type ExpiryChecker interface {
	IsExpired(token string) bool
}

// State is what the UI renders from.
type State struct {
	User            *models.User
	IsAuthenticated bool
	IsLoading       bool
	Error           string
}

// LoginResult reports the outcome of Login; Error is user-facing.
type LoginResult struct {
	Success bool
	Error   string
}

const (
	msgInvalidResponse = "Invalid response from server"
	msgLoginFailed     = "Login failed"
)

type Controller struct {
	gateway Gateway
	store   *persistence.Store
	expiry  ExpiryChecker
	clock   func() time.Time
	logger  *slog.Logger

	mu        sync.RWMutex
	state     State
	listeners map[int]func(State)
	nextID    int

	checking atomic.Bool
}

type Option func(*Controller)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithClock(clock func() time.Time) Option {
	return func(c *Controller) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithExpiryChecker lets UserInfo refresh ahead of a request with an expired access token.
func WithExpiryChecker(checker ExpiryChecker) Option {
	return func(c *Controller) {
		c.expiry = checker
	}
}

// New starts in the loading state; call CheckSession to resolve it.
func New(gateway Gateway, store *persistence.Store, opts ...Option) *Controller {
	c := &Controller{
		gateway:   gateway,
		store:     store,
		clock:     time.Now,
		logger:    slog.Default(),
		state:     State{IsLoading: true},
		listeners: make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns a snapshot of the current state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Subscribe registers fn for every state change and returns its cancel func.
func (c *Controller) Subscribe(fn func(State)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}
}

// update applies fn under the lock and notifies listeners outside it.
func (c *Controller) update(fn func(*State)) {
	c.mu.Lock()
	fn(&c.state)
	snapshot := c.state
	listeners := make([]func(State), 0, len(c.listeners))
	for _, l := range c.listeners {
		listeners = append(listeners, l)
	}
	c.mu.Unlock()

	for _, l := range listeners {
		l(snapshot)
	}
}

func (c *Controller) signedIn(user *models.User) {
	c.update(func(s *State) {
		*s = State{User: user, IsAuthenticated: true}
	})
}

func (c *Controller) signedOut() {
	c.update(func(s *State) {
		*s = State{}
	})
}

// Login authenticates with the password grant and persists the returned session.
func (c *Controller) Login(ctx context.Context, email, password string) LoginResult {
	c.update(func(s *State) {
		s.IsLoading = true
		s.Error = ""
	})

	fail := func(msg string) LoginResult {
		c.update(func(s *State) {
			s.IsLoading = false
			s.Error = msg
		})
		return LoginResult{Success: false, Error: msg}
	}

	res, err := c.gateway.Login(ctx, email, password)
	if err != nil {
		c.logger.WarnContext(ctx, "login failed", "error", err)
		return fail(userMessage(err, msgLoginFailed))
	}
	if res == nil || !res.Success || res.User == nil || res.Token == nil || res.Session == nil {
		return fail(msgInvalidResponse)
	}
	if err := c.store.Save(ctx, res.Session); err != nil {
		c.logger.ErrorContext(ctx, "failed to persist session", "error", err)
		return fail(userMessage(err, msgLoginFailed))
	}
	// Replaces any token rotated under the previous session.
	if err := c.store.SaveRefreshToken(ctx, res.Token.RefreshToken); err != nil {
		c.logger.ErrorContext(ctx, "failed to persist refresh token", "error", err)
		if clearErr := c.store.Clear(ctx); clearErr != nil {
			c.logger.WarnContext(ctx, "failed to clear session", "error", clearErr)
		}
		return fail(userMessage(err, msgLoginFailed))
	}

	c.signedIn(res.User)
	c.logger.InfoContext(ctx, "signed in", "user_id", res.User.ID)
	return LoginResult{Success: true}
}

// Logout revokes the stored refresh token on a best-effort basis. Local state
// is cleared whatever the server says.
func (c *Controller) Logout(ctx context.Context) {
	defer c.signedOut()

	if token, ok := c.store.RefreshToken(ctx); ok {
		if err := c.gateway.Logout(ctx, token); err != nil {
			c.logger.WarnContext(ctx, "logout request failed", "error", err)
		}
	}
	if err := c.store.Clear(ctx); err != nil {
		c.logger.ErrorContext(ctx, "failed to clear session", "error", err)
	}
}

// RefreshToken rotates the token pair. Any failure signs the user out.
func (c *Controller) RefreshToken(ctx context.Context) bool {
	if err := c.refresh(ctx); err != nil {
		c.logger.WarnContext(ctx, "token refresh failed", "error", err)
		c.Logout(ctx)
		return false
	}
	return true
}

func (c *Controller) refresh(ctx context.Context) error {
	stored, ok := c.store.RefreshToken(ctx)
	if !ok {
		return dErrors.New(dErrors.CodeInvalidGrant, "No refresh token available")
	}
	res, err := c.gateway.Refresh(ctx, stored)
	if err != nil {
		return err
	}
	if res == nil || !res.Success || res.Token == nil {
		return dErrors.New(dErrors.CodeInternal, msgInvalidResponse)
	}

	session := res.Session
	if !session.Complete() {
		session = c.mergeSession(ctx, res)
	}
	if session != nil {
		if err := c.store.Save(ctx, session); err != nil {
			return err
		}
	}
	// The separately stored token was just consumed by the server.
	if res.Token.RefreshToken != "" {
		if err := c.store.SaveRefreshToken(ctx, res.Token.RefreshToken); err != nil {
			return err
		}
	}
	if session != nil && session.User != nil {
		c.signedIn(session.User)
	}
	return nil
}

// mergeSession keeps the stored identity and swaps in a token-only refresh response.
func (c *Controller) mergeSession(ctx context.Context, res *models.AuthResponse) *models.Session {
	user := res.User
	if current, ok := c.store.Load(ctx); ok && current.User != nil {
		user = current.User
	}
	if user == nil {
		return nil
	}
	return models.NewSession(user, res.Token, c.clock())
}

// CheckSession restores state from the persisted session without a network
// call. A call made while another is running returns immediately.
func (c *Controller) CheckSession(ctx context.Context) {
	if !c.checking.CompareAndSwap(false, true) {
		return
	}
	defer c.checking.Store(false)

	session, ok := c.store.Load(ctx)
	if ok && session.Complete() {
		c.signedIn(session.User)
		return
	}
	c.update(func(s *State) {
		s.User = nil
		s.IsAuthenticated = false
		s.IsLoading = false
	})
}

// UserInfo re-validates the session against the server and returns the
// authoritative profile. A rejected token signs the user out.
func (c *Controller) UserInfo(ctx context.Context) (*models.User, error) {
	session, ok := c.store.Load(ctx)
	if !ok || !session.Complete() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "User not authenticated")
	}

	accessToken := session.Token.AccessToken
	if c.expiry != nil && c.expiry.IsExpired(accessToken) {
		if !c.RefreshToken(ctx) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "Session expired")
		}
		refreshed, ok := c.store.Load(ctx)
		if !ok || !refreshed.Complete() {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "Session expired")
		}
		accessToken = refreshed.Token.AccessToken
	}

	user, err := c.gateway.UserInfo(ctx, accessToken)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvalidToken) || dErrors.HasCode(err, dErrors.CodeUnauthorized) {
			c.Logout(ctx)
		}
		return nil, err
	}
	c.update(func(s *State) {
		*s = State{User: user, IsAuthenticated: true}
	})
	return user, nil
}

// userMessage surfaces coded messages and hides everything else behind fallback.
func userMessage(err error, fallback string) string {
	code := dErrors.CodeOf(err)
	if code == dErrors.CodeInternal {
		return fallback
	}
	if msg := dErrors.MessageOf(err); msg != "" {
		return msg
	}
	return fallback
}
