package auth

import (
	"context"
	"errors"

	"gymsync/internal/reactive"

	"go.uber.org/zap"
)

// ErrNoProvider is returned by SignIn on a session built without a provider.
var ErrNoProvider = errors.New("auth provider not configured")

// Session tracks who is signed in. Services look the user up through
// CurrentUser rather than having it pushed to them.
type Session struct {
	provider Provider
	state    *reactive.Store[*Identity]
	logger   *zap.Logger
}

func NewSession(provider Provider, logger *zap.Logger) *Session {
	return &Session{
		provider: provider,
		state:    reactive.NewStore[*Identity](nil),
		logger:   logger,
	}
}

// CurrentUser returns the signed-in identity or nil.
func (s *Session) CurrentUser() *Identity {
	return s.state.Get()
}

// CurrentUID returns the signed-in uid or "".
func (s *Session) CurrentUID() string {
	if id := s.state.Get(); id != nil {
		return id.UID
	}
	return ""
}

func (s *Session) State() reactive.Observable[*Identity] {
	return s.state.ReadOnly()
}

// OnChange calls fn after every sign-in and sign-out.
func (s *Session) OnChange(fn func(*Identity)) func() {
	return s.state.Subscribe(fn)
}

func (s *Session) SignIn(ctx context.Context, email, password string) (*Identity, error) {
	if s.provider == nil {
		return nil, ErrNoProvider
	}
	identity, err := s.provider.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}
	s.state.Set(identity)
	return identity, nil
}

func (s *Session) SignOut(ctx context.Context) error {
	if s.state.Get() == nil {
		return ErrNotSignedIn
	}
	if s.provider != nil {
		if err := s.provider.SignOut(ctx); err != nil {
			return err
		}
	}
	s.state.Set(nil)
	s.logger.Info("Signed out")
	return nil
}
