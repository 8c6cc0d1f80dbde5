package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	gojwt "github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrNotSignedIn        = errors.New("not signed in")
)

// Identity is the signed-in user as the auth provider reports it.
type Identity struct {
	UID         string
	Email       string
	DisplayName string
	IDToken     string
	ExpiresAt   time.Time // zero when the token carries no exp
}

// Expired reports whether the id token is past its expiry at now.
func (i *Identity) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && !now.Before(i.ExpiresAt)
}

type Provider interface {
	SignIn(ctx context.Context, email, password string) (*Identity, error)
	SignOut(ctx context.Context) error
}

// RESTConfig configures the password sign-in endpoint.
type RESTConfig struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	RetryCount int
}

type signInRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

type signInResponse struct {
	LocalID     string `json:"localId"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	IDToken     string `json:"idToken"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// RESTProvider signs in against an identity-toolkit style REST API.
type RESTProvider struct {
	httpClient *resty.Client
	apiKey     string
	logger     *zap.Logger
}

var _ Provider = (*RESTProvider)(nil)

func NewRESTProvider(cfg RESTConfig, logger *zap.Logger) *RESTProvider {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(3 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &RESTProvider{
		httpClient: client,
		apiKey:     cfg.APIKey,
		logger:     logger,
	}
}

func (p *RESTProvider) SignIn(ctx context.Context, email, password string) (*Identity, error) {
	var (
		result  signInResponse
		failure errorResponse
	)
	resp, err := p.httpClient.R().
		SetContext(ctx).
		SetQueryParam("key", p.apiKey).
		SetBody(signInRequest{Email: email, Password: password, ReturnSecureToken: true}).
		SetResult(&result).
		SetError(&failure).
		Post("/v1/accounts:signInWithPassword")
	if err != nil {
		return nil, fmt.Errorf("failed to call sign-in endpoint: %w", err)
	}

	if resp.IsError() {
		msg := failure.Error.Message
		p.logger.Warn("Sign-in rejected",
			zap.Int("status_code", resp.StatusCode()),
			zap.String("reason", msg),
		)
		if isCredentialError(msg) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("sign-in failed: %s (status: %d)", msg, resp.StatusCode())
	}

	identity := &Identity{
		UID:         result.LocalID,
		Email:       result.Email,
		DisplayName: result.DisplayName,
		IDToken:     result.IDToken,
	}
	if exp, ok := tokenExpiry(result.IDToken); ok {
		identity.ExpiresAt = exp
	}
	p.logger.Info("Signed in", zap.String("uid", identity.UID))
	return identity, nil
}

// SignOut has nothing to revoke remotely; id tokens simply expire.
func (p *RESTProvider) SignOut(context.Context) error {
	return nil
}

func isCredentialError(msg string) bool {
	for _, code := range []string{"INVALID_PASSWORD", "EMAIL_NOT_FOUND", "INVALID_LOGIN_CREDENTIALS", "INVALID_EMAIL"} {
		if strings.HasPrefix(msg, code) {
			return true
		}
	}
	return false
}

// tokenExpiry reads exp without verifying the signature. The token came
// straight from the provider over TLS.
func tokenExpiry(token string) (time.Time, bool) {
	if token == "" {
		return time.Time{}, false
	}
	parsed, _, err := gojwt.NewParser().ParseUnverified(token, gojwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
