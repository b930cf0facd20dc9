// Package services contains server-side business logic. AuthService composes
// the credential store, password verification, token signing and the refresh
// token registry into login, refresh and logout.
package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/authcore/internal/common"
	"github.com/dmitrijs2005/authcore/internal/logging"
	"github.com/dmitrijs2005/authcore/internal/server/auth"
	"github.com/dmitrijs2005/authcore/internal/server/config"
	"github.com/dmitrijs2005/authcore/internal/server/metrics"
	"github.com/dmitrijs2005/authcore/internal/server/models"
	"github.com/dmitrijs2005/authcore/internal/server/password"
	"github.com/dmitrijs2005/authcore/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/authcore/internal/server/repositories/users"
	"github.com/google/uuid"
)

const (
	minPasswordLen = 8
	maxPasswordLen = 72 // bcrypt input limit in bytes
	maxEmailLen    = 254
)

// AccessTokenBody is everything a successful login puts in the response body.
type AccessTokenBody struct {
	AccessToken string `json:"accessToken"`
}

// RefreshCookie is the instruction to set the refresh token cookie. It is the
// only place the refresh token appears in a LoginResult.
type RefreshCookie struct {
	Name     string
	Value    string
	Path     string
	Domain   string
	MaxAge   int
	Expires  time.Time
	HttpOnly bool
	Secure   bool
	SameSite http.SameSite
}

// HTTP converts the instruction to an *http.Cookie.
func (c RefreshCookie) HTTP() *http.Cookie {
	return &http.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Path:     c.Path,
		Domain:   c.Domain,
		MaxAge:   c.MaxAge,
		Expires:  c.Expires,
		HttpOnly: c.HttpOnly,
		Secure:   c.Secure,
		SameSite: c.SameSite,
	}
}

// LoginResult has two outputs: Body for the response payload and Cookie for
// the Set-Cookie header.
type LoginResult struct {
	Body   AccessTokenBody
	Cookie RefreshCookie
}

type cookieSettings struct {
	name     string
	path     string
	domain   string
	secure   bool
	sameSite http.SameSite
}

// AuthService is safe for concurrent use.
type AuthService struct {
	users    users.Repository
	registry refreshtokens.Registry
	signer   *auth.Signer
	hasher   *password.Hasher
	log      logging.Logger
	metrics  *metrics.Metrics

	accessTTL  time.Duration
	refreshTTL time.Duration
	cookie     cookieSettings
	newID      func() string
}

// NewAuthService wires the service. m may be nil.
func NewAuthService(
	u users.Repository,
	r refreshtokens.Registry,
	signer *auth.Signer,
	hasher *password.Hasher,
	cfg *config.Config,
	log logging.Logger,
	m *metrics.Metrics,
) (*AuthService, error) {
	sameSite, err := cfg.SameSite()
	if err != nil {
		return nil, err
	}

	return &AuthService{
		users:      u,
		registry:   r,
		signer:     signer,
		hasher:     hasher,
		log:        log,
		metrics:    m,
		accessTTL:  cfg.AccessTokenValidityDuration,
		refreshTTL: cfg.RefreshTokenValidityDuration,
		cookie: cookieSettings{
			name:     cfg.RefreshTokenCookie,
			path:     cfg.CookiePath,
			domain:   cfg.CookieDomain,
			secure:   cfg.CookieSecure,
			sameSite: sameSite,
		},
		newID: uuid.NewString,
	}, nil
}

// CookieName is the configured refresh token cookie name.
func (s *AuthService) CookieName() string {
	return s.cookie.name
}

// Login checks the credentials and, on success, issues an access token and a
// refresh token and records the refresh token in the registry.
//
// An unknown email and a wrong password both end in common.ErrInvalidCredentials
// after the same amount of hashing work. A stored hash with stale parameters
// is replaced after a successful login. Store failures and corrupt stored
// hashes end in common.ErrorInternal.
func (s *AuthService) Login(ctx context.Context, email, pw string) (*LoginResult, error) {
	user, err := s.users.GetUserByEmail(ctx, email)

	hash := s.hasher.DummyHash()
	switch {
	case err == nil:
		hash = user.PasswordHash
	case errors.Is(err, common.ErrorNotFound):
		user = nil
	default:
		s.log.Error(ctx, "user lookup failed", "error", err)
		s.countLogin(metrics.OutcomeError)
		return nil, common.ErrorInternal
	}

	match, err := password.Verify(pw, hash)
	if err != nil && user != nil {
		s.log.Error(ctx, "stored credential unusable", "user_id", user.ID, "error", err)
		s.countLogin(metrics.OutcomeError)
		return nil, common.ErrorInternal
	}

	if rejected := user == nil || !match; rejected {
		s.countLogin(metrics.OutcomeRejected)
		return nil, common.ErrInvalidCredentials
	}

	// a caller that went away gets nothing recorded on its behalf
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pair, err := s.issuePair(user.ID)
	if err != nil {
		s.log.Error(ctx, "token issue failed", "user_id", user.ID, "error", err)
		s.countLogin(metrics.OutcomeError)
		return nil, common.ErrorInternal
	}

	rc := pair.refreshClaims
	if err := s.registry.Record(ctx, rc.TokenID, user.ID, rc.IssuedAt, rc.ExpiresAt); err != nil {
		s.log.Error(ctx, "refresh token record failed", "user_id", user.ID, "token_id", rc.TokenID, "error", err)
		s.countLogin(metrics.OutcomeError)
		return nil, common.ErrorInternal
	}

	s.rehashIfStale(ctx, user, pw)

	s.log.Info(ctx, "login succeeded", "user_id", user.ID, "token_id", rc.TokenID)
	s.countLogin(metrics.OutcomeSuccess)
	return s.result(pair), nil
}

// Refresh exchanges a refresh token for a new pair. The presented token is
// revoked in the same step (rotation). Presenting a token that is already
// revoked is treated as theft: every session of the subject is revoked and
// common.ErrRefreshTokenReused is returned.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	if refreshToken == "" {
		s.countRefresh(metrics.OutcomeRejected)
		return nil, common.ErrInvalidCredentials
	}

	claims, err := s.signer.ValidateType(refreshToken, auth.TokenRefresh)
	if err != nil {
		s.countRefresh(metrics.OutcomeRejected)
		return nil, err
	}

	pair, err := s.issuePair(claims.Subject)
	if err != nil {
		s.log.Error(ctx, "token issue failed", "user_id", claims.Subject, "error", err)
		s.countRefresh(metrics.OutcomeError)
		return nil, common.ErrorInternal
	}

	rc := pair.refreshClaims
	next := &models.RefreshToken{
		TokenID:   rc.TokenID,
		UserID:    claims.Subject,
		IssuedAt:  rc.IssuedAt,
		ExpiresAt: rc.ExpiresAt,
	}

	err = s.registry.Rotate(ctx, claims.TokenID, next)
	switch {
	case err == nil:
		s.log.Info(ctx, "refresh token rotated", "user_id", claims.Subject, "old_token_id", claims.TokenID, "token_id", rc.TokenID)
		s.countRefresh(metrics.OutcomeSuccess)
		return s.result(pair), nil

	case errors.Is(err, common.ErrRefreshTokenRevoked):
		s.log.Warn(ctx, "revoked refresh token presented, revoking all sessions", "user_id", claims.Subject, "token_id", claims.TokenID)
		if err := s.registry.RevokeAllForSubject(ctx, claims.Subject); err != nil {
			s.log.Error(ctx, "revoke all failed", "user_id", claims.Subject, "error", err)
		}
		s.countRefresh(metrics.OutcomeReused)
		return nil, common.ErrRefreshTokenReused

	case errors.Is(err, common.ErrorNotFound), errors.Is(err, common.ErrTokenExpired):
		s.countRefresh(metrics.OutcomeRejected)
		return nil, common.ErrInvalidCredentials

	default:
		s.log.Error(ctx, "refresh token rotate failed", "user_id", claims.Subject, "token_id", claims.TokenID, "error", err)
		s.countRefresh(metrics.OutcomeError)
		return nil, common.ErrorInternal
	}
}

// Logout revokes the presented refresh token if it is valid and always
// returns a cookie that clears it on the client.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) RefreshCookie {
	if refreshToken != "" {
		if claims, err := s.signer.ValidateType(refreshToken, auth.TokenRefresh); err == nil {
			if err := s.registry.Revoke(ctx, claims.TokenID); err != nil {
				s.log.Error(ctx, "logout revoke failed", "user_id", claims.Subject, "token_id", claims.TokenID, "error", err)
			} else {
				s.log.Info(ctx, "logged out", "user_id", claims.Subject, "token_id", claims.TokenID)
			}
		}
	}

	return RefreshCookie{
		Name:     s.cookie.name,
		Path:     s.cookie.path,
		Domain:   s.cookie.domain,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0).UTC(),
		HttpOnly: true,
		Secure:   s.cookie.secure,
		SameSite: s.cookie.sameSite,
	}
}

// LogoutAll revokes every refresh token of subjectID.
func (s *AuthService) LogoutAll(ctx context.Context, subjectID string) error {
	if err := s.registry.RevokeAllForSubject(ctx, subjectID); err != nil {
		s.log.Error(ctx, "revoke all failed", "user_id", subjectID, "error", err)
		return common.ErrorInternal
	}
	s.log.Info(ctx, "logged out everywhere", "user_id", subjectID)
	return nil
}

// Register stores a new credential record.
func (s *AuthService) Register(ctx context.Context, email, pw string) (*models.User, error) {
	email = models.NormalizeEmail(email)
	if err := validateCredentials(email, pw); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(pw)
	if err != nil {
		s.log.Error(ctx, "password hash failed", "error", err)
		return nil, common.ErrorInternal
	}

	u, err := s.users.Create(ctx, &models.User{Email: email, PasswordHash: hash})
	if err != nil {
		if errors.Is(err, common.ErrEmailTaken) {
			return nil, err
		}
		s.log.Error(ctx, "user create failed", "error", err)
		return nil, common.ErrorInternal
	}

	s.log.Info(ctx, "user registered", "user_id", u.ID)
	return u, nil
}

// Authenticate validates an access token. It never touches the registry.
func (s *AuthService) Authenticate(_ context.Context, accessToken string) (*auth.Claims, error) {
	return s.signer.ValidateType(accessToken, auth.TokenAccess)
}

// rehashIfStale rewrites a hash made with another algorithm or cost, so every
// stored hash costs the same to verify as the dummy hash. Failures only log.
func (s *AuthService) rehashIfStale(ctx context.Context, user *models.User, pw string) {
	if !s.hasher.NeedsRehash(user.PasswordHash) {
		return
	}

	hash, err := s.hasher.Hash(pw)
	if err == nil {
		err = s.users.UpdatePasswordHash(ctx, user.ID, hash)
	}
	if err != nil {
		s.log.Warn(ctx, "password rehash failed", "user_id", user.ID, "error", err)
		return
	}
	s.log.Info(ctx, "password rehashed", "user_id", user.ID)
}

func validateCredentials(email, pw string) error {
	at := strings.LastIndexByte(email, '@')
	if at <= 0 || at == len(email)-1 || len(email) > maxEmailLen {
		return fmt.Errorf("%w: invalid email", common.ErrorValidation)
	}
	if len(pw) < minPasswordLen {
		return fmt.Errorf("%w: password must be at least %d characters", common.ErrorValidation, minPasswordLen)
	}
	if len(pw) > maxPasswordLen {
		return fmt.Errorf("%w: password must be at most %d bytes", common.ErrorValidation, maxPasswordLen)
	}
	return nil
}

type tokenPair struct {
	access        string
	refresh       string
	refreshClaims auth.Claims
}

func (s *AuthService) issuePair(subject string) (*tokenPair, error) {
	now := s.signer.Now().Truncate(time.Second)

	access, err := s.signer.Issue(auth.Claims{
		Subject:   subject,
		TokenID:   s.newID(),
		Type:      auth.TokenAccess,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.accessTTL),
	})
	if err != nil {
		return nil, err
	}

	rc := auth.Claims{
		Subject:   subject,
		TokenID:   s.newID(),
		Type:      auth.TokenRefresh,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.refreshTTL),
	}
	refresh, err := s.signer.Issue(rc)
	if err != nil {
		return nil, err
	}

	return &tokenPair{access: access, refresh: refresh, refreshClaims: rc}, nil
}

func (s *AuthService) result(p *tokenPair) *LoginResult {
	return &LoginResult{
		Body: AccessTokenBody{AccessToken: p.access},
		Cookie: RefreshCookie{
			Name:     s.cookie.name,
			Value:    p.refresh,
			Path:     s.cookie.path,
			Domain:   s.cookie.domain,
			MaxAge:   int(p.refreshClaims.ExpiresAt.Sub(p.refreshClaims.IssuedAt).Seconds()),
			Expires:  p.refreshClaims.ExpiresAt,
			HttpOnly: true,
			Secure:   s.cookie.secure,
			SameSite: s.cookie.sameSite,
		},
	}
}

func (s *AuthService) countLogin(outcome string) {
	if s.metrics != nil {
		s.metrics.LoginAttempts.WithLabelValues(outcome).Inc()
	}
}

func (s *AuthService) countRefresh(outcome string) {
	if s.metrics != nil {
		s.metrics.RefreshAttempts.WithLabelValues(outcome).Inc()
	}
}
