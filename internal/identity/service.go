package identity

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"crewgate.org/internal/ids"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
)

// Service authenticates credentials and issues signed access tokens plus
// opaque, rotated refresh tokens.
type Service struct {
	store    Store
	resolver *Resolver
	signer   *TokenSigner
	now      func() time.Time

	accessTTL  time.Duration
	refreshTTL time.Duration
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.accessTTL = ttl
		}
		return nil
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
		return nil
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
			s.signer.now = fn
			s.resolver.now = fn
		}
		return nil
	}
}

// NewService constructs the token issuer.
func NewService(store Store, secret, issuer string, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("identity store is required")
	}
	signer, err := NewTokenSigner(secret, issuer)
	if err != nil {
		return nil, err
	}
	resolver, err := NewResolver(store)
	if err != nil {
		return nil, err
	}
	svc := &Service{
		store:      store,
		resolver:   resolver,
		signer:     signer,
		now:        time.Now,
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// Resolver exposes the tenant-scoped access resolver.
func (s *Service) Resolver() *Resolver { return s.resolver }

// EnsureBuiltins ensures the predefined permission catalog exists.
func (s *Service) EnsureBuiltins(ctx context.Context) error {
	return s.store.EnsurePermissions(ctx, BuiltinPermissions)
}

// Login verifies credentials and mints a token pair. A wrong password and an
// inactive (or unknown) account are indistinguishable to the caller: both
// return ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password, tenantDomain string) (TokenPair, Principal, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return TokenPair{}, Principal{}, ErrInvalidCredentials
	}
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, Principal{}, ErrInvalidCredentials
		}
		return TokenPair{}, Principal{}, err
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return TokenPair{}, Principal{}, ErrInvalidCredentials
	}
	if !user.IsActive {
		return TokenPair{}, Principal{}, ErrInvalidCredentials
	}

	principal, err := s.principalFor(ctx, user, tenantDomain)
	if err != nil {
		return TokenPair{}, Principal{}, err
	}
	pair, err := s.mintTokens(ctx, principal)
	if err != nil {
		return TokenPair{}, Principal{}, err
	}
	return pair, principal, nil
}

// Refresh rotates the presented refresh token and issues new credentials.
// The current role/permission state is re-resolved so permission changes take
// effect without re-login.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, Principal, error) {
	tokenID, secret, err := splitRefreshToken(refreshToken)
	if err != nil {
		return TokenPair{}, Principal{}, ErrInvalidToken
	}

	record, err := s.store.GetRefreshToken(ctx, tokenID)
	if err != nil {
		return TokenPair{}, Principal{}, ErrInvalidToken
	}
	if record.Revoked || s.now().After(record.ExpiresAt) {
		return TokenPair{}, Principal{}, ErrInvalidToken
	}
	if !secureCompareHash(record.TokenHash, secret) {
		// A well-formed id with a wrong secret smells like token theft;
		// burn the record.
		_ = s.store.RevokeRefreshToken(ctx, record.ID)
		return TokenPair{}, Principal{}, ErrInvalidToken
	}

	user, err := s.store.GetUser(ctx, record.UserID)
	if err != nil {
		return TokenPair{}, Principal{}, ErrInvalidToken
	}
	if !user.IsActive {
		return TokenPair{}, Principal{}, ErrInvalidToken
	}

	principal, err := s.principalFor(ctx, user, "")
	if err != nil {
		return TokenPair{}, Principal{}, err
	}

	// Rotation: revoke the old token, issue a fresh pair.
	if err := s.store.RevokeRefreshToken(ctx, record.ID); err != nil {
		return TokenPair{}, Principal{}, err
	}
	pair, err := s.mintTokens(ctx, principal)
	if err != nil {
		return TokenPair{}, Principal{}, err
	}
	return pair, principal, nil
}

// Logout revokes the refresh token. Revoking an already-revoked or unknown
// token is a no-op, not an error. Access tokens are not invalidated; they
// expire on their own TTL.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	tokenID, _, err := splitRefreshToken(refreshToken)
	if err != nil {
		return nil
	}
	if err := s.store.RevokeRefreshToken(ctx, tokenID); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

// Authenticate verifies an access token and returns the principal it carries.
// No database round trip: the claim set embedded at issuance is the contract.
func (s *Service) Authenticate(_ context.Context, token string) (Principal, error) {
	claims, err := s.signer.Parse(token)
	if err != nil {
		return Principal{}, ErrInvalidToken
	}
	return Principal{
		UserID:   claims.Subject,
		Username: claims.Username,
		Email:    claims.Email,
		Access:   claims.Access,
	}, nil
}

func (s *Service) principalFor(ctx context.Context, user User, tenantDomain string) (Principal, error) {
	access, err := s.resolver.ResolveAccess(ctx, user.ID, tenantDomain)
	if err != nil {
		return Principal{}, err
	}
	return Principal{
		UserID:   user.ID,
		Username: user.Username,
		Email:    user.Email,
		Access:   access,
	}, nil
}

func (s *Service) mintTokens(ctx context.Context, principal Principal) (TokenPair, error) {
	now := s.now()
	accessToken, accessExp, err := s.signer.Mint(principal, s.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refreshString, record, err := s.generateRefreshToken(principal.UserID, now)
	if err != nil {
		return TokenPair{}, err
	}
	if err := s.store.CreateRefreshToken(ctx, record); err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshString,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: record.ExpiresAt,
	}, nil
}

func (s *Service) generateRefreshToken(userID string, now time.Time) (string, *RefreshToken, error) {
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", nil, err
	}
	secret := base64.RawURLEncoding.EncodeToString(secretBytes)
	tokenID := ids.New()
	sum := sha256.Sum256([]byte(secret))
	record := &RefreshToken{
		ID:        tokenID,
		UserID:    userID,
		TokenHash: hex.EncodeToString(sum[:]),
		ExpiresAt: now.Add(s.refreshTTL),
	}
	return tokenID + "." + secret, record, nil
}

func splitRefreshToken(raw string) (id, secret string, err error) {
	parts := strings.Split(strings.TrimSpace(raw), ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", errors.New("invalid refresh token format")
	}
	return parts[0], parts[1], nil
}

func secureCompareHash(expectedHash, secret string) bool {
	sum := sha256.Sum256([]byte(secret))
	actual := hex.EncodeToString(sum[:])
	if len(expectedHash) != len(actual) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expectedHash), []byte(actual)) == 1
}
