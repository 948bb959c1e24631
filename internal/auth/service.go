// AngelaMos | 2026
// service.go

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/whisperme/whisper-api/internal/core"
	"github.com/whisperme/whisper-api/internal/middleware"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenReuse         = errors.New("token reuse detected")
	ErrEmailExists        = errors.New("email already exists")
)

type AccountInfo struct {
	ID           string
	Email        string
	DisplayName  string
	PasswordHash string
	Role         string
	TokenVersion int
	Coins        int64
	Available    bool
}

// Client identifies the device a refresh token is issued to.
type Client struct {
	UserAgent string
	IPAddress string
}

// AccountProvider is implemented by the account service. Create must also
// provision the account's public profile.
type AccountProvider interface {
	GetByEmail(ctx context.Context, email string) (*AccountInfo, error)
	GetByID(ctx context.Context, id string) (*AccountInfo, error)
	Create(
		ctx context.Context,
		email, passwordHash, displayName string,
	) (*AccountInfo, error)
	IncrementTokenVersion(ctx context.Context, accountID string) error
}

type Blacklist interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

type redisBlacklist struct {
	client *redis.Client
}

func NewRedisBlacklist(client *redis.Client) Blacklist {
	return &redisBlacklist{client: client}
}

func (b *redisBlacklist) Revoke(
	ctx context.Context,
	jti string,
	ttl time.Duration,
) error {
	if ttl <= 0 {
		return nil
	}
	if err := b.client.Set(ctx, "blacklist:"+jti, "1", ttl).Err(); err != nil {
		return fmt.Errorf("blacklist token: %w", err)
	}
	return nil
}

func (b *redisBlacklist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	exists, err := b.client.Exists(ctx, "blacklist:"+jti).Result()
	if err != nil {
		return false, fmt.Errorf("check blacklist: %w", err)
	}
	return exists > 0, nil
}

type Service struct {
	repo      Repository
	jwt       *JWTManager
	accounts  AccountProvider
	blacklist Blacklist
}

func NewService(
	repo Repository,
	jwt *JWTManager,
	accounts AccountProvider,
	blacklist Blacklist,
) *Service {
	return &Service{
		repo:      repo,
		jwt:       jwt,
		accounts:  accounts,
		blacklist: blacklist,
	}
}

func (s *Service) Login(
	ctx context.Context,
	req LoginRequest,
	client Client,
) (*AuthResponse, error) {
	account, err := s.accounts.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			//nolint:errcheck // keeps the unknown-email path as slow as a real check
			_, _ = core.VerifyPasswordTimingSafe(req.Password, nil)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("get account: %w", err)
	}

	valid, err := core.VerifyPasswordTimingSafe(
		req.Password,
		&account.PasswordHash,
	)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !valid {
		return nil, ErrInvalidCredentials
	}

	return s.issue(ctx, account, client, "", "")
}

func (s *Service) Register(
	ctx context.Context,
	req RegisterRequest,
	client Client,
) (*AuthResponse, error) {
	passwordHash, err := core.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	account, err := s.accounts.Create(
		ctx,
		req.Email,
		passwordHash,
		req.DisplayName,
	)
	if err != nil {
		if errors.Is(err, core.ErrDuplicateKey) {
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("create account: %w", err)
	}

	return s.issue(ctx, account, client, "", "")
}

func (s *Service) Refresh(
	ctx context.Context,
	refreshToken string,
	client Client,
) (*AuthResponse, error) {
	storedToken, err := s.repo.FindByHash(ctx, core.HashToken(refreshToken))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, fmt.Errorf("refresh: %w", core.ErrTokenInvalid)
		}
		return nil, fmt.Errorf("find token: %w", err)
	}

	if storedToken.IsUsed {
		//nolint:errcheck // the reuse is reported even if revocation fails
		_, _ = s.repo.Revoke(ctx, ScopeFamily, storedToken.FamilyID)
		return nil, ErrTokenReuse
	}

	if !storedToken.IsValid(time.Now()) {
		if storedToken.IsRevoked() {
			return nil, fmt.Errorf("refresh: %w", core.ErrTokenRevoked)
		}
		return nil, fmt.Errorf("refresh: %w", core.ErrTokenExpired)
	}

	account, err := s.accounts.GetByID(ctx, storedToken.AccountID)
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}

	return s.issue(ctx, account, client, storedToken.FamilyID, storedToken.ID)
}

// Logout revokes the refresh token and blacklists the access token that
// made the request until it would have expired anyway.
func (s *Service) Logout(
	ctx context.Context,
	refreshToken string,
	claims *middleware.AccessTokenClaims,
) error {
	if claims.TokenID != "" {
		if err := s.blacklist.Revoke(
			ctx,
			claims.TokenID,
			s.jwt.AccessTokenTTL(),
		); err != nil {
			return err
		}
	}

	storedToken, err := s.repo.FindByHash(ctx, core.HashToken(refreshToken))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("find token: %w", err)
	}

	if storedToken.AccountID != claims.UserID {
		return fmt.Errorf("logout: %w", core.ErrForbidden)
	}

	if _, err := s.repo.Revoke(ctx, ScopeToken, storedToken.ID); err != nil &&
		!errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("revoke token: %w", err)
	}

	return nil
}

// LogoutAll signs the account out everywhere: every refresh token is revoked
// and the token version bump invalidates outstanding access tokens. It
// reports how many devices were signed out.
func (s *Service) LogoutAll(ctx context.Context, accountID string) (int64, error) {
	n, err := s.repo.Revoke(ctx, ScopeAccount, accountID)
	if err != nil {
		return 0, fmt.Errorf("revoke all tokens: %w", err)
	}

	if err := s.accounts.IncrementTokenVersion(ctx, accountID); err != nil {
		return 0, fmt.Errorf("increment token version: %w", err)
	}

	return n, nil
}

// VerifyAccessToken satisfies middleware.TokenVerifier: signature and
// claims first, then the logout blacklist.
func (s *Service) VerifyAccessToken(
	ctx context.Context,
	token string,
) (*middleware.AccessTokenClaims, error) {
	claims, err := s.jwt.VerifyAccessToken(ctx, token)
	if err != nil {
		return nil, err
	}

	if claims.TokenID != "" {
		revoked, err := s.blacklist.IsRevoked(ctx, claims.TokenID)
		if err != nil {
			return nil, err
		}
		if revoked {
			return nil, fmt.Errorf("verify token: %w", core.ErrTokenRevoked)
		}
	}

	return claims, nil
}

func (s *Service) GetCurrentAccount(
	ctx context.Context,
	accountID string,
) (*AccountResponse, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	resp := toAccountResponse(account)
	return &resp, nil
}

// issue mints an access and refresh token pair. A non-empty rotatedFrom
// continues an existing family and retires the token it replaces.
func (s *Service) issue(
	ctx context.Context,
	account *AccountInfo,
	client Client,
	familyID, rotatedFrom string,
) (*AuthResponse, error) {
	access, err := s.jwt.CreateAccessToken(middleware.AccessTokenClaims{
		UserID:       account.ID,
		Role:         account.Role,
		TokenVersion: account.TokenVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("create access token: %w", err)
	}

	refreshData, err := s.jwt.CreateRefreshToken(familyID)
	if err != nil {
		return nil, fmt.Errorf("create refresh token: %w", err)
	}

	newTokenID := uuid.New().String()

	if err := s.repo.Create(ctx, &RefreshToken{
		ID:        newTokenID,
		AccountID: account.ID,
		TokenHash: refreshData.Hash,
		FamilyID:  refreshData.FamilyID,
		ExpiresAt: refreshData.ExpiresAt,
		UserAgent: client.UserAgent,
		IPAddress: client.IPAddress,
	}); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	if rotatedFrom != "" {
		if err := s.repo.Rotate(ctx, rotatedFrom, newTokenID); err != nil {
			if errors.Is(err, core.ErrNotFound) {
				return nil, ErrTokenReuse
			}
			return nil, fmt.Errorf("rotate refresh token: %w", err)
		}
	}

	return &AuthResponse{
		Account: toAccountResponse(account),
		Tokens: TokenResponse{
			AccessToken:  access.Token,
			RefreshToken: refreshData.Token,
			TokenType:    "Bearer",
			ExpiresIn:    int(time.Until(access.ExpiresAt) / time.Second),
			ExpiresAt:    access.ExpiresAt,
		},
	}, nil
}

func toAccountResponse(a *AccountInfo) AccountResponse {
	return AccountResponse{
		ID:          a.ID,
		Email:       a.Email,
		DisplayName: a.DisplayName,
		Role:        a.Role,
		Coins:       a.Coins,
		Available:   a.Available,
	}
}
