package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/smallbiznis/lms/internal/auth/domain"
	"github.com/smallbiznis/lms/internal/clock"
	"github.com/smallbiznis/lms/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Cfg   config.Config
	Repo  domain.Repository
	Clock clock.Clock
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	repo   domain.Repository
	clock  clock.Clock
	secret []byte
	issuer string
	ttl    time.Duration
}

func New(p Params) (domain.Service, error) {
	secret := strings.TrimSpace(p.Cfg.Auth.JWTSecret)
	if secret == "" {
		return nil, domain.ErrMissingKey
	}
	ttl := p.Cfg.Auth.TokenTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("auth.service"),
		repo:   p.Repo,
		clock:  p.Clock,
		secret: []byte(secret),
		issuer: strings.TrimSpace(p.Cfg.Auth.Issuer),
		ttl:    ttl,
	}, nil
}

func (s *Service) Authenticate(ctx context.Context, rawToken string) (domain.Caller, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return domain.Caller{}, domain.ErrMissingToken
	}

	revoked, err := s.repo.IsRevoked(ctx, s.db, hashToken(rawToken))
	if err != nil {
		return domain.Caller{}, err
	}
	if revoked {
		return domain.Caller{}, domain.ErrTokenRevoked
	}

	claims, err := s.parse(rawToken)
	if err != nil {
		return domain.Caller{}, err
	}
	return callerFromClaims(claims)
}

func (s *Service) Issue(ctx context.Context, userID snowflake.ID, role string) (string, time.Time, error) {
	if userID <= 0 || !domain.ValidRole(role) {
		return "", time.Time{}, domain.ErrInvalidToken
	}

	now := s.clock.Now()
	expiresAt := now.Add(s.ttl)
	claims := domain.Claims{
		ID:   userID.String(),
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.issuer,
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func (s *Service) Revoke(ctx context.Context, rawToken string) error {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return domain.ErrMissingToken
	}

	claims, err := s.parse(rawToken)
	if err != nil {
		return err
	}
	caller, err := callerFromClaims(claims)
	if err != nil {
		return err
	}

	expiresAt := s.clock.Now().Add(s.ttl)
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time.UTC()
	}

	if err := s.repo.Revoke(ctx, s.db, &domain.RevokedToken{
		TokenHash: hashToken(rawToken),
		UserID:    caller.ID,
		ExpiresAt: expiresAt,
		RevokedAt: s.clock.Now(),
	}); err != nil {
		return err
	}
	s.log.Info("token revoked", zap.String("user_id", caller.ID.String()))
	return nil
}

// PurgeRevoked drops blacklist rows whose tokens have expired anyway.
func (s *Service) PurgeRevoked(ctx context.Context) (int64, error) {
	return s.repo.PurgeExpired(ctx, s.db, s.clock.Now())
}

func (s *Service) parse(rawToken string) (*domain.Claims, error) {
	claims := &domain.Claims{}
	token, err := jwt.ParseWithClaims(rawToken, claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, domain.ErrInvalidToken
	}
	return claims, nil
}

func callerFromClaims(claims *domain.Claims) (domain.Caller, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(claims.ID))
	if err != nil || id <= 0 {
		return domain.Caller{}, domain.ErrInvalidToken
	}
	role := strings.ToLower(strings.TrimSpace(claims.Role))
	if !domain.ValidRole(role) {
		return domain.Caller{}, domain.ErrInvalidToken
	}
	return domain.Caller{ID: id, Role: role}, nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
