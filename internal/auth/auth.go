// Package auth signs users up, checks passwords and issues the bearer tokens
// the HTTP and WebSocket layers verify.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"chatlink-service/internal/errs"
	"chatlink-service/internal/logger"
	"chatlink-service/internal/models"
	"chatlink-service/internal/repositories"
)

const minPasswordLength = 6

// ErrInvalidCredentials hides whether the email or the password was wrong.
var ErrInvalidCredentials = fmt.Errorf("invalid email or password: %w", errs.ErrUnauthenticated)

// Session is what signup and login hand back to the client.
type Session struct {
	Token     string             `json:"token"`
	ExpiresAt time.Time          `json:"expiresAt"`
	User      models.UserProfile `json:"user"`
}

type Service struct {
	users  repositories.UserRepository
	creds  repositories.CredentialRepository
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	cost   int
}

func NewService(users repositories.UserRepository, creds repositories.CredentialRepository, secret string, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{
		users:  users,
		creds:  creds,
		secret: []byte(secret),
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
		cost:   bcrypt.DefaultCost,
	}
}

// SetClock replaces the time source.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// SetHashCost lowers the bcrypt cost, used by tests.
func (s *Service) SetHashCost(cost int) {
	s.cost = cost
}

// SignUp claims the email through the credentials record first, so two
// concurrent signups cannot both create a profile for it.
func (s *Service) SignUp(ctx context.Context, email, password, displayName string) (Session, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil {
		return Session{}, errs.Validation("invalid email")
	}
	email = addr.Address
	if len(password) < minPasswordLength {
		return Session{}, errs.Validation("password must be at least %d characters", minPasswordLength)
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName = strings.SplitN(email, "@", 2)[0]
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return Session{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	userID := uuid.NewString()
	err = s.creds.Create(ctx, models.Credentials{
		UserID:       userID,
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    now,
	})
	if errors.Is(err, errs.ErrInvalidState) {
		return Session{}, errs.InvalidState("email already registered")
	}
	if err != nil {
		return Session{}, err
	}

	user := models.UserProfile{
		ID:          userID,
		Email:       email,
		EmailLower:  strings.ToLower(email),
		DisplayName: displayName,
		CreatedAt:   now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if rbErr := s.creds.Delete(ctx, email); rbErr != nil {
			logger.Errorf("signup rollback for %s: %v", email, rbErr)
		}
		return Session{}, err
	}
	logger.Infof("user signed up id=%s", userID)
	return s.issue(user)
}

func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	creds, err := s.creds.Get(ctx, strings.TrimSpace(email))
	if errors.Is(err, errs.ErrNotFound) {
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(creds.PasswordHash), []byte(password)); err != nil {
		return Session{}, ErrInvalidCredentials
	}
	user, err := s.users.Get(ctx, creds.UserID)
	if err != nil {
		return Session{}, err
	}
	return s.issue(user)
}

// ChangePassword replaces the caller's password after checking the current
// one. Issued tokens stay valid.
func (s *Service) ChangePassword(ctx context.Context, userID, current, next string) error {
	if len(next) < minPasswordLength {
		return errs.Validation("password must be at least %d characters", minPasswordLength)
	}
	user, err := s.users.Get(ctx, userID)
	if err != nil {
		return err
	}
	creds, err := s.creds.Get(ctx, user.Email)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(creds.PasswordHash), []byte(current)); err != nil {
		return fmt.Errorf("current password is incorrect: %w", errs.ErrPermission)
	}
	if current == next {
		return errs.Validation("new password must differ from the current one")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(next), s.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.creds.UpdatePasswordHash(ctx, user.Email, creds.PasswordHash, string(hash)); err != nil {
		return err
	}
	logger.Infof("password changed id=%s", userID)
	return nil
}

// Verify checks an HS256 token and returns its subject.
func (s *Service) Verify(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return "", fmt.Errorf("invalid token: %w", errs.ErrUnauthenticated)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("token has no subject: %w", errs.ErrUnauthenticated)
	}
	return claims.Subject, nil
}

func (s *Service) issue(user models.UserProfile) (Session, error) {
	now := s.now()
	expires := now.Add(s.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   user.ID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return Session{}, fmt.Errorf("sign token: %w", err)
	}
	return Session{Token: signed, ExpiresAt: expires, User: user}, nil
}
