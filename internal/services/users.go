package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"chatlink-service/internal/errs"
	"chatlink-service/internal/models"
	"chatlink-service/internal/repositories"
)

const (
	minSearchLen = 2
	searchLimit  = 5
)

// UserService is the user directory.
type UserService struct {
	users repositories.UserRepository
	creds repositories.CredentialRepository
}

func NewUserService(users repositories.UserRepository, creds repositories.CredentialRepository) *UserService {
	return &UserService{users: users, creds: creds}
}

func (s *UserService) Get(ctx context.Context, userID string) (models.UserProfile, error) {
	if strings.TrimSpace(userID) == "" {
		return models.UserProfile{}, errs.Validation("user id is required")
	}
	return s.users.Get(ctx, userID)
}

func (s *UserService) FindByEmail(ctx context.Context, email string) (models.UserProfile, error) {
	return s.users.FindByEmail(ctx, strings.TrimSpace(email))
}

// Search matches users by email prefix. Short queries return nothing and the
// caller is never part of the result.
func (s *UserService) Search(ctx context.Context, callerID, query string) ([]models.UserProfile, error) {
	if err := requireCaller(callerID); err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if len([]rune(query)) < minSearchLen {
		return []models.UserProfile{}, nil
	}
	found, err := s.users.SearchByEmailPrefix(ctx, query, searchLimit+1)
	if err != nil {
		return nil, err
	}
	out := make([]models.UserProfile, 0, searchLimit)
	for _, u := range found {
		if u.ID == callerID {
			continue
		}
		out = append(out, u)
		if len(out) == searchLimit {
			break
		}
	}
	return out, nil
}

// UpdateProfile changes the caller's own profile. A new email must not belong
// to another user; the check is best-effort, the credentials key is the
// authority.
func (s *UserService) UpdateProfile(ctx context.Context, callerID string, update models.ProfileUpdate) (models.UserProfile, error) {
	if err := requireCaller(callerID); err != nil {
		return models.UserProfile{}, err
	}
	current, err := s.users.Get(ctx, callerID)
	if err != nil {
		return models.UserProfile{}, err
	}

	fields := map[string]any{}
	if update.DisplayName != nil {
		name := strings.TrimSpace(*update.DisplayName)
		if name == "" {
			return models.UserProfile{}, errs.Validation("display name is empty")
		}
		fields["displayName"] = name
	}
	if update.PhotoURL != nil {
		fields["photoURL"] = strings.TrimSpace(*update.PhotoURL)
	}
	if update.Email != nil {
		addr, err := mail.ParseAddress(strings.TrimSpace(*update.Email))
		if err != nil {
			return models.UserProfile{}, errs.Validation("invalid email")
		}
		email := addr.Address
		if !strings.EqualFold(email, current.Email) {
			if err := s.moveEmail(ctx, current, email); err != nil {
				return models.UserProfile{}, err
			}
			fields["email"] = email
		}
	}
	if len(fields) == 0 {
		return current, nil
	}

	if err := s.users.Update(ctx, callerID, fields); err != nil {
		return models.UserProfile{}, err
	}
	return s.users.Get(ctx, callerID)
}

// moveEmail expects email already normalized to a bare address.
func (s *UserService) moveEmail(ctx context.Context, current models.UserProfile, email string) error {
	other, err := s.users.FindByEmail(ctx, email)
	switch {
	case err == nil && other.ID != current.ID:
		return errs.InvalidState("email already in use")
	case err != nil && !errors.Is(err, errs.ErrNotFound):
		return err
	}
	if s.creds == nil {
		return nil
	}

	creds, err := s.creds.Get(ctx, current.Email)
	if errors.Is(err, errs.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	moved := creds
	moved.Email = email
	if err := s.creds.Create(ctx, moved); err != nil {
		return fmt.Errorf("email already in use: %w", err)
	}
	return s.creds.Delete(ctx, current.Email)
}
