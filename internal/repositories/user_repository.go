package repositories

import (
	"context"
	"fmt"
	"strings"
	"time"

	"chatlink-service/internal/docstore"
	"chatlink-service/internal/errs"
	"chatlink-service/internal/logger"
	"chatlink-service/internal/models"
)

var (
	ErrUserNotFound        = fmt.Errorf("user %w", errs.ErrNotFound)
	ErrCredentialsNotFound = fmt.Errorf("credentials %w", errs.ErrNotFound)
)

// UserRepository abstracts the user directory.
type UserRepository interface {
	Create(ctx context.Context, user models.UserProfile) error
	Get(ctx context.Context, userID string) (models.UserProfile, error)
	FindByEmail(ctx context.Context, email string) (models.UserProfile, error)
	SearchByEmailPrefix(ctx context.Context, prefix string, limit int) ([]models.UserProfile, error)
	Update(ctx context.Context, userID string, fields map[string]any) error
	SetPresence(ctx context.Context, userID string, online bool, at time.Time) error
	Watch(ctx context.Context, userID string) (*docstore.Subscription, error)
}

// UserRepo stores profiles in the users collection.
type UserRepo struct {
	store docstore.Store
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(store docstore.Store) *UserRepo {
	return &UserRepo{store: store}
}

func (r *UserRepo) Create(ctx context.Context, user models.UserProfile) error {
	user.EmailLower = strings.ToLower(user.Email)
	return translate("create user", r.store.Create(ctx, UsersCollection, user.ID, user), ErrUserNotFound)
}

func (r *UserRepo) Get(ctx context.Context, userID string) (models.UserProfile, error) {
	rec, err := r.store.Get(ctx, UsersCollection, userID)
	if err != nil {
		return models.UserProfile{}, translate("get user", err, ErrUserNotFound)
	}
	return decodeOne[models.UserProfile](rec)
}

// FindByEmail matches the email case-insensitively.
func (r *UserRepo) FindByEmail(ctx context.Context, email string) (models.UserProfile, error) {
	recs, err := r.store.Query(ctx, docstore.Query{
		Collection: UsersCollection,
		Filters:    []docstore.Filter{docstore.Where("emailLower", docstore.OpEq, strings.ToLower(email))},
		Limit:      1,
	})
	if err != nil {
		return models.UserProfile{}, translate("find user by email", err, ErrUserNotFound)
	}
	if len(recs) == 0 {
		return models.UserProfile{}, ErrUserNotFound
	}
	return decodeOne[models.UserProfile](recs[0])
}

func (r *UserRepo) SearchByEmailPrefix(ctx context.Context, prefix string, limit int) ([]models.UserProfile, error) {
	defer logger.DeferLogDuration("users.SearchByEmailPrefix", time.Now())()

	recs, err := r.store.Query(ctx, docstore.Query{
		Collection: UsersCollection,
		Filters:    []docstore.Filter{docstore.Where("emailLower", docstore.OpPrefix, strings.ToLower(prefix))},
		OrderBy:    "emailLower",
		Limit:      limit,
	})
	if err != nil {
		return nil, translate("search users", err, ErrUserNotFound)
	}
	return DecodeAll[models.UserProfile](recs)
}

func (r *UserRepo) Update(ctx context.Context, userID string, fields map[string]any) error {
	if email, ok := fields["email"].(string); ok {
		fields["emailLower"] = strings.ToLower(email)
	}
	return translate("update user", r.store.Update(ctx, UsersCollection, userID, fields), ErrUserNotFound)
}

func (r *UserRepo) SetPresence(ctx context.Context, userID string, online bool, at time.Time) error {
	return translate("set presence", r.store.Update(ctx, UsersCollection, userID, map[string]any{
		"isOnline":   online,
		"lastSeenAt": at,
	}), ErrUserNotFound)
}

// Watch follows a single user document.
func (r *UserRepo) Watch(ctx context.Context, userID string) (*docstore.Subscription, error) {
	sub, err := r.store.Watch(ctx, docstore.Query{
		Collection: UsersCollection,
		Filters:    []docstore.Filter{docstore.Where(docstore.IDField, docstore.OpEq, userID)},
	})
	return sub, translate("watch user", err, ErrUserNotFound)
}

// CredentialRepository stores password hashes by lower-cased email.
type CredentialRepository interface {
	Create(ctx context.Context, creds models.Credentials) error
	Get(ctx context.Context, email string) (models.Credentials, error)
	// UpdatePasswordHash swaps the hash only while it still equals oldHash.
	UpdatePasswordHash(ctx context.Context, email, oldHash, newHash string) error
	Delete(ctx context.Context, email string) error
}

type CredentialRepo struct {
	store docstore.Store
}

func NewCredentialRepo(store docstore.Store) *CredentialRepo {
	return &CredentialRepo{store: store}
}

// Create fails with an ErrInvalidState conflict when the email is taken.
func (r *CredentialRepo) Create(ctx context.Context, creds models.Credentials) error {
	id := strings.ToLower(creds.Email)
	return translate("create credentials", r.store.Create(ctx, CredentialsCollection, id, creds), ErrCredentialsNotFound)
}

func (r *CredentialRepo) Get(ctx context.Context, email string) (models.Credentials, error) {
	rec, err := r.store.Get(ctx, CredentialsCollection, strings.ToLower(email))
	if err != nil {
		return models.Credentials{}, translate("get credentials", err, ErrCredentialsNotFound)
	}
	return decodeOne[models.Credentials](rec)
}

func (r *CredentialRepo) UpdatePasswordHash(ctx context.Context, email, oldHash, newHash string) error {
	err := r.store.Update(ctx, CredentialsCollection, strings.ToLower(email),
		map[string]any{"passwordHash": newHash},
		docstore.Where("passwordHash", docstore.OpEq, oldHash))
	return translate("update password", err, ErrCredentialsNotFound)
}

func (r *CredentialRepo) Delete(ctx context.Context, email string) error {
	return translate("delete credentials", r.store.Delete(ctx, CredentialsCollection, strings.ToLower(email)), ErrCredentialsNotFound)
}
