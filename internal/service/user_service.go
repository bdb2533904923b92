package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"phreakmail-web/internal/domain"
	"phreakmail-web/internal/repository"
)

var (
	// ErrInvalidCredentials indicates that provided login credentials are incorrect.
	// It is returned for unknown users and wrong passwords alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserAlreadyExists is returned when attempting to create an existing username.
	ErrUserAlreadyExists = errors.New("user already exists")
)

const (
	minPasswordLength = 8
	// bcrypt rejects longer input
	maxPasswordLength = 72
)

// UserService describes user lifecycle operations.
type UserService interface {
	Authenticate(ctx context.Context, username, password string) (*domain.User, error)
	CreateUser(ctx context.Context, username, password string, role domain.Role) (*domain.User, error)
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	List(ctx context.Context) ([]domain.User, error)
	SetRole(ctx context.Context, id int64, role domain.Role) (*domain.User, error)
	// EnsureAdmin creates the bootstrap administrator unless the username exists.
	EnsureAdmin(ctx context.Context, username, password string) (created bool, err error)
}

type userService struct {
	users     repository.UserRepository
	admins    repository.DomainAdminRepository
	cost      int
	dummyHash []byte
}

// NewUserService builds a UserService hashing with the given bcrypt cost.
// A non-positive cost selects bcrypt.DefaultCost.
func NewUserService(users repository.UserRepository, admins repository.DomainAdminRepository, cost int) (UserService, error) {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	// compared against on unknown usernames so both failure paths cost a hash
	dummy, err := bcrypt.GenerateFromPassword([]byte("phreakmail-timing-guard"), cost)
	if err != nil {
		return nil, fmt.Errorf("prepare password hasher: %w", err)
	}
	return &userService{
		users:     users,
		admins:    admins,
		cost:      cost,
		dummyHash: dummy,
	}, nil
}

func (s *userService) Authenticate(ctx context.Context, username, password string) (*domain.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return sanitizeUser(user), nil
}

func (s *userService) CreateUser(ctx context.Context, username, password string, role domain.Role) (*domain.User, error) {
	username = strings.TrimSpace(username)

	if username == "" {
		return nil, invalidf("username is required")
	}
	if len(username) > 150 {
		return nil, invalidf("username must be at most 150 characters")
	}
	if len(password) < minPasswordLength {
		return nil, invalidf("password must be at least %d characters", minPasswordLength)
	}
	if len(password) > maxPasswordLength {
		return nil, invalidf("password must be at most %d bytes", maxPasswordLength)
	}
	if role == "" {
		role = domain.RoleUser
	}
	if !role.Valid() {
		return nil, invalidf("unknown role %q", role)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		Username:     username,
		PasswordHash: string(hash),
		Role:         role,
	}

	if _, err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrUserAlreadyExists
		}
		return nil, err
	}

	return sanitizeUser(user), nil
}

func (s *userService) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	return sanitizeUser(user), nil
}

func (s *userService) List(ctx context.Context) ([]domain.User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range users {
		users[i].PasswordHash = ""
	}
	return users, nil
}

func (s *userService) SetRole(ctx context.Context, id int64, role domain.Role) (*domain.User, error) {
	if !role.Valid() {
		return nil, invalidf("unknown role %q", role)
	}
	current, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	// scope must not survive a demotion and come back with a later promotion
	if current.IsDomainAdmin() && role != domain.RoleDomainAdmin {
		if err := s.admins.RevokeAll(ctx, id); err != nil {
			return nil, err
		}
	}
	if err := s.users.UpdateRole(ctx, id, role); err != nil {
		return nil, translate(err)
	}
	return s.GetByID(ctx, id)
}

func (s *userService) EnsureAdmin(ctx context.Context, username, password string) (bool, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return false, nil
	}
	if _, err := s.users.GetByUsername(ctx, username); err == nil {
		return false, nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return false, err
	}

	if _, err := s.CreateUser(ctx, username, password, domain.RoleAdmin); err != nil {
		if errors.Is(err, ErrUserAlreadyExists) {
			return false, nil
		}
		return false, fmt.Errorf("create bootstrap admin: %w", err)
	}
	return true, nil
}

func sanitizeUser(user *domain.User) *domain.User {
	if user == nil {
		return nil
	}
	return &domain.User{
		ID:        user.ID,
		Username:  user.Username,
		Role:      user.Role,
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	}
}
