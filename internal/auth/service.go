package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) (bool, error)
}

type TokenManager interface {
	Generate(c Claims, now time.Time) (string, error)
	Verify(token string) (Claims, error)
}

// Service manages teacher accounts.
type Service struct {
	store  Store
	hasher PasswordHasher
	tokens TokenManager
	now    func() time.Time
}

func NewService(store Store, hasher PasswordHasher, tokens TokenManager) *Service {
	return &Service{store: store, hasher: hasher, tokens: tokens, now: time.Now}
}

type Application struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
}

// Apply registers a new teacher account awaiting admin approval.
func (s *Service) Apply(ctx context.Context, a Application) (Teacher, error) {
	hash, err := s.hasher.Hash(a.Password)
	if err != nil {
		return Teacher{}, err
	}

	t, err := s.store.CreateTeacher(ctx, Teacher{
		Email:        strings.ToLower(strings.TrimSpace(a.Email)),
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(a.FirstName),
		LastName:     strings.TrimSpace(a.LastName),
		Role:         RolePending,
	})
	if err != nil {
		return Teacher{}, err
	}

	log.Info().Str("teacher_id", t.ID).Str("email", t.Email).Msg("Teacher application received")
	return t, nil
}

// Login checks credentials and returns a signed session token.
func (s *Service) Login(ctx context.Context, email, password string) (string, Teacher, error) {
	t, err := s.store.TeacherByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return "", Teacher{}, ErrInvalidCredentials
		}
		return "", Teacher{}, err
	}

	ok, err := s.hasher.Compare(t.PasswordHash, password)
	if err != nil {
		return "", Teacher{}, err
	}
	if !ok {
		return "", Teacher{}, ErrInvalidCredentials
	}

	switch t.Role {
	case RolePending:
		return "", Teacher{}, ErrAccountPending
	case RoleRejected:
		return "", Teacher{}, ErrAccountRejected
	}

	token, err := s.tokens.Generate(Claims{TeacherID: t.ID, Role: t.Role}, s.now())
	if err != nil {
		return "", Teacher{}, err
	}
	return token, t, nil
}

// Authenticate resolves a session token to the current account. The role is
// read from the store so approvals and demotions apply to live tokens.
func (s *Service) Authenticate(ctx context.Context, token string) (Teacher, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return Teacher{}, err
	}

	t, err := s.store.TeacherByID(ctx, claims.TeacherID)
	if err != nil {
		return Teacher{}, err
	}

	switch t.Role {
	case RolePending:
		return Teacher{}, ErrAccountPending
	case RoleRejected:
		return Teacher{}, ErrAccountRejected
	}
	return t, nil
}

func (s *Service) Profile(ctx context.Context, id string) (Teacher, error) {
	return s.store.TeacherByID(ctx, id)
}

func (s *Service) UpdateProfile(ctx context.Context, id, firstName, lastName string) (Teacher, error) {
	return s.store.UpdateName(ctx, id, strings.TrimSpace(firstName), strings.TrimSpace(lastName))
}

func (s *Service) SetRole(ctx context.Context, email string, role Role) (Teacher, error) {
	if !role.Valid() {
		return Teacher{}, ErrInvalidRole
	}
	t, err := s.store.SetRole(ctx, strings.TrimSpace(email), role)
	if err != nil {
		return Teacher{}, err
	}
	log.Info().Str("email", t.Email).Str("role", string(role)).Msg("Teacher role changed")
	return t, nil
}

func (s *Service) Approve(ctx context.Context, email string) (Teacher, error) {
	return s.SetRole(ctx, email, RoleTeacher)
}

func (s *Service) Reject(ctx context.Context, email string) (Teacher, error) {
	return s.SetRole(ctx, email, RoleRejected)
}

func (s *Service) Promote(ctx context.Context, email string) (Teacher, error) {
	return s.SetRole(ctx, email, RoleAdmin)
}

func (s *Service) List(ctx context.Context, role Role) ([]Teacher, error) {
	return s.store.ListTeachers(ctx, role)
}
