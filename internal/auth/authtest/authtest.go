// Package authtest provides in-memory account fixtures for tests.
package authtest

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/smarter-english/elt-trading-game/internal/auth"
)

// MemoryStore is an auth.Store kept in a map.
type MemoryStore struct {
	mu       sync.Mutex
	teachers map[string]auth.Teacher
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{teachers: make(map[string]auth.Teacher)}
}

func (m *MemoryStore) CreateTeacher(_ context.Context, t auth.Teacher) (auth.Teacher, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t.Email = strings.ToLower(t.Email)
	for _, existing := range m.teachers {
		if existing.Email == t.Email {
			return auth.Teacher{}, auth.ErrDuplicateEmail
		}
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now()
	t.CreatedAt, t.UpdatedAt = now, now
	m.teachers[t.ID] = t
	return t, nil
}

func (m *MemoryStore) TeacherByEmail(_ context.Context, email string) (auth.Teacher, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	email = strings.ToLower(email)
	for _, t := range m.teachers {
		if t.Email == email {
			return t, nil
		}
	}
	return auth.Teacher{}, auth.ErrAccountNotFound
}

func (m *MemoryStore) TeacherByID(_ context.Context, id string) (auth.Teacher, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.teachers[id]
	if !ok {
		return auth.Teacher{}, auth.ErrAccountNotFound
	}
	return t, nil
}

func (m *MemoryStore) UpdateName(_ context.Context, id, firstName, lastName string) (auth.Teacher, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.teachers[id]
	if !ok {
		return auth.Teacher{}, auth.ErrAccountNotFound
	}
	t.FirstName, t.LastName = firstName, lastName
	t.UpdatedAt = time.Now()
	m.teachers[id] = t
	return t, nil
}

func (m *MemoryStore) SetRole(_ context.Context, email string, role auth.Role) (auth.Teacher, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	email = strings.ToLower(email)
	for id, t := range m.teachers {
		if t.Email == email {
			t.Role = role
			t.UpdatedAt = time.Now()
			m.teachers[id] = t
			return t, nil
		}
	}
	return auth.Teacher{}, auth.ErrAccountNotFound
}

func (m *MemoryStore) ListTeachers(_ context.Context, role auth.Role) ([]auth.Teacher, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []auth.Teacher
	for _, t := range m.teachers {
		if role == "" || t.Role == role {
			out = append(out, t)
		}
	}
	slices.SortFunc(out, func(a, b auth.Teacher) int { return strings.Compare(a.Email, b.Email) })
	return out, nil
}

// FastHasher returns an argon2id hasher with parameters cheap enough for tests.
func FastHasher() *auth.Argon2idHasher {
	return auth.NewArgon2idHasher(1, 8*1024, 16, 8, 1)
}

const TestSecret = "test-secret-test-secret-test-secret!"

// NewService wires an account service over a fresh MemoryStore.
func NewService() (*auth.Service, *MemoryStore) {
	store := NewMemoryStore()
	return auth.NewService(store, FastHasher(), auth.NewJWTManager(TestSecret, time.Hour)), store
}

// Teacher registers an approved teacher and returns it with a valid token.
func Teacher(ctx context.Context, svc *auth.Service, email string, role auth.Role) (auth.Teacher, string, error) {
	const password = "correct horse battery"
	if _, err := svc.Apply(ctx, auth.Application{FirstName: "Test", LastName: "Teacher", Email: email, Password: password}); err != nil {
		return auth.Teacher{}, "", err
	}
	if _, err := svc.SetRole(ctx, email, role); err != nil {
		return auth.Teacher{}, "", err
	}
	token, t, err := svc.Login(ctx, email, password)
	return t, token, err
}
