package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrUnexpectedDatabase = errors.New("unexpected database error")

type Store interface {
	CreateTeacher(ctx context.Context, t Teacher) (Teacher, error)
	TeacherByEmail(ctx context.Context, email string) (Teacher, error)
	TeacherByID(ctx context.Context, id string) (Teacher, error)
	UpdateName(ctx context.Context, id, firstName, lastName string) (Teacher, error)
	SetRole(ctx context.Context, email string, role Role) (Teacher, error)
	ListTeachers(ctx context.Context, role Role) ([]Teacher, error)
}

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const teacherColumns = `id, email, password_hash, first_name, last_name, role, created_at, updated_at`

func scanTeacher(row pgx.Row) (Teacher, error) {
	var t Teacher
	var id uuid.UUID
	err := row.Scan(&id, &t.Email, &t.PasswordHash, &t.FirstName, &t.LastName, &t.Role, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return Teacher{}, err
	}
	t.ID = id.String()
	return t, nil
}

func mapError(err error) error {
	var pgErr *pgconn.PgError
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return ErrAccountNotFound
	case errors.As(err, &pgErr) && pgErr.Code == "23505":
		// unique_violation
		return ErrDuplicateEmail
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrUnexpectedDatabase, err)
	}
}

func (s *PostgresStore) CreateTeacher(ctx context.Context, t Teacher) (Teacher, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	row := s.pool.QueryRow(ctx,
		`INSERT INTO teachers (id, email, password_hash, first_name, last_name, role)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+teacherColumns,
		t.ID, strings.ToLower(t.Email), t.PasswordHash, t.FirstName, t.LastName, t.Role)

	created, err := scanTeacher(row)
	if err != nil {
		return Teacher{}, mapError(err)
	}
	return created, nil
}

func (s *PostgresStore) TeacherByEmail(ctx context.Context, email string) (Teacher, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+teacherColumns+` FROM teachers WHERE email = $1`, strings.ToLower(email))
	t, err := scanTeacher(row)
	if err != nil {
		return Teacher{}, mapError(err)
	}
	return t, nil
}

func (s *PostgresStore) TeacherByID(ctx context.Context, id string) (Teacher, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return Teacher{}, ErrAccountNotFound
	}
	row := s.pool.QueryRow(ctx, `SELECT `+teacherColumns+` FROM teachers WHERE id = $1`, uid)
	t, err := scanTeacher(row)
	if err != nil {
		return Teacher{}, mapError(err)
	}
	return t, nil
}

func (s *PostgresStore) UpdateName(ctx context.Context, id, firstName, lastName string) (Teacher, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return Teacher{}, ErrAccountNotFound
	}
	row := s.pool.QueryRow(ctx,
		`UPDATE teachers SET first_name = $2, last_name = $3, updated_at = now()
		 WHERE id = $1
		 RETURNING `+teacherColumns,
		uid, firstName, lastName)
	t, err := scanTeacher(row)
	if err != nil {
		return Teacher{}, mapError(err)
	}
	return t, nil
}

func (s *PostgresStore) SetRole(ctx context.Context, email string, role Role) (Teacher, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE teachers SET role = $2, updated_at = now()
		 WHERE email = $1
		 RETURNING `+teacherColumns,
		strings.ToLower(email), role)
	t, err := scanTeacher(row)
	if err != nil {
		return Teacher{}, mapError(err)
	}
	return t, nil
}

// ListTeachers returns every account, or only those with role when it is non-empty.
func (s *PostgresStore) ListTeachers(ctx context.Context, role Role) ([]Teacher, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+teacherColumns+` FROM teachers
		 WHERE $1 = '' OR role = $1
		 ORDER BY created_at, email`, string(role))
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var teachers []Teacher
	for rows.Next() {
		t, err := scanTeacher(rows)
		if err != nil {
			return nil, mapError(err)
		}
		teachers = append(teachers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return teachers, nil
}
