package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"users-api/internal/domain"
	"users-api/internal/repository"
)

// The table is recreated on Init: the users collection never outlives the process.
const recreateUsersTable = `
DROP TABLE IF EXISTS users;
CREATE TABLE users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	attributes TEXT NOT NULL,
	email TEXT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);
`

type UserRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

var _ repository.UserRepository = (*UserRepository)(nil)

func (r *UserRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, recreateUsersTable); err != nil {
		return fmt.Errorf("create users table: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sqlite_sequence WHERE name = 'users'`); err != nil {
		return fmt.Errorf("reset users sequence: %w", err)
	}
	return nil
}

func (r *UserRepository) Create(ctx context.Context, attrs domain.Attributes) (domain.User, error) {
	payload, stored, err := encodeAttributes(attrs.Sanitize())
	if err != nil {
		return domain.User{}, err
	}

	now := r.now()
	user := domain.User{
		Attributes: stored,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	res, err := r.db.ExecContext(ctx, `
INSERT INTO users (attributes, email, created_at, updated_at)
VALUES (?, ?, ?, ?)`,
		payload,
		emailColumn(user.Attributes),
		user.CreatedAt.UnixNano(),
		user.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return domain.User{}, fmt.Errorf("insert user: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return domain.User{}, fmt.Errorf("user last insert id: %w", err)
	}
	user.ID = id
	return user, nil
}

func (r *UserRepository) FindAll(ctx context.Context) ([]domain.User, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, attributes, created_at, updated_at
FROM users
ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	users := make([]domain.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

func (r *UserRepository) FindOne(ctx context.Context, id int64) (domain.User, error) {
	user, err := r.getByID(ctx, r.db, id)
	if err != nil {
		return domain.User{}, err
	}
	return *user, nil
}

func (r *UserRepository) Update(ctx context.Context, id int64, patch domain.Attributes) (domain.User, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() // safe no-op on commit

	prev, err := r.getByID(ctx, tx, id)
	if err != nil {
		return domain.User{}, err
	}

	payload, stored, err := encodeAttributes(prev.Attributes.Merge(patch))
	if err != nil {
		return domain.User{}, err
	}
	updated := domain.User{
		ID:         prev.ID,
		Attributes: stored,
		CreatedAt:  prev.CreatedAt,
		UpdatedAt:  repository.NextUpdatedAt(r.now(), prev.UpdatedAt),
	}

	if _, err := tx.ExecContext(ctx, `
UPDATE users
SET attributes=?, email=?, updated_at=?
WHERE id=?`,
		payload,
		emailColumn(updated.Attributes),
		updated.UpdatedAt.UnixNano(),
		id,
	); err != nil {
		return domain.User{}, fmt.Errorf("update user: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return domain.User{}, fmt.Errorf("commit tx: %w", err)
	}
	return updated, nil
}

func (r *UserRepository) Remove(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete user rows affected: %w", err)
	}
	if affected == 0 {
		return domain.NewNotFoundError(id)
	}
	return nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (domain.User, bool, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, attributes, created_at, updated_at
FROM users
WHERE email = ?
ORDER BY id ASC
LIMIT 1`,
		email,
	)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, false, nil
	}
	if err != nil {
		return domain.User{}, false, err
	}
	return *user, true, nil
}

func (r *UserRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return count, nil
}

func (r *UserRepository) Clear(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() // safe no-op on commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM users`); err != nil {
		return fmt.Errorf("delete users: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sqlite_sequence WHERE name = 'users'`); err != nil {
		return fmt.Errorf("reset users sequence: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// encodeAttributes returns the column payload and the attributes as they will
// read back from it, so writes return the same values FindOne does.
func encodeAttributes(attrs domain.Attributes) (string, domain.Attributes, error) {
	payload, err := json.Marshal(attrs)
	if err != nil {
		return "", nil, fmt.Errorf("encode user attributes: %w", err)
	}
	stored := domain.Attributes{}
	if err := json.Unmarshal(payload, &stored); err != nil {
		return "", nil, fmt.Errorf("decode user attributes: %w", err)
	}
	return string(payload), stored, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *UserRepository) getByID(ctx context.Context, q queryRower, id int64) (*domain.User, error) {
	row := q.QueryRowContext(ctx, `
SELECT id, attributes, created_at, updated_at
FROM users
WHERE id = ?`,
		id,
	)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError(id)
	}
	return user, err
}

func scanUser(row interface {
	Scan(dest ...any) error
}) (*domain.User, error) {
	var (
		user      domain.User
		payload   string
		createdAt int64
		updatedAt int64
	)
	if err := row.Scan(&user.ID, &payload, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	if err := json.Unmarshal([]byte(payload), &user.Attributes); err != nil {
		return nil, fmt.Errorf("decode user %d attributes: %w", user.ID, err)
	}
	if user.Attributes == nil {
		user.Attributes = domain.Attributes{}
	}
	user.CreatedAt = time.Unix(0, createdAt).UTC()
	user.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return &user, nil
}

func emailColumn(attrs domain.Attributes) any {
	if email, ok := attrs.String(domain.FieldEmail); ok {
		return email
	}
	return nil
}
