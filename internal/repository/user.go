package repository

import (
	"context"
	"time"

	"users-api/internal/domain"
)

// UserRepository defines the operations of a users collection. Implementations
// own their records: every returned User is a copy.
//
// FindOne, Update and Remove return an error matching domain.ErrUserNotFound
// when the id does not exist.
type UserRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, attrs domain.Attributes) (domain.User, error)
	FindAll(ctx context.Context) ([]domain.User, error)
	FindOne(ctx context.Context, id int64) (domain.User, error)
	Update(ctx context.Context, id int64, patch domain.Attributes) (domain.User, error)
	Remove(ctx context.Context, id int64) error
	FindByEmail(ctx context.Context, email string) (domain.User, bool, error)
	Count(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
}

// NextUpdatedAt returns the updatedAt for a record last touched at prev. It is
// strictly after prev even when the clock has not advanced.
func NextUpdatedAt(now, prev time.Time) time.Time {
	if !now.After(prev) {
		return prev.Add(time.Nanosecond)
	}
	return now
}
