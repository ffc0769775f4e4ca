package memory

import (
	"context"
	"sync"
	"time"

	"users-api/internal/domain"
	"users-api/internal/repository"
)

const firstID int64 = 1

// UserRepository keeps users in process memory. Records are indexed by id and
// a separate slice keeps insertion order for FindAll.
type UserRepository struct {
	mu     sync.RWMutex
	now    func() time.Time
	nextID int64
	users  map[int64]*domain.User
	order  []int64
}

// Option configures a UserRepository.
type Option func(*UserRepository)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *UserRepository) {
		r.now = now
	}
}

func NewUserRepository(opts ...Option) *UserRepository {
	r := &UserRepository{
		now: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	r.reset()
	return r
}

var _ repository.UserRepository = (*UserRepository)(nil)

func (r *UserRepository) reset() {
	r.nextID = firstID
	r.users = make(map[int64]*domain.User)
	r.order = make([]int64, 0)
}

func (r *UserRepository) Init(ctx context.Context) error {
	return nil
}

func (r *UserRepository) Create(ctx context.Context, attrs domain.Attributes) (domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	user := domain.User{
		ID:         r.nextID,
		Attributes: attrs.Sanitize(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	r.nextID++

	stored := user.Clone()
	r.users[user.ID] = &stored
	r.order = append(r.order, user.ID)
	return user, nil
}

func (r *UserRepository) FindAll(ctx context.Context) ([]domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.User, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.users[id].Clone())
	}
	return out, nil
}

func (r *UserRepository) FindOne(ctx context.Context, id int64) (domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return domain.User{}, domain.NewNotFoundError(id)
	}
	return user.Clone(), nil
}

func (r *UserRepository) Update(ctx context.Context, id int64, patch domain.Attributes) (domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, ok := r.users[id]
	if !ok {
		return domain.User{}, domain.NewNotFoundError(id)
	}

	updated := domain.User{
		ID:         prev.ID,
		Attributes: prev.Attributes.Merge(patch),
		CreatedAt:  prev.CreatedAt,
		UpdatedAt:  repository.NextUpdatedAt(r.now(), prev.UpdatedAt),
	}
	stored := updated.Clone()
	r.users[id] = &stored
	return updated, nil
}

func (r *UserRepository) Remove(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[id]; !ok {
		return domain.NewNotFoundError(id)
	}
	delete(r.users, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (domain.User, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range r.order {
		user := r.users[id]
		if v, ok := user.Attributes.String(domain.FieldEmail); ok && v == email {
			return user.Clone(), true, nil
		}
	}
	return domain.User{}, false, nil
}

func (r *UserRepository) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order), nil
}

func (r *UserRepository) Clear(ctx context.Context) error {
	r.mu.Lock()
	r.reset()
	r.mu.Unlock()
	return nil
}
