package service

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"users-api/internal/domain"
	"users-api/internal/events"
	"users-api/internal/repository"
)

// DeleteResult confirms a removal.
type DeleteResult struct {
	ID      int64  `json:"id"`
	Message string `json:"message"`
}

// UserService describes user lifecycle operations.
type UserService interface {
	Create(ctx context.Context, attrs domain.Attributes) (domain.User, error)
	List(ctx context.Context) ([]domain.User, error)
	Get(ctx context.Context, id int64) (domain.User, error)
	Update(ctx context.Context, id int64, patch domain.Attributes) (domain.User, error)
	Delete(ctx context.Context, id int64) (*DeleteResult, error)
	FindByEmail(ctx context.Context, email string) (domain.User, bool, error)
	Count(ctx context.Context) (int, error)
	Clear(ctx context.Context) (string, error)
	Query(ctx context.Context, q Query) (*QueryResult, error)
}

type userService struct {
	users     repository.UserRepository
	publisher events.Publisher
	logger    logrus.FieldLogger
}

func NewUserService(users repository.UserRepository, publisher events.Publisher, logger logrus.FieldLogger) UserService {
	if publisher == nil {
		publisher = events.Noop{}
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &userService{
		users:     users,
		publisher: publisher,
		logger:    logger,
	}
}

func (s *userService) Create(ctx context.Context, attrs domain.Attributes) (domain.User, error) {
	user, err := s.users.Create(ctx, attrs)
	if err != nil {
		return domain.User{}, err
	}
	s.logger.WithField("user_id", user.ID).Info("user created")
	s.publish(ctx, events.UserCreated, user.ID, &user)
	return user, nil
}

func (s *userService) List(ctx context.Context) ([]domain.User, error) {
	return s.users.FindAll(ctx)
}

func (s *userService) Get(ctx context.Context, id int64) (domain.User, error) {
	return s.users.FindOne(ctx, id)
}

func (s *userService) Update(ctx context.Context, id int64, patch domain.Attributes) (domain.User, error) {
	for name := range patch {
		if domain.IsProtectedField(name) {
			s.logger.WithFields(logrus.Fields{"user_id": id, "field": name}).Warn("ignoring protected field in update")
		}
	}

	user, err := s.users.Update(ctx, id, patch)
	if err != nil {
		return domain.User{}, err
	}
	s.logger.WithField("user_id", id).Info("user updated")
	s.publish(ctx, events.UserUpdated, user.ID, &user)
	return user, nil
}

func (s *userService) Delete(ctx context.Context, id int64) (*DeleteResult, error) {
	if err := s.users.Remove(ctx, id); err != nil {
		return nil, err
	}
	s.logger.WithField("user_id", id).Info("user deleted")
	s.publish(ctx, events.UserDeleted, id, nil)
	return &DeleteResult{
		ID:      id,
		Message: fmt.Sprintf("User with ID %d has been deleted", id),
	}, nil
}

func (s *userService) FindByEmail(ctx context.Context, email string) (domain.User, bool, error) {
	return s.users.FindByEmail(ctx, email)
}

func (s *userService) Count(ctx context.Context) (int, error) {
	return s.users.Count(ctx)
}

func (s *userService) Clear(ctx context.Context) (string, error) {
	if err := s.users.Clear(ctx); err != nil {
		return "", err
	}
	s.logger.Warn("users cleared")
	s.publish(ctx, events.UsersCleared, 0, nil)
	return "All users have been cleared", nil
}

func (s *userService) Query(ctx context.Context, q Query) (*QueryResult, error) {
	users, err := s.users.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	return Apply(users, q), nil
}

// publish never fails the caller: the store change has already happened.
func (s *userService) publish(ctx context.Context, typ events.Type, userID int64, user *domain.User) {
	if err := s.publisher.Publish(ctx, events.New(typ, userID, user)); err != nil {
		s.logger.WithFields(logrus.Fields{"event": typ, "user_id": userID}).Warnf("publish event: %v", err)
	}
}
