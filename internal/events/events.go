package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"users-api/internal/domain"
)

type Type string

const (
	UserCreated  Type = "user.created"
	UserUpdated  Type = "user.updated"
	UserDeleted  Type = "user.deleted"
	UsersCleared Type = "users.cleared"
)

var (
	// ErrPublisherClosed is returned when publishing on a closed publisher.
	ErrPublisherClosed = errors.New("publisher is closed")
	// ErrNoBrokers is returned when the kafka publisher has no brokers configured.
	ErrNoBrokers = errors.New("no kafka brokers configured")
)

// Event describes a change to the users collection.
type Event struct {
	ID       string       `json:"id"`
	Type     Type         `json:"type"`
	UserID   int64        `json:"userId,omitempty"`
	Occurred time.Time    `json:"occurred"`
	User     *domain.User `json:"user,omitempty"`
}

// New builds an event with a fresh id. user may be nil.
func New(typ Type, userID int64, user *domain.User) Event {
	return Event{
		ID:       uuid.NewString(),
		Type:     typ,
		UserID:   userID,
		Occurred: time.Now().UTC(),
		User:     user,
	}
}

// Publisher delivers user lifecycle events to an external sink.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// Noop discards every event.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
func (Noop) Close() error                         { return nil }

// LogPublisher writes events to a logrus logger.
type LogPublisher struct {
	logger logrus.FieldLogger
}

func NewLogPublisher(logger logrus.FieldLogger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, event Event) error {
	p.logger.WithFields(logrus.Fields{
		"event_id": event.ID,
		"event":    event.Type,
		"user_id":  event.UserID,
	}).Info("user event")
	return nil
}

func (p *LogPublisher) Close() error { return nil }
