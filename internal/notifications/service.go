package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/peerfolio/backend/internal/storage"
	"go.uber.org/zap"
)

var (
	errMissingStore      = errors.New("notifications: blob store required")
	errMissingIDProvider = errors.New("notifications: id provider required")
)

// IDProvider issues opaque unique identifiers for new records.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig describes the dependencies of the notification store.
type ServiceConfig struct {
	Store      storage.KV
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service manages the persisted notification collection. Every operation is
// a full read-modify-write cycle over the notifications blob, serialized by
// an internal mutex.
type Service struct {
	mu         sync.Mutex
	store      storage.KV
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

// NewService constructs the notification store.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	if cfg.IDProvider == nil {
		return nil, errMissingIDProvider
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:      cfg.Store,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// ForUser returns the user's notifications ordered most recent first. Ties
// on creation time keep their insertion order.
func (s *Service) ForUser(ctx context.Context, userID string) ([]Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	matched := make([]Notification, 0)
	for _, notification := range all {
		if notification.UserID == userID {
			matched = append(matched, notification)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	return matched, nil
}

// Add assigns a fresh id and creation time, appends the notification and
// persists the collection.
func (s *Service) Add(ctx context.Context, input AddInput) (Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load(ctx)
	if err != nil {
		return Notification{}, err
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		return Notification{}, fmt.Errorf("notifications: id generation failed: %w", err)
	}

	notification := Notification{
		ID:        id,
		UserID:    input.UserID,
		Message:   input.Message,
		Type:      input.Type,
		Read:      input.Read,
		CreatedAt: s.clock().UTC(),
	}

	all = append(all, notification)
	if err := s.save(ctx, all); err != nil {
		return Notification{}, err
	}

	s.logger.Debug("notification added",
		zap.String("user_id", notification.UserID),
		zap.String("type", string(notification.Type)))
	return notification, nil
}

// MarkRead sets read=true on the matching notification. A missing id is a
// silent no-op.
func (s *Service) MarkRead(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load(ctx)
	if err != nil {
		return err
	}

	for i := range all {
		if all[i].ID == id {
			all[i].Read = true
			return s.save(ctx, all)
		}
	}
	return nil
}

// MarkAllRead sets read=true on every notification belonging to userID.
func (s *Service) MarkAllRead(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load(ctx)
	if err != nil {
		return err
	}

	for i := range all {
		if all[i].UserID == userID {
			all[i].Read = true
		}
	}
	return s.save(ctx, all)
}

// UnreadCount returns how many of the user's notifications are unread.
func (s *Service) UnreadCount(ctx context.Context, userID string) (int, error) {
	notificationsForUser, err := s.ForUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, notification := range notificationsForUser {
		if !notification.Read {
			count++
		}
	}
	return count, nil
}

func (s *Service) load(ctx context.Context) ([]Notification, error) {
	raw, found, err := s.store.Get(ctx, storage.KeyNotifications)
	if err != nil {
		return nil, fmt.Errorf("notifications: read failed: %w", err)
	}
	if !found {
		return nil, nil
	}
	var all []Notification
	if err := json.Unmarshal(raw, &all); err != nil {
		return nil, fmt.Errorf("notifications: corrupt blob: %w", err)
	}
	return all, nil
}

func (s *Service) save(ctx context.Context, all []Notification) error {
	raw, err := json.Marshal(all)
	if err != nil {
		return fmt.Errorf("notifications: encode failed: %w", err)
	}
	if err := s.store.Put(ctx, storage.KeyNotifications, raw); err != nil {
		return fmt.Errorf("notifications: write failed: %w", err)
	}
	return nil
}
