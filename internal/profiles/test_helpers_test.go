package profiles

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/peerfolio/backend/internal/notifications"
	"github.com/peerfolio/backend/internal/storage"
)

type sequentialIDs struct {
	next int
}

func (s *sequentialIDs) NewID() (string, error) {
	s.next++
	return fmt.Sprintf("p-%d", s.next), nil
}

type recordingNotifier struct {
	added []notifications.AddInput
	fail  error
}

func (r *recordingNotifier) Add(_ context.Context, input notifications.AddInput) (notifications.Notification, error) {
	if r.fail != nil {
		return notifications.Notification{}, r.fail
	}
	r.added = append(r.added, input)
	return notifications.Notification{
		ID:      fmt.Sprintf("note-%d", len(r.added)),
		UserID:  input.UserID,
		Message: input.Message,
		Type:    input.Type,
		Read:    input.Read,
	}, nil
}

type testFixture struct {
	service  *Service
	notifier *recordingNotifier
	store    *storage.MemoryKV
	now      *time.Time
}

func newTestFixture(t *testing.T) *testFixture {
	t.Helper()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	notifier := &recordingNotifier{}
	store := storage.NewMemoryKV()
	service, err := NewService(ServiceConfig{
		Store:      store,
		Clock:      func() time.Time { return now },
		IDProvider: &sequentialIDs{},
		Notifier:   notifier,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return &testFixture{service: service, notifier: notifier, store: store, now: &now}
}

func (f *testFixture) advance(d time.Duration) {
	*f.now = f.now.Add(d)
}

func (f *testFixture) mustCreate(t *testing.T, name, email string) UserProfile {
	t.Helper()
	profile, err := f.service.Create(context.Background(), CreateInput{
		Name:   name,
		Email:  email,
		Skills: []string{},
	})
	if err != nil {
		t.Fatalf("create %s: %v", email, err)
	}
	return profile
}
