package profiles

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/peerfolio/backend/internal/notifications"
	"github.com/peerfolio/backend/internal/storage"
	"go.uber.org/zap"
)

var (
	errMissingStore      = errors.New("blob store is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

// ServiceError carries a dotted operation code alongside the underlying cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew   = "profiles.service.new"
	opList         = "profiles.list"
	opCurrentUser  = "profiles.current_user"
	opSetCurrent   = "profiles.set_current_user"
	opClearCurrent = "profiles.clear_current_user"
	opCreate       = "profiles.create"
	opUpdate       = "profiles.update"
	opDelete       = "profiles.delete"
	opByID         = "profiles.by_id"
	opView         = "profiles.view"
	opToggleFollow = "profiles.toggle_follow"
	opIsFollowing  = "profiles.is_following"
	opSearch       = "profiles.search"
	opAnalytics    = "profiles.analytics"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// Notifier records a notification for a profile. Implemented by the
// notifications service.
type Notifier interface {
	Add(ctx context.Context, input notifications.AddInput) (notifications.Notification, error)
}

// ServiceConfig describes the dependencies of the profile store.
type ServiceConfig struct {
	Store      storage.KV
	Clock      func() time.Time
	IDProvider IDProvider
	Notifier   Notifier
	Logger     *zap.Logger
}

// Service manages the persisted profile collection and the current-user
// pointer. Every operation is a full read-modify-write cycle over the
// profiles blob, serialized by an internal mutex.
type Service struct {
	mu         sync.Mutex
	store      storage.KV
	clock      func() time.Time
	idProvider IDProvider
	notifier   Notifier
	logger     *zap.Logger
}

// NewService constructs the profile store.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, newServiceError(opServiceNew, "missing_store", errMissingStore)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		store:      cfg.Store,
		clock:      clock,
		idProvider: cfg.IDProvider,
		notifier:   cfg.Notifier,
		logger:     logger,
	}, nil
}

// List returns all persisted profiles in insertion order.
func (s *Service) List(ctx context.Context) ([]UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load(ctx, opList)
	if err != nil {
		return nil, err
	}
	return all, nil
}

// CurrentUser returns the profile referenced by the current-user pointer, or
// nil when the pointer is unset or dangling.
func (s *Service) CurrentUser(ctx context.Context) (*UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentUserLocked(ctx, opCurrentUser)
}

// SetCurrentUser persists id as the current-user pointer. The id is not
// checked for existence.
func (s *Service) SetCurrentUser(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setCurrentUserLocked(ctx, opSetCurrent, id)
}

// ClearCurrentUser removes the current-user pointer.
func (s *Service) ClearCurrentUser(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Delete(ctx, storage.KeyCurrentUser); err != nil {
		s.logError(opClearCurrent, "pointer_delete_failed", err)
		return newServiceError(opClearCurrent, "pointer_delete_failed", err)
	}
	return nil
}

// Create appends a new profile, persists the collection and makes the new
// profile the current user. Fails with ErrDuplicateEmail when the email is
// already taken.
func (s *Service) Create(ctx context.Context, input CreateInput) (UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load(ctx, opCreate)
	if err != nil {
		return UserProfile{}, err
	}

	for _, existing := range all {
		if existing.Email == input.Email {
			return UserProfile{}, newServiceError(opCreate, "duplicate_email", ErrDuplicateEmail)
		}
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreate, "id_generation_failed", err)
		return UserProfile{}, newServiceError(opCreate, "id_generation_failed", err)
	}

	now := s.clock().UTC()
	profile := UserProfile{
		ID:        id,
		Name:      input.Name,
		Email:     input.Email,
		Bio:       input.Bio,
		ImageURL:  input.ImageURL,
		Skills:    emptyIfNil(input.Skills),
		IsPrivate: input.IsPrivate,
		Following: emptyIfNil(input.Following),
		Followers: []string{},
		CreatedAt: now,
		UpdatedAt: now,
		ViewCount: 0,
	}

	all = append(all, profile)
	if err := s.save(ctx, opCreate, all); err != nil {
		return UserProfile{}, err
	}
	if err := s.setCurrentUserLocked(ctx, opCreate, profile.ID); err != nil {
		return UserProfile{}, err
	}

	s.logger.Info("profile created", zap.String("profile_id", profile.ID))
	return profile, nil
}

// Update merges the patch over the stored record and refreshes updatedAt.
// Fails with ErrNotFound when the id is unknown and with ErrDuplicateEmail
// when the patch changes the email to one held by another profile.
func (s *Service) Update(ctx context.Context, patch Patch) (UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load(ctx, opUpdate)
	if err != nil {
		return UserProfile{}, err
	}

	index := indexByID(all, patch.ID)
	if index < 0 {
		return UserProfile{}, newServiceError(opUpdate, "not_found", ErrNotFound)
	}

	if patch.Email != nil && *patch.Email != all[index].Email {
		for _, other := range all {
			if other.Email == *patch.Email && other.ID != patch.ID {
				return UserProfile{}, newServiceError(opUpdate, "duplicate_email", ErrDuplicateEmail)
			}
		}
	}

	patch.applyTo(&all[index])
	all[index].UpdatedAt = s.clock().UTC()

	if err := s.save(ctx, opUpdate, all); err != nil {
		return UserProfile{}, err
	}
	return all[index], nil
}

// Delete removes the profile with the given id. Deleting an absent id is a
// no-op. The current-user pointer is cleared when it referenced the deleted
// profile.
func (s *Service) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load(ctx, opDelete)
	if err != nil {
		return err
	}

	remaining := make([]UserProfile, 0, len(all))
	for _, profile := range all {
		if profile.ID != id {
			remaining = append(remaining, profile)
		}
	}
	if err := s.save(ctx, opDelete, remaining); err != nil {
		return err
	}

	pointer, found, err := s.currentUserIDLocked(ctx, opDelete)
	if err != nil {
		return err
	}
	if found && pointer == id {
		if err := s.store.Delete(ctx, storage.KeyCurrentUser); err != nil {
			s.logError(opDelete, "pointer_delete_failed", err)
			return newServiceError(opDelete, "pointer_delete_failed", err)
		}
	}
	return nil
}

// ByID returns the matching profile, or nil when absent.
func (s *Service) ByID(ctx context.Context, id string) (*UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load(ctx, opByID)
	if err != nil {
		return nil, err
	}
	if index := indexByID(all, id); index >= 0 {
		profile := all[index]
		return &profile, nil
	}
	return nil, nil
}

// View increments the profile's view count. A missing id is a silent no-op.
// When a current user other than the owner is set, a view notification is
// recorded for the owner.
func (s *Service) View(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load(ctx, opView)
	if err != nil {
		return err
	}

	index := indexByID(all, id)
	if index < 0 {
		return nil
	}

	all[index].ViewCount++
	if err := s.save(ctx, opView, all); err != nil {
		return err
	}

	viewer, err := s.currentUserLocked(ctx, opView)
	if err != nil {
		return err
	}
	if viewer != nil && viewer.ID != id && s.notifier != nil {
		_, err := s.notifier.Add(ctx, notifications.AddInput{
			UserID:  id,
			Message: fmt.Sprintf("%s viewed your profile", viewer.Name),
			Type:    notifications.TypeView,
		})
		if err != nil {
			s.logError(opView, "notify_failed", err, zap.String("profile_id", id))
			return newServiceError(opView, "notify_failed", err)
		}
	}
	return nil
}

// ToggleFollow flips the follow relationship between the current user and
// the target. It returns the new state: true when the current user now
// follows the target. Both sides of the relationship are persisted in one
// collection write, and a follow notification is recorded on follow.
func (s *Service) ToggleFollow(ctx context.Context, targetID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	viewer, err := s.currentUserLocked(ctx, opToggleFollow)
	if err != nil {
		return false, err
	}
	if viewer == nil {
		return false, newServiceError(opToggleFollow, "not_logged_in", ErrNotLoggedIn)
	}

	all, err := s.load(ctx, opToggleFollow)
	if err != nil {
		return false, err
	}

	viewerIndex := indexByID(all, viewer.ID)
	targetIndex := indexByID(all, targetID)
	if viewerIndex < 0 || targetIndex < 0 {
		return false, newServiceError(opToggleFollow, "not_found", ErrNotFound)
	}

	following := contains(all[viewerIndex].Following, targetID)
	if following {
		all[viewerIndex].Following = remove(all[viewerIndex].Following, targetID)
		all[targetIndex].Followers = remove(all[targetIndex].Followers, viewer.ID)
	} else {
		all[viewerIndex].Following = append(all[viewerIndex].Following, targetID)
		all[targetIndex].Followers = append(all[targetIndex].Followers, viewer.ID)
	}

	if err := s.save(ctx, opToggleFollow, all); err != nil {
		return false, err
	}

	if !following && s.notifier != nil {
		_, err := s.notifier.Add(ctx, notifications.AddInput{
			UserID:  targetID,
			Message: fmt.Sprintf("%s started following you", viewer.Name),
			Type:    notifications.TypeFollow,
		})
		if err != nil {
			s.logError(opToggleFollow, "notify_failed", err, zap.String("target_id", targetID))
			return false, newServiceError(opToggleFollow, "notify_failed", err)
		}
	}
	return !following, nil
}

// IsFollowing reports whether the current user follows the target. With no
// current user set it reports false.
func (s *Service) IsFollowing(ctx context.Context, targetID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	viewer, err := s.currentUserLocked(ctx, opIsFollowing)
	if err != nil {
		return false, err
	}
	if viewer == nil {
		return false, nil
	}
	return contains(viewer.Following, targetID), nil
}

// Search returns profiles whose name, email or any skill contains the term,
// case-insensitively. A blank term matches nothing.
func (s *Service) Search(ctx context.Context, term string) ([]UserProfile, error) {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return []UserProfile{}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load(ctx, opSearch)
	if err != nil {
		return nil, err
	}

	matched := make([]UserProfile, 0)
	for _, profile := range all {
		if profileMatches(profile, term) {
			matched = append(matched, profile)
		}
	}
	return matched, nil
}

// Analytics returns the profile's view, follower and following counts.
// Fails with ErrNotFound when the id is unknown.
func (s *Service) Analytics(ctx context.Context, id string) (Analytics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load(ctx, opAnalytics)
	if err != nil {
		return Analytics{}, err
	}

	index := indexByID(all, id)
	if index < 0 {
		return Analytics{}, newServiceError(opAnalytics, "not_found", ErrNotFound)
	}
	return Analytics{
		ViewCount:      all[index].ViewCount,
		FollowerCount:  len(all[index].Followers),
		FollowingCount: len(all[index].Following),
	}, nil
}

func (s *Service) currentUserLocked(ctx context.Context, operation string) (*UserProfile, error) {
	pointer, found, err := s.currentUserIDLocked(ctx, operation)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	all, err := s.load(ctx, operation)
	if err != nil {
		return nil, err
	}
	if index := indexByID(all, pointer); index >= 0 {
		profile := all[index]
		return &profile, nil
	}
	return nil, nil
}

func (s *Service) currentUserIDLocked(ctx context.Context, operation string) (string, bool, error) {
	raw, found, err := s.store.Get(ctx, storage.KeyCurrentUser)
	if err != nil {
		s.logError(operation, "pointer_read_failed", err)
		return "", false, newServiceError(operation, "pointer_read_failed", err)
	}
	if !found {
		return "", false, nil
	}
	var pointer string
	if err := json.Unmarshal(raw, &pointer); err != nil {
		s.logError(operation, "pointer_decode_failed", err)
		return "", false, newServiceError(operation, "pointer_decode_failed", err)
	}
	return pointer, true, nil
}

func (s *Service) setCurrentUserLocked(ctx context.Context, operation, id string) error {
	raw, err := json.Marshal(id)
	if err != nil {
		return newServiceError(operation, "pointer_encode_failed", err)
	}
	if err := s.store.Put(ctx, storage.KeyCurrentUser, raw); err != nil {
		s.logError(operation, "pointer_write_failed", err)
		return newServiceError(operation, "pointer_write_failed", err)
	}
	return nil
}

func (s *Service) load(ctx context.Context, operation string) ([]UserProfile, error) {
	raw, found, err := s.store.Get(ctx, storage.KeyProfiles)
	if err != nil {
		s.logError(operation, "read_failed", err)
		return nil, newServiceError(operation, "read_failed", err)
	}
	if !found {
		return []UserProfile{}, nil
	}
	var all []UserProfile
	if err := json.Unmarshal(raw, &all); err != nil {
		s.logError(operation, "corrupt_blob", err)
		return nil, newServiceError(operation, "corrupt_blob", err)
	}
	return all, nil
}

func (s *Service) save(ctx context.Context, operation string, all []UserProfile) error {
	raw, err := json.Marshal(all)
	if err != nil {
		s.logError(operation, "encode_failed", err)
		return newServiceError(operation, "encode_failed", err)
	}
	if err := s.store.Put(ctx, storage.KeyProfiles, raw); err != nil {
		s.logError(operation, "write_failed", err)
		return newServiceError(operation, "write_failed", err)
	}
	return nil
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("profile store error", attrs...)
}

func profileMatches(profile UserProfile, term string) bool {
	if strings.Contains(strings.ToLower(profile.Name), term) {
		return true
	}
	if strings.Contains(strings.ToLower(profile.Email), term) {
		return true
	}
	for _, skill := range profile.Skills {
		if strings.Contains(strings.ToLower(skill), term) {
			return true
		}
	}
	return false
}

func indexByID(all []UserProfile, id string) int {
	for i := range all {
		if all[i].ID == id {
			return i
		}
	}
	return -1
}

func contains(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

func remove(ids []string, id string) []string {
	filtered := make([]string, 0, len(ids))
	for _, candidate := range ids {
		if candidate != id {
			filtered = append(filtered, candidate)
		}
	}
	return filtered
}

func emptyIfNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
