// Package lifecycletest provides an in-memory ad store with transaction
// semantics for tests of the lifecycle service and the sweep.
package lifecycletest

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"adlifecycle/internal/lifecycle"
	"adlifecycle/internal/types"
)

// ErrInjected is the default error returned by failure hooks.
var ErrInjected = errors.New("injected failure")

// Store is an in-memory lifecycle.AdStore and lifecycle.StatsStore.
// Writes made inside a transaction become visible only on Commit.
type Store struct {
	mu         sync.Mutex
	ads        map[string]*types.Ad
	dependents map[string]types.CascadeResult

	// Failure hooks. Keys are stages or ad ids.
	FailList   map[lifecycle.Stage]error
	FailLock   map[string]error
	FailSave   map[string]error
	FailPurge  map[string]error
	FailCount  error
	FailBegin  error
	FailCommit map[string]error

	Commits   int
	Rollbacks int
}

// NewStore creates a Store seeded with copies of ads.
func NewStore(ads ...*types.Ad) *Store {
	s := &Store{
		ads:        make(map[string]*types.Ad),
		dependents: make(map[string]types.CascadeResult),
		FailList:   make(map[lifecycle.Stage]error),
		FailLock:   make(map[string]error),
		FailSave:   make(map[string]error),
		FailPurge:  make(map[string]error),
		FailCommit: make(map[string]error),
	}
	for _, ad := range ads {
		s.ads[ad.ID] = ad.Clone()
	}
	return s
}

// Put inserts or replaces an ad.
func (s *Store) Put(ad *types.Ad) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ads[ad.ID] = ad.Clone()
}

// Get returns a copy of the stored ad, or nil.
func (s *Store) Get(id string) *types.Ad {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ads[id].Clone()
}

// All returns copies of every stored ad ordered by id.
func (s *Store) All() []*types.Ad {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*types.Ad, 0, len(s.ads))
	for _, id := range s.sortedIDs() {
		out = append(out, s.ads[id].Clone())
	}
	return out
}

// SetDependents seeds the dependent record counts for an ad.
func (s *Store) SetDependents(adID string, c types.CascadeResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dependents[adID] = c
}

// DependentsOf returns the remaining dependent record counts for an ad.
func (s *Store) DependentsOf(adID string) types.CascadeResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dependents[adID]
}

func (s *Store) sortedIDs() []string {
	ids := make([]string, 0, len(s.ads))
	for id := range s.ads {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ListDue implements lifecycle.AdStore using the stage's own guard.
func (s *Store) ListDue(_ context.Context, stage lifecycle.Stage, now time.Time, afterID string, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.FailList[stage]; err != nil {
		return nil, err
	}
	var out []string
	for _, id := range s.sortedIDs() {
		if id <= afterID {
			continue
		}
		if stage.Due(s.ads[id], now) {
			out = append(out, id)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// BeginTx implements lifecycle.AdStore.
func (s *Store) BeginTx(_ context.Context) (lifecycle.AdTx, error) {
	if s.FailBegin != nil {
		return nil, s.FailBegin
	}
	return &tx{store: s}, nil
}

// CountByStatus implements lifecycle.StatsStore.
func (s *Store) CountByStatus(_ context.Context, status types.AdStatus) (int64, error) {
	return s.count(func(ad *types.Ad) bool { return ad.Status == status })
}

// CountExpiringBetween counts published ads with from < expires_at <= to.
func (s *Store) CountExpiringBetween(_ context.Context, from, to time.Time) (int64, error) {
	return s.count(func(ad *types.Ad) bool {
		return ad.Status == types.StatusPublished && ad.ExpiresAt != nil &&
			ad.ExpiresAt.After(from) && !ad.ExpiresAt.After(to)
	})
}

// CountAutoRenewPublished implements lifecycle.StatsStore.
func (s *Store) CountAutoRenewPublished(_ context.Context) (int64, error) {
	return s.count(func(ad *types.Ad) bool { return ad.Status == types.StatusPublished && ad.AutoRenew })
}

func (s *Store) count(match func(*types.Ad) bool) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailCount != nil {
		return 0, s.FailCount
	}
	var n int64
	for _, ad := range s.ads {
		if ad.DeletedAt == nil && match(ad) {
			n++
		}
	}
	return n, nil
}

type tx struct {
	store   *Store
	adID    string
	pending *types.Ad
	purged  bool
	done    bool
}

func (t *tx) LockAd(_ context.Context, adID string) (*types.Ad, error) {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.FailLock[adID]; err != nil {
		return nil, err
	}
	ad, ok := s.ads[adID]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundAd, "ad not found", nil)
	}
	t.adID = adID
	return ad.Clone(), nil
}

func (t *tx) SaveLifecycle(_ context.Context, ad *types.Ad) error {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.FailSave[ad.ID]; err != nil {
		return err
	}
	t.pending = ad.Clone()
	return nil
}

func (t *tx) PurgeDependents(_ context.Context, adID string) (types.CascadeResult, error) {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.FailPurge[adID]; err != nil {
		return types.CascadeResult{}, err
	}
	t.purged = true
	return s.dependents[adID], nil
}

func (t *tx) Commit(_ context.Context) error {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.done {
		return nil
	}
	if err := s.FailCommit[t.adID]; err != nil {
		return err
	}
	t.done = true
	if t.pending != nil {
		s.ads[t.pending.ID] = t.pending
	}
	if t.purged {
		delete(s.dependents, t.adID)
	}
	s.Commits++
	return nil
}

func (t *tx) Rollback(_ context.Context) error {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.done {
		return nil
	}
	t.done = true
	s.Rollbacks++
	return nil
}

// Recorder is a lifecycle.Notifier that keeps every emitted notification.
type Recorder struct {
	mu   sync.Mutex
	sent []types.OwnerNotification

	// Fail, when set, is returned for every Emit after recording nothing.
	Fail error
}

// Emit implements lifecycle.Notifier.
func (r *Recorder) Emit(_ context.Context, n types.OwnerNotification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Fail != nil {
		return r.Fail
	}
	r.sent = append(r.sent, n)
	return nil
}

// Sent returns a copy of the recorded notifications.
func (r *Recorder) Sent() []types.OwnerNotification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.OwnerNotification(nil), r.sent...)
}

// Events returns the event type of each recorded notification, in order.
func (r *Recorder) Events() []types.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.EventType, len(r.sent))
	for i, n := range r.sent {
		out[i] = n.Event
	}
	return out
}

// PublishedAd returns an ad published at publishedAt with no renewals.
func PublishedAd(id, ownerID string, publishedAt time.Time) *types.Ad {
	ad := &types.Ad{ID: id, OwnerID: ownerID, Title: "Listing " + id, Status: types.StatusDraft, CreatedAt: publishedAt}
	lifecycle.Publish(ad, publishedAt)
	return ad
}
