package service

import (
	"context"
	"sync"
	"time"

	"github.com/spec-kit/workspace-service/internal/domain"
	"github.com/spec-kit/workspace-service/internal/events"
	"github.com/spec-kit/workspace-service/internal/runtime"
	apperrors "github.com/spec-kit/workspace-service/pkg/util"
)

type fakeUserStore struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func newFakeUserStore(users ...*domain.User) *fakeUserStore {
	s := &fakeUserStore{users: make(map[string]*domain.User)}
	for _, u := range users {
		s.users[u.Username] = u
	}
	return s
}

func (s *fakeUserStore) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return nil, apperrors.NewNotFound("user", nil)
	}
	copied := *u
	return &copied, nil
}

func (s *fakeUserStore) FindByDockerIP(_ context.Context, ip string) ([]*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matches []*domain.User
	for _, u := range s.users {
		if u.Docker.IP == ip {
			copied := *u
			matches = append(matches, &copied)
		}
	}
	return matches, nil
}

func (s *fakeUserStore) UpdateDocker(_ context.Context, username string, docker domain.DockerInfo, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return apperrors.NewNotFound("user", nil)
	}
	if u.DockerVersion != expectedVersion {
		return apperrors.NewConflict("workspace record changed since read", nil)
	}
	u.Docker = docker
	u.DockerVersion++
	return nil
}

func (s *fakeUserStore) ClearDockerIP(_ context.Context, userID, ip string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.ID == userID && u.Docker.IP == ip {
			u.Docker.IP = ""
			u.DockerVersion++
		}
	}
	return nil
}

func (s *fakeUserStore) ClearDockerOld(_ context.Context, userID, oldID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.ID == userID && u.Docker.Old == oldID {
			u.Docker.Old = ""
			u.DockerVersion++
		}
	}
	return nil
}

func (s *fakeUserStore) get(username string) domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.users[username]
}

type fakeCache struct {
	mu       sync.Mutex
	snaps    map[string]domain.Snapshot
	setCalls int
}

func newFakeCache() *fakeCache {
	return &fakeCache{snaps: make(map[string]domain.Snapshot)}
}

func (c *fakeCache) Get(_ context.Context, username string) (*domain.Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap, ok := c.snaps[username]
	if !ok {
		return nil, nil
	}
	copied := snap
	return &copied, nil
}

func (c *fakeCache) Set(_ context.Context, snap *domain.Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snaps[snap.Username] = *snap
	c.setCalls++
	return nil
}

func (c *fakeCache) All(_ context.Context) ([]domain.Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snaps := make([]domain.Snapshot, 0, len(c.snaps))
	for _, snap := range c.snaps {
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

type publishedEvent struct {
	channel events.Channel
	payload any
}

type fakeBus struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (b *fakeBus) Publish(_ context.Context, channel events.Channel, payload any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, publishedEvent{channel: channel, payload: payload})
	return nil
}

func (b *fakeBus) byChannel(channel events.Channel) []any {
	b.mu.Lock()
	defer b.mu.Unlock()
	var payloads []any
	for _, e := range b.events {
		if e.channel == channel {
			payloads = append(payloads, e.payload)
		}
	}
	return payloads
}

type fakeTokenStore struct {
	mu   sync.Mutex
	recs map[string]domain.PostBootToken
	ttls map[string]time.Duration
}

func newFakeTokenStore() *fakeTokenStore {
	return &fakeTokenStore{
		recs: make(map[string]domain.PostBootToken),
		ttls: make(map[string]time.Duration),
	}
}

func (s *fakeTokenStore) Put(_ context.Context, token string, rec domain.PostBootToken, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs[token] = rec
	s.ttls[token] = ttl
	return nil
}

func (s *fakeTokenStore) Consume(_ context.Context, token string) (*domain.PostBootToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[token]
	if !ok {
		return nil, nil
	}
	delete(s.recs, token)
	return &rec, nil
}

type fakeRuntime struct {
	mu        sync.Mutex
	nextID    string
	createErr error
	stopErr   error
	created   []runtime.CreateSpec
	started   []string
	stopped   []string
	removed   []string
	pulled    []string
}

func (r *fakeRuntime) Create(_ context.Context, spec runtime.CreateSpec) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return "", r.createErr
	}
	r.created = append(r.created, spec)
	return r.nextID, nil
}

func (r *fakeRuntime) Start(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, id)
	return nil
}

func (r *fakeRuntime) Inspect(_ context.Context, id string) (*runtime.Info, error) {
	return &runtime.Info{ID: id, Running: true}, nil
}

func (r *fakeRuntime) Stop(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopErr != nil {
		return r.stopErr
	}
	r.stopped = append(r.stopped, id)
	return nil
}

func (r *fakeRuntime) Remove(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, id)
	return nil
}

func (r *fakeRuntime) PullImage(_ context.Context, image string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pulled = append(r.pulled, image)
	return nil
}

type fakeLivenessStore struct {
	mu   sync.Mutex
	recs map[string]domain.LivenessRecord
}

func newFakeLivenessStore() *fakeLivenessStore {
	return &fakeLivenessStore{recs: make(map[string]domain.LivenessRecord)}
}

func (s *fakeLivenessStore) Put(_ context.Context, username string, rec domain.LivenessRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs[username] = rec
	return nil
}

func (s *fakeLivenessStore) All(_ context.Context) (map[string]domain.LivenessRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := make(map[string]domain.LivenessRecord, len(s.recs))
	for k, v := range s.recs {
		copied[k] = v
	}
	return copied, nil
}
