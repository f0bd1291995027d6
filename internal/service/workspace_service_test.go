package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/workspace-service/internal/config"
	"github.com/spec-kit/workspace-service/internal/domain"
	"github.com/spec-kit/workspace-service/internal/events"
	apperrors "github.com/spec-kit/workspace-service/pkg/util"
)

const testNodeID = "node-1"

func testDockerConfig() config.DockerConfig {
	return config.DockerConfig{
		Image:              "triton/workspace:latest",
		MountRoot:          "/data/workspaces",
		AdvertiseAddr:      "http://127.0.0.1:8080",
		HostPort:           "80",
		CallTimeoutSeconds: 5,
		StopTimeoutSeconds: 1,
	}
}

type workspaceFixture struct {
	users   *fakeUserStore
	cache   *fakeCache
	tokens  *fakeTokenStore
	rt      *fakeRuntime
	bus     *fakeBus
	svc     *WorkspaceService
	postSvc *PostAuthService
}

func newWorkspaceFixture(users ...*domain.User) *workspaceFixture {
	f := &workspaceFixture{
		users:  newFakeUserStore(users...),
		cache:  newFakeCache(),
		tokens: newFakeTokenStore(),
		rt:     &fakeRuntime{nextID: "C1"},
		bus:    &fakeBus{},
	}
	logger := zap.NewNop()
	f.postSvc = NewPostAuthService(f.tokens, time.Hour, logger)
	conflicts := NewConflictService(f.users, f.cache, f.bus, logger)
	f.svc = NewWorkspaceService(testDockerConfig(), testNodeID, WorkspaceDependencies{
		Users:     f.users,
		Cache:     f.cache,
		Tokens:    f.postSvc,
		Conflicts: conflicts,
		Runtime:   f.rt,
		Bus:       f.bus,
	}, logger)
	return f
}

func TestStartRotatesIdentity(t *testing.T) {
	f := newWorkspaceFixture(&domain.User{
		ID: "u1", Username: "alice", Email: "alice@example.com", Role: domain.RoleUser,
		Docker: domain.DockerInfo{ID: "C0"},
	})
	f.rt.nextID = "C1"

	token, err := f.svc.Start(context.Background(), "alice", "hw1")
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	alice := f.users.get("alice")
	assert.Equal(t, "C1", alice.Docker.ID)
	assert.Equal(t, "C0", alice.Docker.Old)

	deletes := f.bus.byChannel(events.ChannelWorkspaceDelete)
	require.Len(t, deletes, 1)
	payload, ok := deletes[0].(events.WorkspaceDeletePayload)
	require.True(t, ok)
	assert.Equal(t, "alice", payload.Username)
}

func TestStartFirstTimePublishesNoDelete(t *testing.T) {
	f := newWorkspaceFixture(&domain.User{ID: "u1", Username: "alice", Role: domain.RoleUser})

	_, err := f.svc.Start(context.Background(), "alice", "hw1")
	require.NoError(t, err)

	alice := f.users.get("alice")
	assert.Equal(t, "C1", alice.Docker.ID)
	assert.Empty(t, alice.Docker.Old)
	assert.Empty(t, f.bus.byChannel(events.ChannelWorkspaceDelete))
}

func TestStartContainerSpec(t *testing.T) {
	f := newWorkspaceFixture(&domain.User{
		ID: "u1", Username: "alice", Email: "alice@example.com",
		DisplayName: "Alice A", Role: domain.RoleUser,
	})

	token, err := f.svc.Start(context.Background(), "alice", "hw1")
	require.NoError(t, err)

	require.Len(t, f.rt.created, 1)
	spec := f.rt.created[0]
	assert.Equal(t, "triton/workspace:latest", spec.Image)
	assert.Equal(t, "alice", spec.Owner)
	assert.Equal(t, "alice@example.com", spec.Email)
	assert.Equal(t, "Alice A", spec.DisplayName)
	assert.Equal(t, "u1", spec.UserID)
	assert.Equal(t, "hw1", spec.Assignment)
	assert.Equal(t, token, spec.PostAuthToken)
	assert.Equal(t, "/data/workspaces/alice/hw1", spec.MountSource)

	assert.Equal(t, []string{"C1"}, f.rt.started)
}

func TestStartUnknownUser(t *testing.T) {
	f := newWorkspaceFixture()

	_, err := f.svc.Start(context.Background(), "ghost", "hw1")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "NOT_FOUND"))
}

func TestStartCreateFailureIsFatal(t *testing.T) {
	f := newWorkspaceFixture(&domain.User{ID: "u1", Username: "alice", Role: domain.RoleUser})
	f.rt.createErr = errors.New("no such image")

	_, err := f.svc.Start(context.Background(), "alice", "hw1")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "RUNTIME_ERROR"))

	// No rotation happened.
	assert.Empty(t, f.users.get("alice").Docker.ID)
}

func TestPublishRecordsIPAndSnapshot(t *testing.T) {
	f := newWorkspaceFixture(&domain.User{
		ID: "u1", Username: "alice", Role: domain.RoleUser,
		APIPublic: "pub", APISecret: "sec",
		Docker: domain.DockerInfo{ID: "C1"},
	})

	token, err := f.postSvc.Issue(context.Background(), "alice", domain.RoleUser, "hw1")
	require.NoError(t, err)

	require.NoError(t, f.svc.Publish(context.Background(), token, "10.0.0.5"))

	alice := f.users.get("alice")
	assert.Equal(t, "10.0.0.5", alice.Docker.IP)
	assert.Equal(t, "C1", alice.Docker.ID)
	assert.Equal(t, "alice", alice.Docker.Username)
	assert.Equal(t, "hw1", alice.Docker.Assignment)

	snap, err := f.cache.Get(context.Background(), "alice")
	require.NoError(t, err)
	require.NotNil(t, snap)
	require.NotNil(t, snap.IP)
	assert.Equal(t, "10.0.0.5", *snap.IP)
	assert.Equal(t, "pub:sec", snap.APIKey)
	assert.Equal(t, domain.RoleUser, snap.Role)

	news := f.bus.byChannel(events.ChannelNewWorkspace)
	require.Len(t, news, 1)

	// Token is single-use.
	err = f.svc.Publish(context.Background(), token, "10.0.0.5")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "INVALID_AUTH"))
}

func TestPublishInvalidToken(t *testing.T) {
	f := newWorkspaceFixture()

	err := f.svc.Publish(context.Background(), "bogus", "10.0.0.5")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "INVALID_AUTH"))
}

// The scenario from the service contract: alice claims an IP, then bob's
// publish of the same IP steals it, nulling alice's claims everywhere.
func TestPublishStealsConflictingIP(t *testing.T) {
	f := newWorkspaceFixture(
		&domain.User{ID: "u1", Username: "alice", Role: domain.RoleUser, APIPublic: "apub", APISecret: "asec"},
		&domain.User{ID: "u2", Username: "bob", Role: domain.RoleUser, APIPublic: "bpub", APISecret: "bsec"},
	)

	// alice starts and publishes first.
	f.rt.nextID = "C1"
	t1, err := f.svc.Start(context.Background(), "alice", "hw1")
	require.NoError(t, err)
	assert.Empty(t, f.bus.byChannel(events.ChannelWorkspaceDelete))

	require.NoError(t, f.svc.Publish(context.Background(), t1, "10.0.0.5"))
	assert.Equal(t, "10.0.0.5", f.users.get("alice").Docker.IP)

	// bob boots with the recycled IP.
	f.rt.nextID = "C2"
	t2, err := f.svc.Start(context.Background(), "bob", "hw2")
	require.NoError(t, err)
	require.NoError(t, f.svc.Publish(context.Background(), t2, "10.0.0.5"))

	assert.Empty(t, f.users.get("alice").Docker.IP)
	assert.Equal(t, "10.0.0.5", f.users.get("bob").Docker.IP)

	aliceSnap, err := f.cache.Get(context.Background(), "alice")
	require.NoError(t, err)
	assert.Nil(t, aliceSnap.IP)

	bobSnap, err := f.cache.Get(context.Background(), "bob")
	require.NoError(t, err)
	require.NotNil(t, bobSnap.IP)
	assert.Equal(t, "10.0.0.5", *bobSnap.IP)

	conflicts := f.bus.byChannel(events.ChannelWorkspaceConflict)
	require.Len(t, conflicts, 1)
	payload, ok := conflicts[0].(domain.Snapshot)
	require.True(t, ok)
	assert.Equal(t, "alice", payload.Username)
	assert.Nil(t, payload.IP)

	assert.Len(t, f.bus.byChannel(events.ChannelNewWorkspace), 2)
}

func TestHandleDeleteStopsAndRemovesOldContainer(t *testing.T) {
	f := newWorkspaceFixture(&domain.User{
		ID: "u1", Username: "alice", Role: domain.RoleUser,
		Docker: domain.DockerInfo{ID: "C1", Old: "C0"},
	})

	f.svc.HandleDelete(context.Background(), "alice")

	assert.Equal(t, []string{"C0"}, f.rt.stopped)
	assert.Equal(t, []string{"C0"}, f.rt.removed)
	assert.Empty(t, f.users.get("alice").Docker.Old)
	assert.Equal(t, "C1", f.users.get("alice").Docker.ID)
}

func TestHandleDeleteStopFailureIsSwallowed(t *testing.T) {
	f := newWorkspaceFixture(&domain.User{
		ID: "u1", Username: "alice", Role: domain.RoleUser,
		Docker: domain.DockerInfo{ID: "C1", Old: "C0"},
	})
	f.rt.stopErr = errors.New("no such container")

	// This node does not host C0: the stop fails and the event is a no-op.
	f.svc.HandleDelete(context.Background(), "alice")

	assert.Empty(t, f.rt.removed)
	assert.Equal(t, "C0", f.users.get("alice").Docker.Old)
}

func TestHandleDeleteWithoutOldContainer(t *testing.T) {
	f := newWorkspaceFixture(&domain.User{
		ID: "u1", Username: "alice", Role: domain.RoleUser,
		Docker: domain.DockerInfo{ID: "C1"},
	})

	f.svc.HandleDelete(context.Background(), "alice")

	assert.Empty(t, f.rt.stopped)
	assert.Empty(t, f.rt.removed)
}

func TestHandleUpdateSkipsOwnBroadcast(t *testing.T) {
	f := newWorkspaceFixture()

	f.svc.HandleUpdate(context.Background(), testNodeID)
	assert.Empty(t, f.rt.pulled)

	f.svc.HandleUpdate(context.Background(), "node-2")
	assert.Equal(t, []string{"triton/workspace:latest"}, f.rt.pulled)
}

func TestUpdateWrapperBroadcastsThenPulls(t *testing.T) {
	f := newWorkspaceFixture()

	require.NoError(t, f.svc.UpdateWrapper(context.Background()))

	updates := f.bus.byChannel(events.ChannelWorkspaceUpdate)
	require.Len(t, updates, 1)
	payload, ok := updates[0].(events.WorkspaceUpdatePayload)
	require.True(t, ok)
	assert.Equal(t, testNodeID, payload.ID)

	assert.Equal(t, []string{"triton/workspace:latest"}, f.rt.pulled)
}
