package events

import "github.com/spec-kit/workspace-service/internal/domain"

// Channel names a fleet bus pub/sub channel. The names are part of the wire
// contract shared by every node.
type Channel string

const (
	ChannelWorkspaceDelete   Channel = "WorkspaceDelete"
	ChannelWorkspaceUpdate   Channel = "WorkspaceUpdate"
	ChannelNewWorkspace      Channel = "NewWorkspace"
	ChannelWorkspaceConflict Channel = "WorkspaceConflict"
)

// WorkspaceDeletePayload asks every node to tear down the named user's
// previous container. Delivery is best-effort; non-owning nodes no-op.
type WorkspaceDeletePayload struct {
	Username string `json:"username"`
}

// WorkspaceUpdatePayload announces a fleet-wide image update. ID is the
// originating node's identity so the origin can skip its own broadcast.
type WorkspaceUpdatePayload struct {
	ID string `json:"id"`
}

// NewWorkspace and WorkspaceConflict carry the full cached snapshot; a
// conflict payload has its IP nulled.
type (
	NewWorkspacePayload      = domain.Snapshot
	WorkspaceConflictPayload = domain.Snapshot
)
