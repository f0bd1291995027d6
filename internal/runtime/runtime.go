package runtime

import "context"

// CreateSpec carries everything a node needs to create one workspace
// container for a user and assignment.
type CreateSpec struct {
	Image         string
	Owner         string
	Email         string
	DisplayName   string
	UserID        string
	Assignment    string
	PostAuthToken string
	MountSource   string
	AdvertiseAddr string
	HostPort      string
}

// Info is the runtime identity of a created container.
type Info struct {
	ID      string
	IP      string
	Running bool
}

// ContainerRuntime abstracts the container engine used to host workspaces.
type ContainerRuntime interface {
	Create(ctx context.Context, spec CreateSpec) (string, error)
	Start(ctx context.Context, id string) error
	Inspect(ctx context.Context, id string) (*Info, error)
	Stop(ctx context.Context, id string) error
	Remove(ctx context.Context, id string) error
	PullImage(ctx context.Context, image string) error
}
