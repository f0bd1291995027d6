package domain

import "time"

// Role identifies the privilege level a user's workspace runs with.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// DockerInfo is the per-user workspace sub-document persisted on the user
// record. ID is the current container identity; Old is the immediately prior
// one and is retained only until its teardown is confirmed.
type DockerInfo struct {
	ID         string `json:"id,omitempty"`
	Old        string `json:"old,omitempty"`
	IP         string `json:"ip,omitempty"`
	Username   string `json:"username,omitempty"`
	Assignment string `json:"assignment,omitempty"`
}

// User is the durable record for a workspace owner. Records are provisioned
// out of band; the core mutates only the Docker sub-document.
type User struct {
	ID            string
	Username      string
	Email         string
	DisplayName   string
	Role          Role
	APIPublic     string
	APISecret     string
	PasswordHash  string
	Docker        DockerInfo
	DockerVersion int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// APIKey returns the public:secret credential pair in wire form.
func (u *User) APIKey() string {
	return u.APIPublic + ":" + u.APISecret
}
