package domain

// Snapshot is the read-optimized projection of a workspace kept in the fast
// cache, keyed by username. IP is a pointer so a resolved conflict serializes
// as an explicit null on the wire.
type Snapshot struct {
	IP         *string `json:"ip"`
	Username   string  `json:"username"`
	Assignment string  `json:"assignment"`
	APIKey     string  `json:"apikey"`
	Role       Role    `json:"role"`
}

// PostBootToken is the record stored behind a one-time post-boot capability
// token. Status starts at "init" and the record is deleted on consumption.
type PostBootToken struct {
	Username   string `json:"username"`
	Role       Role   `json:"role"`
	Assignment string `json:"assignment"`
	Status     string `json:"status"`
}

const TokenStatusInit = "init"

// LivenessRecord tracks the last heartbeat for a workspace. Checkin is unix
// seconds; Max is the staleness threshold in seconds that applied when the
// heartbeat was recorded; Online flips to false once the sweep retires it.
type LivenessRecord struct {
	Checkin int64 `json:"checkin"`
	Max     int64 `json:"max"`
	Online  bool  `json:"online"`
}
