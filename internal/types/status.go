package types

// Status is the lifecycle of a persisted record. Queries only return
// published records unless a filter asks otherwise.
type Status string

const (
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
	StatusDeleted   Status = "deleted"
)
