package storage

// Workspace hands out per-request scratch directories
type Workspace interface {
	Create(requestID string) (string, error)
	Release(dir string) error
}
