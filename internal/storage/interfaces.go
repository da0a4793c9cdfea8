package storage

import "context"

// ObjectStorage is the durable blob store for encoded captures.
// Keys are content-addressable: derived once per accepted upload and
// never regenerated.
type ObjectStorage interface {
	// Put writes an object. The write must be confirmed before the
	// caller treats the capture as accepted.
	Put(ctx context.Context, key string, data []byte, contentType string) error

	// Get reads an object back. Returns ErrObjectNotFound if missing.
	Get(ctx context.Context, key string) ([]byte, string, error)

	// Delete removes an object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// StorageError is the error type for storage sentinel errors.
type StorageError string

func (e StorageError) Error() string { return string(e) }

const (
	// ErrObjectNotFound indicates the key does not exist.
	ErrObjectNotFound StorageError = "object not found"
)
