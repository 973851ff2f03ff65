// Package storage defines the interface for writing corpus documents to a blob store.
// The document store writes every snapshot through a local Provider and can
// mirror it to a second Provider such as Google Cloud Storage.
package storage

import (
	"context"
)

// Provider saves a named object.
type Provider interface {
	// Save writes data to the object path/key, replacing any previous content.
	Save(ctx context.Context, objectName string, data []byte) error
}

// NoOpProvider accepts and discards every write.
type NoOpProvider struct{}

// Save for NoOpProvider does nothing and always returns nil.
func (n *NoOpProvider) Save(_ context.Context, _ string, _ []byte) error {
	return nil
}
