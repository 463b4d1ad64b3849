package store

import (
	"context"
	"errors"
)

// ErrNoOwner is returned by an OwnerStorage built without an owner id.
var ErrNoOwner = errors.New("storage owner is empty")

// OwnerStorage is a key/value view of a Repository scoped to one owner.
// It satisfies chat.Storage.
type OwnerStorage struct {
	repo    Repository
	ownerID string
}

// NewOwnerStorage returns the blobs of ownerID as key/value storage.
func NewOwnerStorage(repo Repository, ownerID string) *OwnerStorage {
	return &OwnerStorage{repo: repo, ownerID: ownerID}
}

// OwnerID returns the owner the storage is scoped to.
func (o *OwnerStorage) OwnerID() string {
	return o.ownerID
}

// Read returns the value stored under key, or nil if there is none.
func (o *OwnerStorage) Read(ctx context.Context, key string) ([]byte, error) {
	if o.ownerID == "" {
		return nil, ErrNoOwner
	}
	return o.repo.GetBlob(ctx, o.ownerID, key)
}

// Write replaces the value stored under key.
func (o *OwnerStorage) Write(ctx context.Context, key string, data []byte) error {
	if o.ownerID == "" {
		return ErrNoOwner
	}
	return o.repo.PutBlob(ctx, o.ownerID, key, data)
}

// Delete removes key.
func (o *OwnerStorage) Delete(ctx context.Context, key string) error {
	if o.ownerID == "" {
		return ErrNoOwner
	}
	return o.repo.DeleteBlob(ctx, o.ownerID, key)
}
