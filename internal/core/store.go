//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=../mocks/mock_store.go -package=mocks
package core

import (
	"context"
	"errors"
)

var ErrKeyNotFound = errors.New("key not found")

// Store is a last-write-wins byte store. Get returns ErrKeyNotFound for unknown keys.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Close() error
}
