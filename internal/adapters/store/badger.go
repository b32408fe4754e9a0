package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Chat/internal/core"
)

// Badger persists values in an embedded BadgerDB directory.
type Badger struct {
	db *badger.DB
}

func OpenBadger(path string) (*Badger, error) {
	opts := badger.DefaultOptions(path).WithLogger(badgerLogger{})
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger %s: %w", path, err)
	}
	log.Info().Str("module", "store.badger").Str("path", path).Msg("opened")
	return &Badger{db: db}, nil
}

func (b *Badger) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, core.ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("badger get %q: %w", key, err)
	}
	return out, nil
}

func (b *Badger) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("badger put %q: %w", key, err)
	}
	return nil
}

func (b *Badger) Close() error {
	log.Info().Str("module", "store.badger").Msg("closing")
	return b.db.Close()
}

// badgerLogger routes badger's own logging into zerolog.
type badgerLogger struct{}

func (badgerLogger) Errorf(f string, v ...interface{}) {
	log.Error().Str("module", "store.badger").Msgf(f, v...)
}

func (badgerLogger) Warningf(f string, v ...interface{}) {
	log.Warn().Str("module", "store.badger").Msgf(f, v...)
}

func (badgerLogger) Infof(f string, v ...interface{}) {
	log.Debug().Str("module", "store.badger").Msgf(f, v...)
}

func (badgerLogger) Debugf(f string, v ...interface{}) {
	log.Trace().Str("module", "store.badger").Msgf(f, v...)
}
