package store

import (
	"fmt"

	"github.com/dkeye/Chat/internal/core"
)

const (
	DriverMemory = "memory"
	DriverBadger = "badger"
	DriverSQLite = "sqlite"
)

// Open returns the backend selected by driver.
func Open(driver, path string) (core.Store, error) {
	switch driver {
	case DriverMemory, "":
		return NewMemory(), nil
	case DriverBadger:
		return OpenBadger(path)
	case DriverSQLite:
		return OpenSQLite(path)
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}
