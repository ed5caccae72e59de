package badger

import (
	"fmt"

	"github.com/poiesic/recall/storage"
)

// ErrClosed is returned when the database has already been closed.
var ErrClosed = fmt.Errorf("badger: %w", storage.ErrStorageClosed)
