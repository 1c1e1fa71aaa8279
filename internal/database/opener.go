package database

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrStoreUnavailable is returned while the database file does not exist yet,
// typically because the collector has never run.
var ErrStoreUnavailable = errors.New("store unavailable")

// Opener lazily opens an existing database for read-mostly consumers such as
// the dashboard. It never creates the database file.
type Opener struct {
	path        string
	busyTimeout time.Duration
	log         zerolog.Logger

	mu sync.Mutex
	db *DB
}

// NewOpener creates an Opener for the database at path
func NewOpener(path string, busyTimeout time.Duration) *Opener {
	return &Opener{
		path:        path,
		busyTimeout: busyTimeout,
		log:         log.With().Str("component", "store").Str("path", path).Logger(),
	}
}

// Get returns the open database, opening it if the file has appeared.
func (o *Opener) Get(ctx context.Context) (*DB, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.db != nil {
		return o.db, nil
	}

	if _, err := os.Stat(o.path); err != nil {
		if os.IsNotExist(err) {
			return nil, ErrStoreUnavailable
		}
		return nil, errors.Wrap(err, "cannot stat database")
	}

	db, err := New(o.path, o.busyTimeout)
	if err != nil {
		return nil, err
	}
	if err := db.InitSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	o.log.Info().Msg("store opened")
	o.db = db
	return db, nil
}

// Watch opens the store as soon as its file is created. It returns when the
// store is open or ctx is done.
func (o *Opener) Watch(ctx context.Context) error {
	if _, err := o.Get(ctx); err == nil || !errors.Is(err, ErrStoreUnavailable) {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "cannot create watcher")
	}
	defer w.Close()

	dir := filepath.Dir(o.path)
	if err := w.Add(dir); err != nil {
		return errors.Wrapf(err, "cannot watch %s", dir)
	}
	o.log.Info().Str("dir", dir).Msg("waiting for collector to create the store")

	// The file may have appeared between the first check and Add.
	if _, err := o.Get(ctx); err == nil {
		return nil
	}

	file := filepath.Base(o.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !strings.EqualFold(filepath.Base(ev.Name), file) || ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			_, err := o.Get(ctx)
			if err == nil {
				return nil
			}
			if !errors.Is(err, ErrStoreUnavailable) {
				o.log.Warn().Err(err).Msg("store open failed")
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			o.log.Warn().Err(err).Msg("store watch error")
		}
	}
}

// Close closes the database if it was opened
func (o *Opener) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.db == nil {
		return nil
	}
	err := o.db.Close()
	o.db = nil
	return err
}
