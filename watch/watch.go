// Package watch indexes bags as they are dropped into a directory.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/mjordan/bagit-indexer/util"
)

// Extensions of the files picked up by a Watcher.
var Extensions = []string{".zip", ".tgz", ".tar.gz", ".tar"}

// IsBagArchive reports whether name looks like a bag archive. Hidden files
// are never bags.
func IsBagArchive(name string) bool {
	base := strings.ToLower(filepath.Base(name))
	if strings.HasPrefix(base, ".") {
		return false
	}
	for _, ext := range Extensions {
		if strings.HasSuffix(base, ext) {
			return true
		}
	}
	return false
}

// A Watcher calls Handle for each bag archive created or changed in Dir,
// once the file has stayed unchanged for Settle. Copying a large bag
// produces many write events; only the last one counts.
type Watcher struct {
	Dir     string
	Settle  time.Duration
	Workers int
	// Existing also handles the bags already in Dir when Run starts.
	Existing bool
	Handle   func(ctx context.Context, path string)
}

// Run watches until ctx is cancelled. Bags being handled when ctx is
// cancelled are allowed to finish before Run returns.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()
	if err := fsw.Add(w.Dir); err != nil {
		return errors.Wrap(err, w.Dir)
	}

	settle := w.Settle
	if settle <= 0 {
		settle = time.Second
	}
	gate := util.NewGate(w.Workers)
	var wg sync.WaitGroup
	var mu sync.Mutex // protects stopped and wg.Add
	var stopped bool
	inflight := context.WithoutCancel(ctx)

	// an entry expiring from pending means its file has settled
	pending := cache.New(settle, settle/4)
	pending.OnEvicted(func(name string, _ interface{}) {
		if _, err := os.Stat(name); err != nil {
			// removed before it settled
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if stopped {
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !gate.Enter() {
				return
			}
			defer gate.Leave()
			w.Handle(inflight, name)
		}()
	})

	if w.Existing {
		entries, err := os.ReadDir(w.Dir)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if e.Type().IsRegular() && IsBagArchive(e.Name()) {
				pending.SetDefault(filepath.Join(w.Dir, e.Name()), nil)
			}
		}
	}

	logrus.WithFields(logrus.Fields{"dir": w.Dir, "settle": settle}).Info("watching for bags")
	defer func() {
		// stop new work, then wait for what is running
		mu.Lock()
		stopped = true
		mu.Unlock()
		gate.Stop()
		wg.Wait()
	}()
	for {
		select {
		case <-ctx.Done():
			logrus.WithField("dir", w.Dir).Info("stopped watching")
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if !IsBagArchive(ev.Name) {
				continue
			}
			logrus.WithFields(logrus.Fields{"file": ev.Name, "op": ev.Op.String()}).Debug("bag changed")
			pending.SetDefault(ev.Name, nil)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logrus.WithError(err).Error("watcher")
		}
	}
}
