package flags

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/grovetools/autoreg/logging"
	"github.com/sirupsen/logrus"
)

// Change describes a flag appearing or disappearing.
type Change struct {
	Kind   Kind
	Raised bool
}

// Watcher reports flag files appearing and disappearing, which is how the
// daemon learns that the script consumed a force-save or skip request.
type Watcher struct {
	channel  *Channel
	watcher  *fsnotify.Watcher
	logger   *logrus.Entry
	onChange func(Change)
}

// NewWatcher watches the channel directory. onChange may be nil.
func NewWatcher(c *Channel, onChange func(Change)) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(c.Dir()); err != nil {
		w.Close()
		return nil, err
	}

	return &Watcher{
		channel:  c,
		watcher:  w,
		logger:   logging.NewLogger("flag-watcher"),
		onChange: onChange,
	}, nil
}

// Start processes filesystem events until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) {
	w.logger.WithField("dir", w.channel.Dir()).Debugf("Watching flag files %v", w.channel.fileNames())
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			kind, managed := w.channel.kindForFile(filepath.Base(event.Name))
			if !managed {
				continue
			}

			var change Change
			switch {
			case event.Op&(fsnotify.Create|fsnotify.Write) != 0:
				change = Change{Kind: kind, Raised: true}
			case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				change = Change{Kind: kind, Raised: false}
			default:
				continue
			}

			// A rename onto the flag path arrives as Create; a Rename event
			// names the old path, so confirm against the filesystem.
			change.Raised = w.channel.IsRaised(kind)

			if !change.Raised && kind != Pause {
				w.logger.WithField("flag", kind).Info("Flag consumed by script")
			} else {
				w.logger.WithField("flag", kind).WithField("raised", change.Raised).Debug("Flag changed")
			}
			if w.onChange != nil {
				w.onChange(change)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Errorf("Watcher error: %v", err)
		case <-ctx.Done():
			w.watcher.Close()
			return
		}
	}
}

// Close stops the watcher and releases resources.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
