// Package flags implements the flag-file side channel shared with the
// automation script. A flag's presence is the whole signal.
package flags

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/grovetools/autoreg/config"
	"github.com/grovetools/autoreg/errors"
	"github.com/grovetools/autoreg/logging"
	"github.com/sirupsen/logrus"
)

// Kind identifies one of the managed flags.
type Kind string

const (
	// Pause is raised by the daemon around interactive steps; the script only reads it.
	Pause Kind = "pause"
	// ForceSave asks the script to save now. Only the script deletes it.
	ForceSave Kind = "force-save"
	// Skip asks the script to skip the current record. Only the script deletes it.
	Skip Kind = "skip"
)

// Kinds lists the managed flags in display order.
var Kinds = []Kind{Pause, ForceSave, Skip}

// Status is a snapshot of one flag.
type Status struct {
	Kind     Kind      `json:"kind"`
	File     string    `json:"file"`
	Raised   bool      `json:"raised"`
	RaisedAt time.Time `json:"raised_at,omitempty"`
}

// Channel reads and writes flag files in one directory.
type Channel struct {
	dir    string
	names  map[Kind]string
	logger *logrus.Entry

	mu           sync.Mutex
	pauseHolders int
}

// New creates a Channel from configuration.
func New(cfg config.FlagsConfig) *Channel {
	return &Channel{
		dir: cfg.Dir,
		names: map[Kind]string{
			Pause:     cfg.Pause,
			ForceSave: cfg.ForceSave,
			Skip:      cfg.Skip,
		},
		logger: logging.NewLogger("flags"),
	}
}

// Dir returns the flag directory.
func (c *Channel) Dir() string {
	return c.dir
}

// Path returns the file path of a flag.
func (c *Channel) Path(kind Kind) string {
	return filepath.Join(c.dir, c.names[kind])
}

// ParseKind accepts a kind ("force-save"), a bare file stem ("grava") or a file name ("grava.flag").
func (c *Channel) ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, k := range Kinds {
		name := c.names[k]
		if s == string(k) || s == name || s == strings.TrimSuffix(name, ".flag") {
			return k, nil
		}
	}
	switch s {
	case "forcesave", "force_save", "save":
		return ForceSave, nil
	}
	return "", errors.FlagUnknown(s)
}

// Raise creates or overwrites a flag and durably commits it before returning.
func (c *Channel) Raise(kind Kind) error {
	name, ok := c.names[kind]
	if !ok {
		return errors.FlagUnknown(string(kind))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeLocked(name)
}

func (c *Channel) writeLocked(name string) error {
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create flag directory").
			WithDetail("dir", c.dir)
	}

	tmp, err := os.CreateTemp(c.dir, "."+name+".*")
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create flag file").
			WithDetail("flag", name)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := fmt.Fprintf(tmp, "%s\n", time.Now().Format(time.RFC3339)); err != nil {
		tmp.Close()
		cleanup()
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to write flag file").WithDetail("flag", name)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to sync flag file").WithDetail("flag", name)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to close flag file").WithDetail("flag", name)
	}
	if err := os.Rename(tmpName, filepath.Join(c.dir, name)); err != nil {
		cleanup()
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to publish flag file").WithDetail("flag", name)
	}
	syncDir(c.dir)

	c.logger.WithField("flag", name).Info("Flag raised")
	return nil
}

// syncDir commits the rename itself. Not every platform supports fsync on
// directories, so failures are ignored.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}

// HoldPause raises the pause flag for the duration of an interactive step.
// The flag is removed when the last holder releases it. The returned func is
// safe to call more than once.
func (c *Channel) HoldPause() (release func(), err error) {
	c.mu.Lock()
	if c.pauseHolders == 0 {
		if err := c.writeLocked(c.names[Pause]); err != nil {
			c.mu.Unlock()
			return func() {}, err
		}
	}
	c.pauseHolders++
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.pauseHolders--
			if c.pauseHolders > 0 {
				return
			}
			c.pauseHolders = 0
			if err := c.removeLocked(Pause); err != nil {
				c.logger.WithError(err).Warn("Failed to remove pause flag")
			}
		})
	}, nil
}

// Clear removes a flag. Only the pause flag may be removed here; force-save
// and skip belong to the script once raised.
func (c *Channel) Clear(kind Kind) error {
	if _, ok := c.names[kind]; !ok {
		return errors.FlagUnknown(string(kind))
	}
	if kind != Pause {
		return errors.FlagProtected(c.names[kind])
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeLocked(Pause)
}

func (c *Channel) removeLocked(kind Kind) error {
	name := c.names[kind]
	err := os.Remove(filepath.Join(c.dir, name))
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to remove flag file").WithDetail("flag", name)
	}
	if err == nil {
		c.logger.WithField("flag", name).Info("Flag cleared")
	}
	return nil
}

// IsRaised reports whether the flag file exists.
func (c *Channel) IsRaised(kind Kind) bool {
	name, ok := c.names[kind]
	if !ok {
		return false
	}
	_, err := os.Stat(filepath.Join(c.dir, name))
	return err == nil
}

// Pending returns the state of every managed flag.
func (c *Channel) Pending() []Status {
	out := make([]Status, 0, len(Kinds))
	for _, k := range Kinds {
		st := Status{Kind: k, File: c.names[k]}
		if info, err := os.Stat(c.Path(k)); err == nil {
			st.Raised = true
			st.RaisedAt = info.ModTime()
		}
		out = append(out, st)
	}
	return out
}

// kindForFile maps a file name in the flag directory back to its Kind.
func (c *Channel) kindForFile(name string) (Kind, bool) {
	for k, n := range c.names {
		if n == name {
			return k, true
		}
	}
	return "", false
}

// fileNames returns managed file names sorted, for logging.
func (c *Channel) fileNames() []string {
	names := make([]string, 0, len(c.names))
	for _, n := range c.names {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
