// Package artifacts lists files the automation leaves in its working directory.
package artifacts

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/moby/patternmatcher"

	"github.com/grovetools/autoreg/config"
	"github.com/grovetools/autoreg/errors"
)

// Artifact is one listed file.
type Artifact struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modified_at"`
}

// Lister finds artifacts in a single directory. Only direct children are
// considered; patterns use .dockerignore syntax, including "!" exclusions.
type Lister struct {
	dir     string
	matcher *patternmatcher.PatternMatcher
	maxAge  time.Duration
	now     func() time.Time
}

// NewLister creates a Lister from the artifacts configuration.
func NewLister(cfg config.ArtifactsConfig) (*Lister, error) {
	dir := cfg.Dir
	if dir == "" {
		dir = "."
	}
	pm, err := patternmatcher.New(cfg.Patterns)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigValidation, "invalid artifact pattern")
	}
	return &Lister{dir: dir, matcher: pm, maxAge: cfg.MaxAge, now: time.Now}, nil
}

// Dir returns the scanned directory.
func (l *Lister) Dir() string {
	return l.dir
}

// List returns matching files newest first. Files older than the maximum
// age are left out. A missing directory yields an empty list.
func (l *Lister) List() ([]Artifact, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read artifact directory: %w", err)
	}

	var cutoff time.Time
	if l.maxAge > 0 {
		cutoff = l.now().Add(-l.maxAge)
	}

	var out []Artifact
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ok, err := l.matcher.MatchesOrParentMatches(entry.Name())
		if err != nil || !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		if !cutoff.IsZero() && info.ModTime().Before(cutoff) {
			continue
		}
		out = append(out, Artifact{
			Name:    entry.Name(),
			Path:    filepath.Join(l.dir, entry.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].ModTime.Equal(out[j].ModTime) {
			return out[i].Name < out[j].Name
		}
		return out[i].ModTime.After(out[j].ModTime)
	})
	return out, nil
}

// Latest returns the newest artifact.
func (l *Lister) Latest() (Artifact, error) {
	list, err := l.List()
	if err != nil {
		return Artifact{}, err
	}
	if len(list) == 0 {
		return Artifact{}, errors.New(errors.ErrCodeArtifactNotFound, "no artifacts found")
	}
	return list[0], nil
}

// Find returns the listed artifact called name. Names with path elements
// are rejected so nothing outside the directory can be served.
func (l *Lister) Find(name string) (Artifact, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return Artifact{}, errors.New(errors.ErrCodeInvalidInput, fmt.Sprintf("invalid artifact name '%s'", name))
	}
	list, err := l.List()
	if err != nil {
		return Artifact{}, err
	}
	for _, a := range list {
		if a.Name == name {
			return a, nil
		}
	}
	return Artifact{}, errors.New(errors.ErrCodeArtifactNotFound, fmt.Sprintf("artifact '%s' not found", name)).
		WithDetail("name", name)
}
