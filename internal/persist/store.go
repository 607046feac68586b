// SPDX-License-Identifier: MPL-2.0

// Package persist snapshots continuous animations to disk so they resume after
// a crash. A file <dir>/<id>.json exists exactly while the animation with that
// id should be running.
package persist

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"ledserver/internal/logging"
	"ledserver/internal/protocol"
	"ledserver/pkg/types"

	"github.com/charmbracelet/log"
	"github.com/spf13/afero"
)

const snapshotExt = ".json"

// DefaultDir is the snapshot directory used when none is configured.
const DefaultDir = "animations"

// ErrSnapshotInvalid is returned for a snapshot file that cannot be used.
var ErrSnapshotInvalid = errors.New("invalid snapshot")

type (
	// Persister is what the animation manager writes snapshots through.
	Persister interface {
		Save(params protocol.AnimationToRunParams) error
		Delete(id types.AnimationID) error
	}

	// Store keeps one tagged-JSON snapshot per animation on an afero filesystem.
	Store struct {
		fs     afero.Fs
		dir    string
		logger *log.Logger
	}

	// StoreOption configures a Store.
	StoreOption func(*Store)

	// SnapshotError describes a snapshot file that Load had to skip.
	SnapshotError struct {
		Path string
		Err  error
	}

	// Nop is the Persister used when persistence is disabled.
	Nop struct{}
)

// WithLogger sets the store logger.
func WithLogger(l *log.Logger) StoreOption {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewStore creates a Store rooted at dir. A nil fs means the OS filesystem.
func NewStore(fsys afero.Fs, dir string, opts ...StoreOption) *Store {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	if dir == "" {
		dir = DefaultDir
	}
	s := &Store{fs: fsys, dir: filepath.Clean(dir), logger: logging.Discard()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dir returns the snapshot directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the snapshot file for id.
func (s *Store) Path(id types.AnimationID) string {
	return filepath.Join(s.dir, string(id)+snapshotExt)
}

// Save writes params to <id>.json through a temporary file and a rename, so a
// crash never leaves a half-written snapshot behind.
func (s *Store) Save(params protocol.AnimationToRunParams) error {
	if err := params.ID.Validate(); err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	data, err := protocol.Marshal(params)
	if err != nil {
		return fmt.Errorf("saving snapshot %s: %w", params.ID, err)
	}
	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating snapshot dir %s: %w", s.dir, err)
	}

	tmp, err := afero.TempFile(s.fs, s.dir, "."+string(params.ID)+".*.tmp")
	if err != nil {
		return fmt.Errorf("saving snapshot %s: %w", params.ID, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("writing snapshot %s: %w", params.ID, err)
	}
	if err := tmp.Close(); err != nil {
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("writing snapshot %s: %w", params.ID, err)
	}
	if err := s.fs.Rename(tmpName, s.Path(params.ID)); err != nil {
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("committing snapshot %s: %w", params.ID, err)
	}

	s.logger.Debug("snapshot saved", "id", params.ID, "path", s.Path(params.ID))
	return nil
}

// Delete removes the snapshot for id. A missing file is not an error.
func (s *Store) Delete(id types.AnimationID) error {
	if err := id.Validate(); err != nil {
		return fmt.Errorf("deleting snapshot: %w", err)
	}
	err := s.fs.Remove(s.Path(id))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("deleting snapshot %s: %w", id, err)
	}
	s.logger.Debug("snapshot deleted", "id", id)
	return nil
}

// Load returns every readable snapshot ordered by id, plus one SnapshotError
// per file that was skipped. A missing directory yields no snapshots.
func (s *Store) Load() ([]protocol.AnimationToRunParams, []error) {
	entries, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, []error{&SnapshotError{Path: s.dir, Err: err}}
	}

	var (
		out  []protocol.AnimationToRunParams
		errs []error
	)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != snapshotExt {
			continue
		}
		path := filepath.Join(s.dir, name)
		params, err := s.read(path, types.AnimationID(strings.TrimSuffix(name, snapshotExt)))
		if err != nil {
			s.logger.Warn("skipping snapshot", "path", path, "err", err)
			errs = append(errs, &SnapshotError{Path: path, Err: err})
			continue
		}
		out = append(out, params)
	}

	slices.SortFunc(out, func(a, b protocol.AnimationToRunParams) int {
		return strings.Compare(string(a.ID), string(b.ID))
	})
	return out, errs
}

func (s *Store) read(path string, id types.AnimationID) (protocol.AnimationToRunParams, error) {
	if err := id.Validate(); err != nil {
		return protocol.AnimationToRunParams{}, err
	}
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return protocol.AnimationToRunParams{}, err
	}
	msg, err := protocol.Unmarshal(data)
	if err != nil {
		return protocol.AnimationToRunParams{}, fmt.Errorf("%w: %w", ErrSnapshotInvalid, err)
	}
	params, ok := msg.(protocol.AnimationToRunParams)
	if !ok {
		return protocol.AnimationToRunParams{}, fmt.Errorf("%w: holds %s, want %s",
			ErrSnapshotInvalid, msg.Kind(), protocol.KindAnimationToRunParams)
	}
	if params.ID == "" {
		params.ID = id
	}
	if params.ID != id {
		return protocol.AnimationToRunParams{}, fmt.Errorf("%w: file is named %s but holds id %s",
			ErrSnapshotInvalid, id, params.ID)
	}
	return params, nil
}

func (e *SnapshotError) Error() string {
	return fmt.Sprintf("snapshot %s: %v", e.Path, e.Err)
}

func (e *SnapshotError) Unwrap() error {
	return e.Err
}

// Save implements Persister.
func (Nop) Save(protocol.AnimationToRunParams) error { return nil }

// Delete implements Persister.
func (Nop) Delete(types.AnimationID) error { return nil }
