// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package migration

import (
	"os"
	"runtime"
	"sync"

	"github.com/nanoporetech/pod5/errs"
)

// TempDirRegistry hands out a scoped temporary directory for migrations
// too large to buffer entirely in memory, and arranges best-effort
// cleanup. Go has no atexit hook equivalent to the original's
// last-resort cleanup handler; this registry substitutes a
// runtime.SetFinalizer on the returned handle plus an explicit Dir.Close
// the caller is expected to invoke once migration completes, so the
// finalizer is a true last resort rather than the primary path.
type TempDirRegistry struct {
	mu   sync.Mutex
	dirs []string
}

// Dir is a single registered temporary directory; its finalizer removes
// it if Close was never called.
type Dir struct {
	path string
	reg  *TempDirRegistry
}

// New constructs an empty registry.
func New() *TempDirRegistry {
	return &TempDirRegistry{}
}

// Create makes a fresh temporary directory under the OS temp root, named
// with prefix, and registers it for cleanup.
func (r *TempDirRegistry) Create(prefix string) (*Dir, error) {
	path, err := os.MkdirTemp("", prefix+"-")
	if err != nil {
		return nil, errs.New(errs.IOError, op, err)
	}
	r.mu.Lock()
	r.dirs = append(r.dirs, path)
	r.mu.Unlock()

	d := &Dir{path: path, reg: r}
	runtime.SetFinalizer(d, func(d *Dir) { d.Close() })
	return d, nil
}

// Path returns the directory's filesystem path.
func (d *Dir) Path() string { return d.path }

// CreateFile creates a new temporary file inside d.
func (d *Dir) CreateFile(pattern string) (*os.File, error) {
	f, err := os.CreateTemp(d.path, pattern)
	if err != nil {
		return nil, errs.New(errs.IOError, op, err)
	}
	return f, nil
}

// Close removes d and deregisters it; safe to call more than once.
func (d *Dir) Close() error {
	if d.path == "" {
		return nil
	}
	err := os.RemoveAll(d.path)
	d.reg.forget(d.path)
	d.path = ""
	runtime.SetFinalizer(d, nil)
	if err != nil {
		return errs.New(errs.IOError, op, err)
	}
	return nil
}

func (r *TempDirRegistry) forget(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, p := range r.dirs {
		if p == path {
			r.dirs = append(r.dirs[:i], r.dirs[i+1:]...)
			return
		}
	}
}

// CleanupAll force-removes every directory still registered. Intended
// for tests and for callers that want a deterministic sweep instead of
// relying on finalizers.
func (r *TempDirRegistry) CleanupAll() error {
	r.mu.Lock()
	dirs := append([]string(nil), r.dirs...)
	r.mu.Unlock()

	var firstErr error
	for _, d := range dirs {
		if err := os.RemoveAll(d); err != nil && firstErr == nil {
			firstErr = err
		}
		r.forget(d)
	}
	if firstErr != nil {
		return errs.New(errs.IOError, op, firstErr)
	}
	return nil
}
