// Package workspace names the files that make up a Backup Unit and guards
// them with an advisory lock.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultImageExt is the extension given to backup images.
const DefaultImageExt = "sqlite"

// CatalogFileName is the run catalog kept at the workspace root.
const CatalogFileName = ".catalog.db"

// ErrInvalidName is returned for names that would escape the workspace.
var ErrInvalidName = errors.New("invalid backup name")

// Unit identifies a Backup Unit: a workspace directory plus a logical name.
type Unit struct {
	Dir  string
	Name string
	// Ext is the backup image extension without the dot. Empty means DefaultImageExt.
	Ext string
}

// NewUnit returns a validated Unit.
func NewUnit(dir, name string) (Unit, error) {
	u := Unit{Dir: dir, Name: name}
	if err := u.Validate(); err != nil {
		return Unit{}, err
	}
	return u, nil
}

// Validate checks that the unit names a single file inside Dir.
func (u Unit) Validate() error {
	if u.Dir == "" {
		return fmt.Errorf("%w: empty workspace path", ErrInvalidName)
	}
	if u.Name == "" || u.Name == "." || u.Name == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidName, u.Name)
	}
	if strings.ContainsAny(u.Name, `/\`) {
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidName, u.Name)
	}
	return nil
}

func (u Unit) ext() string {
	if u.Ext == "" {
		return DefaultImageExt
	}
	return strings.TrimPrefix(u.Ext, ".")
}

// ManifestPath returns W/.N.manifest.
func (u Unit) ManifestPath() string {
	return ManifestPath(u.Dir, u.Name)
}

// ImagePath returns W/N_backup.<ext>.
func (u Unit) ImagePath() string {
	return filepath.Join(u.Dir, u.Name+"_backup."+u.ext())
}

// LockPath returns W/.N.lock.
func (u Unit) LockPath() string {
	return filepath.Join(u.Dir, "."+u.Name+".lock")
}

// CatalogPath returns the run catalog path for the unit's workspace.
func (u Unit) CatalogPath() string {
	return filepath.Join(u.Dir, CatalogFileName)
}

// SidecarPaths lists files SQLite may create next to the image when it is
// opened as a database.
func (u Unit) SidecarPaths() []string {
	img := u.ImagePath()
	return []string{img + "-wal", img + "-shm", img + "-journal"}
}

func (u Unit) String() string {
	return filepath.Join(u.Dir, u.Name)
}

// ManifestPath formats the manifest location for workspace dir and name.
func ManifestPath(dir, name string) string {
	return filepath.Join(dir, "."+name+".manifest")
}

// EnsureDir creates the workspace directory if it does not exist.
func EnsureDir(dir string) error {
	info, err := os.Stat(dir)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("workspace %s is not a directory", dir)
		}
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("stat workspace %s: %w", dir, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("could not create backup workspace %s: %w", dir, err)
	}
	return nil
}

// Exists reports whether path exists. Errors other than "not exist" count as existing
// so callers go on to surface them on open.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil || !os.IsNotExist(err)
}

// RemoveIfExists deletes path, ignoring "not exist".
func RemoveIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
