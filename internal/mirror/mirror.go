package mirror

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"github.com/ramonehamilton/sqlite-incbackup/internal/fingerprint"
	"github.com/ramonehamilton/sqlite-incbackup/internal/manifest"
	"github.com/ramonehamilton/sqlite-incbackup/internal/workspace"
)

// ErrCorrupt is returned by Pull when the remote manifest fails its
// meta-fingerprint check. Local files are left untouched.
var ErrCorrupt = errors.New("remote backup failed integrity check")

// Mirror pushes and pulls Backup Units.
type Mirror struct {
	store  Store
	hash   fingerprint.HashFunc
	logger *slog.Logger
}

// New creates a Mirror over store. A nil hash uses XXH64; a nil logger uses
// slog.Default().
func New(store Store, hash fingerprint.HashFunc, logger *slog.Logger) *Mirror {
	if hash == nil {
		hash = fingerprint.XXHash64
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Mirror{store: store, hash: hash, logger: logger}
}

// ManifestKey returns the object key of u's manifest.
func ManifestKey(u workspace.Unit) string {
	return path.Join(u.Name, filepath.Base(u.ManifestPath()))
}

// ImageKey returns the object key of u's backup image.
func ImageKey(u workspace.Unit) string {
	return path.Join(u.Name, filepath.Base(u.ImagePath()))
}

// Push uploads the image, then the manifest. The manifest goes last so a
// remote copy never advertises pages its image does not hold yet.
func (m *Mirror) Push(ctx context.Context, u workspace.Unit) error {
	lock, err := workspace.Acquire(u)
	if err != nil {
		return err
	}
	defer lock.Release()

	if !workspace.Exists(u.ManifestPath()) || !workspace.Exists(u.ImagePath()) {
		return fmt.Errorf("push %s: no local backup", u)
	}

	if err := m.upload(ctx, u.ImagePath(), ImageKey(u)); err != nil {
		return err
	}
	if err := m.upload(ctx, u.ManifestPath(), ManifestKey(u)); err != nil {
		return err
	}
	m.logger.Info("Pushed backup", "unit", u.String(), "image", ImageKey(u))
	return nil
}

func (m *Mirror) upload(ctx context.Context, local, key string) error {
	f, err := os.Open(local)
	if err != nil {
		return fmt.Errorf("open %s: %w", local, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", local, err)
	}
	if err := m.store.Put(ctx, key, f, st.Size()); err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}

// Pull downloads u into its workspace. Both objects land in temporary files
// first; the manifest must pass its meta-fingerprint check before either
// replaces the local copy. The image is renamed into place before the
// manifest.
func (m *Mirror) Pull(ctx context.Context, u workspace.Unit) (err error) {
	if err := workspace.EnsureDir(u.Dir); err != nil {
		return err
	}
	lock, err := workspace.Acquire(u)
	if err != nil {
		return err
	}
	defer lock.Release()

	manifestTmp, err := m.download(ctx, ManifestKey(u), u.Dir)
	if err != nil {
		return err
	}
	defer removeTemp(manifestTmp, &err)

	if err := m.checkManifest(manifestTmp); err != nil {
		return err
	}

	imageTmp, err := m.download(ctx, ImageKey(u), u.Dir)
	if err != nil {
		return err
	}
	defer removeTemp(imageTmp, &err)

	if err := os.Rename(imageTmp, u.ImagePath()); err != nil {
		return fmt.Errorf("install image: %w", err)
	}
	for _, p := range u.SidecarPaths() {
		if err := workspace.RemoveIfExists(p); err != nil {
			return fmt.Errorf("remove stale %s: %w", p, err)
		}
	}
	if err := os.Rename(manifestTmp, u.ManifestPath()); err != nil {
		return fmt.Errorf("install manifest: %w", err)
	}

	m.logger.Info("Pulled backup", "unit", u.String())
	return nil
}

func (m *Mirror) checkManifest(p string) error {
	data, err := os.ReadFile(p)
	if err != nil {
		return fmt.Errorf("read downloaded manifest: %w", err)
	}
	fps, rest := fingerprint.Decode(data)
	if rest != 0 || len(fps) == 0 {
		return fmt.Errorf("%w: %w", ErrCorrupt, manifest.ErrTruncated)
	}
	if err := manifest.List(fps).Verify(m.hash); err != nil {
		return fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return nil
}

func (m *Mirror) download(ctx context.Context, key, dir string) (string, error) {
	rc, err := m.store.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", key, err)
	}
	defer rc.Close()

	f, err := os.CreateTemp(dir, ".pull-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(f, rc); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("download %s: %w", key, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("download %s: %w", key, err)
	}
	return f.Name(), nil
}

// removeTemp deletes a temp file that was not renamed into place.
func removeTemp(p string, errp *error) {
	if rmErr := workspace.RemoveIfExists(p); rmErr != nil && *errp == nil {
		*errp = rmErr
	}
}

// Delete removes u's remote objects.
func (m *Mirror) Delete(ctx context.Context, u workspace.Unit) error {
	for _, key := range []string{ManifestKey(u), ImageKey(u)} {
		if err := m.store.Delete(ctx, key); err != nil {
			return fmt.Errorf("delete %s: %w", key, err)
		}
	}
	return nil
}

// Remote lists the objects stored for u.
func (m *Mirror) Remote(ctx context.Context, u workspace.Unit) ([]ObjectInfo, error) {
	keys, err := m.store.List(ctx, u.Name+"/")
	if err != nil {
		return nil, err
	}
	infos := make([]ObjectInfo, 0, len(keys))
	for _, key := range keys {
		info, err := m.store.Stat(ctx, key)
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}
