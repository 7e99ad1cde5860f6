package incremental

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/ramonehamilton/sqlite-incbackup/internal/fingerprint"
	"github.com/ramonehamilton/sqlite-incbackup/internal/manifest"
	"github.com/ramonehamilton/sqlite-incbackup/internal/pagesource"
	"github.com/ramonehamilton/sqlite-incbackup/internal/storage"
	"github.com/ramonehamilton/sqlite-incbackup/internal/workspace"
)

// v1 stores one fixed-size block per page in the image and one 8-byte
// fingerprint per page in the manifest.
type v1 struct {
	unit workspace.Unit
	hash fingerprint.HashFunc
	opts options

	mu  sync.Mutex
	fps manifest.List
}

func newV1(u workspace.Unit, hash fingerprint.HashFunc, o options) *v1 {
	return &v1{unit: u, hash: hash, opts: o}
}

func (e *v1) Unit() workspace.Unit { return e.unit }

func (e *v1) Version() Version { return VersionV1 }

// acquire takes the unit lock. A workspace that does not exist yet has
// nothing to protect, so no lock file is created for it.
func (e *v1) acquire() (func(), error) {
	if !e.opts.lock || !workspace.Exists(e.unit.Dir) {
		return func() {}, nil
	}
	l, err := workspace.Acquire(e.unit)
	if errors.Is(err, workspace.ErrLocked) {
		return nil, newError(KindLocked, err, "%s", e.unit)
	}
	if err != nil {
		return nil, newError(KindBackupInit, err, "lock %s", e.unit)
	}
	return func() {
		if err := l.Release(); err != nil {
			e.opts.logger.Warn("Failed to release backup lock", "unit", e.unit.String(), "error", err)
		}
	}, nil
}

// Backup implements Engine.
func (e *v1) Backup(ctx context.Context, src pagesource.Source) (stats *Stats, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := e.opts.now()
	defer func() { e.finish(ctx, OpBackup, start, stats, err) }()

	if err := workspace.EnsureDir(e.unit.Dir); err != nil {
		return nil, newError(KindBackupInit, err, "workspace")
	}
	release, err := e.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	fps, err := manifest.Load(e.unit)
	if err != nil {
		return nil, newError(KindManifestRead, err, "")
	}
	if len(fps) == 0 {
		fps = manifest.New()
	}
	e.fps = fps

	f, err := os.OpenFile(e.unit.ImagePath(), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, newError(KindBackupInit, err, "open image")
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = newError(KindBackupInit, cerr, "close image")
		}
	}()

	stats = &Stats{}
	w := pageWriter{f: f, stats: stats, log: e.opts.logger}
	walkErr := src.Pages(ctx, func(pgno int, data []byte) error {
		stats.PagesScanned++
		fp := fingerprint.Of(e.hash, data)

		switch {
		case pgno == len(e.fps):
			e.fps = append(e.fps, fp)
			stats.PagesNew++
		case pgno > len(e.fps) || pgno < 1:
			return newError(KindPageRead, nil, "page %d out of sequence after %d pages", pgno, len(e.fps)-1)
		case e.fps[pgno] != fp:
			e.fps[pgno] = fp
			stats.PagesChanged++
		default:
			return nil
		}
		return w.write(pgno, data)
	})
	w.flush()
	if walkErr != nil {
		if KindOf(walkErr) != KindUnknown {
			return stats, walkErr
		}
		return stats, newError(KindPageRead, walkErr, "page %d", stats.PagesScanned+1)
	}

	e.fps.Seal(e.hash)
	if err := manifest.Save(e.unit, e.fps); err != nil {
		return stats, newError(KindBackupInit, err, "save manifest")
	}
	stats.ManifestSlots = len(e.fps)
	stats.Meta = e.fps.Meta()
	return stats, nil
}

// pageWriter writes page blocks into the image and logs contiguous runs of
// written pages.
type pageWriter struct {
	f     *os.File
	stats *Stats
	log   *slog.Logger

	first, last int
}

func (w *pageWriter) write(pgno int, data []byte) error {
	off := int64(pgno-1) * int64(len(data))
	if _, err := w.f.WriteAt(data, off); err != nil {
		return newError(KindBackupInit, err, "write page %d", pgno)
	}
	w.stats.PagesWritten++
	w.stats.BytesWritten += int64(len(data))

	if w.last != 0 && pgno == w.last+1 {
		w.last = pgno
		return nil
	}
	w.flush()
	w.first, w.last = pgno, pgno
	return nil
}

func (w *pageWriter) flush() {
	if w.last == 0 {
		return
	}
	w.log.Debug("Wrote pages", "first", w.first, "last", w.last)
	w.first, w.last = 0, 0
}

// Restore implements Engine.
func (e *v1) Restore(ctx context.Context, dst pagesource.Restorer, ref pagesource.Source) (err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := e.opts.now()
	defer func() { e.finish(ctx, OpRestore, start, nil, err) }()

	release, err := e.acquire()
	if err != nil {
		return err
	}
	defer release()

	image := e.unit.ImagePath()
	if _, err := os.Stat(image); err != nil {
		if os.IsNotExist(err) {
			return newError(KindBackupMissing, nil, "%s", image)
		}
		return newError(KindBackupInit, err, "stat image")
	}

	fps, err := e.loadVerified()
	if err != nil {
		return err
	}
	e.fps = fps

	page, err := ref.Page(ctx, 1)
	switch {
	case errors.Is(err, pagesource.ErrNoPage):
		if fps.Pages() != 0 {
			return newError(KindIntegrityCheck, nil, "reference database has no first page")
		}
	case err != nil:
		return newError(KindPageRead, err, "reference page 1")
	default:
		want, ok := fps.Page(1)
		if !ok {
			return newError(KindIntegrityCheck, nil, "manifest records no pages")
		}
		if got := fingerprint.Of(e.hash, page); got != want {
			return newError(KindIntegrityCheck, nil, "reference page 1 fingerprint %s does not match manifest %s", got, want)
		}
	}

	if err := dst.RestoreFrom(ctx, image); err != nil {
		return newError(KindRestoreFailed, err, "")
	}
	e.opts.logger.Debug("Restored backup image", "unit", e.unit.String(), "pages", fps.Pages())
	return nil
}

// loadVerified loads the manifest strictly and checks its meta-fingerprint.
func (e *v1) loadVerified() (manifest.List, error) {
	fps, err := manifest.LoadStrict(e.unit)
	switch {
	case errors.Is(err, manifest.ErrNotFound):
		return nil, newError(KindIntegrityCheck, err, "")
	case errors.Is(err, manifest.ErrTruncated):
		return nil, newError(KindIntegrityCheck, err, "")
	case err != nil:
		return nil, newError(KindManifestRead, err, "")
	}
	if err := fps.Verify(e.hash); err != nil {
		return nil, newError(KindIntegrityCheck, err, "")
	}
	return fps, nil
}

// Clear implements Engine.
func (e *v1) Clear(ctx context.Context) (err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := e.opts.now()
	defer func() { e.finish(ctx, OpClear, start, nil, err) }()

	release, err := e.acquire()
	if err != nil {
		return err
	}
	defer release()

	e.fps = nil
	if err := manifest.Clear(e.unit); err != nil {
		return newError(KindUnknown, err, "")
	}
	for _, path := range append([]string{e.unit.ImagePath()}, e.unit.SidecarPaths()...) {
		if err := workspace.RemoveIfExists(path); err != nil {
			return newError(KindUnknown, err, "remove %s", path)
		}
	}
	return nil
}

// Verify implements Engine. Every image block backed by a manifest slot
// must hash to that slot and the image must pass PRAGMA quick_check.
func (e *v1) Verify(ctx context.Context) (report *Report, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := e.opts.now()
	defer func() { e.finish(ctx, OpVerify, start, nil, err) }()

	release, err := e.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	image := e.unit.ImagePath()
	st, err := os.Stat(image)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, newError(KindBackupMissing, nil, "%s", image)
		}
		return nil, newError(KindBackupInit, err, "stat image")
	}

	fps, err := e.loadVerified()
	if err != nil {
		return nil, err
	}
	report = &Report{Pages: fps.Pages(), Meta: fps.Meta()}
	if fps.Pages() == 0 {
		if st.Size() != 0 {
			return report, newError(KindIntegrityCheck, nil, "manifest is empty but image holds %d bytes", st.Size())
		}
		return report, nil
	}

	info, err := storage.ReadImageInfo(image)
	if err != nil {
		return report, newError(KindIntegrityCheck, err, "")
	}
	report.PageSize = info.Header.PageSize
	report.Blocks = info.Blocks()
	if report.Blocks < int64(fps.Pages()) {
		return report, newError(KindIntegrityCheck, nil, "image holds %d pages, manifest records %d", report.Blocks, fps.Pages())
	}

	if err := e.compareBlocks(image, info.Header.PageSize, fps); err != nil {
		return report, err
	}
	if err := storage.VerifyImage(image); err != nil {
		return report, newError(KindIntegrityCheck, err, "")
	}
	return report, nil
}

func (e *v1) compareBlocks(image string, pageSize int, fps manifest.List) error {
	f, err := os.Open(image)
	if err != nil {
		return newError(KindBackupInit, err, "open image")
	}
	defer f.Close()

	buf := make([]byte, pageSize)
	for pgno := 1; pgno <= fps.Pages(); pgno++ {
		if _, err := io.ReadFull(f, buf); err != nil {
			return newError(KindIntegrityCheck, err, "read image page %d", pgno)
		}
		if got := fingerprint.Of(e.hash, buf); got != fps[pgno] {
			return newError(KindIntegrityCheck, nil, "image page %d fingerprint %s does not match manifest %s", pgno, got, fps[pgno])
		}
	}
	return nil
}

// finish logs the outcome and reports it to the recorder and observer.
func (e *v1) finish(ctx context.Context, op Operation, start time.Time, stats *Stats, err error) {
	elapsed := e.opts.now().Sub(start)
	if stats != nil {
		stats.Duration = elapsed
	}

	logger := e.opts.logger.With("operation", string(op), "unit", e.unit.String())
	if err != nil {
		logger.Error("Backup operation failed", "code", Code(err), "error", err)
	} else if stats != nil {
		logger.Info("Backup complete",
			"pagesScanned", stats.PagesScanned,
			"pagesWritten", stats.PagesWritten,
			"bytesWritten", stats.BytesWritten,
			"meta", stats.Meta.String(),
			"duration", elapsed)
	} else {
		logger.Info("Backup operation complete", "duration", elapsed)
	}

	if e.opts.observer != nil {
		e.opts.observer.Observe(op, stats, elapsed, err)
	}
	if e.opts.recorder == nil {
		return
	}

	run := Run{
		Workspace: e.unit.Dir,
		Name:      e.unit.Name,
		Operation: op,
		EngineVer: VersionV1,
		StartedAt: start,
		Duration:  elapsed,
		Code:      Code(err),
	}
	if err != nil {
		run.Message = err.Error()
	}
	if stats != nil {
		run.PagesScanned = stats.PagesScanned
		run.PagesWritten = stats.PagesWritten
		run.BytesWritten = stats.BytesWritten
		if err == nil {
			run.Meta = stats.Meta.String()
		}
	}
	if err := e.opts.recorder.Record(ctx, run); err != nil {
		logger.Warn("Failed to record backup run", "error", fmt.Errorf("record %s: %w", op, err))
	}
}
