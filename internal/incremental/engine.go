// Package incremental implements page-level incremental backup and restore
// of SQLite databases.
//
// A Backup Unit is a fingerprint manifest plus a backup image stored in a
// workspace directory under a logical name. Backup walks the database pages
// in order and rewrites only the image blocks whose fingerprint changed since
// the previous run. Restore refuses to touch the destination unless the
// manifest matches its own meta-fingerprint and the reference database's
// first page matches the manifest.
package incremental

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ramonehamilton/sqlite-incbackup/internal/fingerprint"
	"github.com/ramonehamilton/sqlite-incbackup/internal/pagesource"
	"github.com/ramonehamilton/sqlite-incbackup/internal/workspace"
)

// Version selects an engine implementation.
type Version int

const (
	VersionV1 Version = 1

	// VersionLatest is used when no version is configured.
	VersionLatest = VersionV1
)

func (v Version) String() string {
	return fmt.Sprintf("v%d", int(v))
}

// ParseVersion parses "v1" or "1". The empty string yields VersionLatest.
func ParseVersion(s string) (Version, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return VersionLatest, nil
	case "1", "v1":
		return VersionV1, nil
	default:
		return 0, fmt.Errorf("unknown engine version %q", s)
	}
}

// Engine is the stable contract shared by every engine version. An Engine
// is bound to one Backup Unit. Operations are synchronous; callers must not
// run them concurrently on the same Engine.
type Engine interface {
	// Backup diffs src against the manifest and writes changed pages to the image.
	Backup(ctx context.Context, src pagesource.Source) (*Stats, error)

	// Restore checks the manifest and ref's first page, then replaces dst
	// with the backup image.
	Restore(ctx context.Context, dst pagesource.Restorer, ref pagesource.Source) error

	// Clear deletes the manifest and the image.
	Clear(ctx context.Context) error

	// Verify checks the Backup Unit on disk without a live database.
	Verify(ctx context.Context) (*Report, error)

	Unit() workspace.Unit
	Version() Version
}

// Stats describes one backup run.
type Stats struct {
	PagesScanned  int
	PagesNew      int
	PagesChanged  int
	PagesWritten  int
	BytesWritten  int64
	ManifestSlots int
	Meta          fingerprint.Fingerprint
	Duration      time.Duration
}

// Report describes an offline verification.
type Report struct {
	Pages    int // Manifest page slots
	PageSize int
	Blocks   int64 // Whole pages in the image
	Meta     fingerprint.Fingerprint
}

// Operation names an engine operation in run records and metrics.
type Operation string

const (
	OpBackup  Operation = "backup"
	OpRestore Operation = "restore"
	OpClear   Operation = "clear"
	OpVerify  Operation = "verify"
)

// Run is the outcome of one operation, handed to a Recorder.
type Run struct {
	Workspace    string
	Name         string
	Operation    Operation
	EngineVer    Version
	StartedAt    time.Time
	Duration     time.Duration
	PagesScanned int
	PagesWritten int
	BytesWritten int64
	Meta         string
	Code         int
	Message      string
}

// Recorder persists run outcomes. Record errors are logged and never fail
// the operation.
type Recorder interface {
	Record(ctx context.Context, run Run) error
}

// Observer receives every operation outcome. stats is nil for operations
// other than backup and for failed backups that never started the walk.
type Observer interface {
	Observe(op Operation, stats *Stats, duration time.Duration, err error)
}

type options struct {
	logger   *slog.Logger
	recorder Recorder
	observer Observer
	lock     bool
	now      func() time.Time
}

// Option configures an Engine.
type Option func(*options)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithRecorder reports every operation to r.
func WithRecorder(r Recorder) Option {
	return func(o *options) {
		o.recorder = r
	}
}

// WithMetrics reports every operation to obs.
func WithMetrics(obs Observer) Option {
	return func(o *options) {
		o.observer = obs
	}
}

// WithoutLock disables the advisory lock on the Backup Unit.
func WithoutLock() Option {
	return func(o *options) {
		o.lock = false
	}
}

// New returns the engine implementation for version v bound to unit u.
// A nil hash uses XXH64.
func New(v Version, u workspace.Unit, hash fingerprint.HashFunc, opts ...Option) (Engine, error) {
	if err := u.Validate(); err != nil {
		return nil, err
	}
	if hash == nil {
		hash = fingerprint.XXHash64
	}

	o := options{
		logger: slog.Default(),
		lock:   true,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	switch v {
	case VersionV1:
		return newV1(u, hash, o), nil
	default:
		return nil, fmt.Errorf("unknown engine version %s", v)
	}
}
