// Package scheduler runs incremental backups on an interval and whenever the
// watched database file changes.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"

	"github.com/ramonehamilton/sqlite-incbackup/internal/incremental"
	"github.com/ramonehamilton/sqlite-incbackup/internal/pagesource"
)

// Config holds configuration for the backup scheduler.
type Config struct {
	// Interval is how often to run backups. Zero disables periodic backups.
	Interval time.Duration

	// WatchPath is the database file to watch for changes. Writes to it or
	// to its -wal file trigger a backup. Empty disables watching.
	WatchPath string

	// MinInterval is the minimum time between change-triggered backups.
	// Changes arriving sooner are folded into one deferred backup.
	// Default: 5 seconds
	MinInterval time.Duration

	// StartImmediately runs a backup immediately when the scheduler starts.
	StartImmediately bool

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// OnBackupComplete is called after each backup attempt (success or failure).
	OnBackupComplete func(stats *incremental.Stats, err error)
}

// DefaultConfig returns a scheduler config with hourly backups.
func DefaultConfig() Config {
	return Config{
		Interval:    time.Hour,
		MinInterval: 5 * time.Second,
	}
}

// Scheduler manages automatic backups of one database into one Backup Unit.
type Scheduler struct {
	engine  incremental.Engine
	source  pagesource.Source
	config  Config
	logger  *slog.Logger
	limiter *rate.Limiter
	trigger chan struct{}

	mu           sync.RWMutex
	running      bool
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	startedAt    time.Time
	lastBackup   time.Time
	lastError    error
	lastStats    *incremental.Stats
	backupCount  int
	failureCount int
}

// New creates a scheduler that backs up source with engine.
func New(engine incremental.Engine, source pagesource.Source, config Config) (*Scheduler, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if source == nil {
		return nil, fmt.Errorf("source is required")
	}
	if config.Interval < 0 {
		return nil, fmt.Errorf("interval cannot be negative")
	}
	if config.Interval == 0 && config.WatchPath == "" {
		return nil, fmt.Errorf("either an interval or a watch path is required")
	}
	if config.MinInterval <= 0 {
		config.MinInterval = 5 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Scheduler{
		engine:  engine,
		source:  source,
		config:  config,
		logger:  config.Logger,
		limiter: rate.NewLimiter(rate.Every(config.MinInterval), 1),
		trigger: make(chan struct{}, 1),
	}, nil
}

// Start starts the scheduler. It returns an error if the scheduler is
// already running or the watch cannot be set up.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}

	var watcher *fsnotify.Watcher
	if s.config.WatchPath != "" {
		var err error
		watcher, err = fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("failed to create file watcher: %w", err)
		}
		// The -wal file comes and goes, so watch the directory.
		if err := watcher.Add(filepath.Dir(s.config.WatchPath)); err != nil {
			_ = watcher.Close()
			return fmt.Errorf("failed to watch database directory: %w", err)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.startedAt = time.Now()

	if s.config.StartImmediately {
		s.queue()
	}

	s.wg.Add(1)
	go s.run(ctx, watcher)

	s.logger.Info("Backup scheduler started",
		"unit", s.engine.Unit().String(),
		"interval", s.config.Interval,
		"watch", s.config.WatchPath)
	return nil
}

// Stop stops the scheduler and blocks until the current backup (if any)
// completes.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is not running")
	}
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()

	s.mu.Lock()
	s.running = false
	s.cancel = nil
	s.mu.Unlock()

	s.logger.Info("Backup scheduler stopped", "unit", s.engine.Unit().String())
	return nil
}

// Trigger requests an immediate backup without affecting the schedule.
// Requests made while one is already pending are merged.
func (s *Scheduler) Trigger() error {
	s.mu.RLock()
	running := s.running
	s.mu.RUnlock()

	if !running {
		return fmt.Errorf("scheduler is not running")
	}
	s.queue()
	return nil
}

func (s *Scheduler) queue() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// run is the main scheduler loop. Backups run on this goroutine only.
func (s *Scheduler) run(ctx context.Context, watcher *fsnotify.Watcher) {
	defer s.wg.Done()

	var tick <-chan time.Time
	if s.config.Interval > 0 {
		ticker := time.NewTicker(s.config.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	var (
		events  <-chan fsnotify.Event
		errs    <-chan error
		pending *time.Timer
		fire    <-chan time.Time
	)
	if watcher != nil {
		defer func() {
			if err := watcher.Close(); err != nil {
				s.logger.Warn("Failed to close file watcher", "error", err)
			}
		}()
		events, errs = watcher.Events, watcher.Errors
	}
	defer func() {
		if pending != nil {
			pending.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			s.runBackup(ctx, "interval")
		case <-s.trigger:
			s.runBackup(ctx, "trigger")
		case <-fire:
			fire = nil
			s.runBackup(ctx, "change")
		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if !s.relevant(event) || fire != nil {
				continue
			}
			delay := s.limiter.Reserve().Delay()
			if delay == 0 {
				s.runBackup(ctx, "change")
				continue
			}
			pending = time.NewTimer(delay)
			fire = pending.C
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			s.logger.Warn("File watcher error", "error", err)
		}
	}
}

// relevant reports whether event modified the database or its WAL.
func (s *Scheduler) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return false
	}
	name := filepath.Clean(event.Name)
	db := filepath.Clean(s.config.WatchPath)
	return name == db || name == db+"-wal"
}

// runBackup executes a backup and updates statistics.
func (s *Scheduler) runBackup(ctx context.Context, reason string) {
	s.logger.Debug("Running scheduled backup", "reason", reason)
	stats, err := s.engine.Backup(ctx, s.source)

	s.mu.Lock()
	s.lastBackup = time.Now()
	s.lastError = err
	if err != nil {
		s.failureCount++
	} else {
		s.backupCount++
		s.lastStats = stats
	}
	s.mu.Unlock()

	if s.config.OnBackupComplete != nil {
		s.config.OnBackupComplete(stats, err)
	}
}

// IsRunning returns whether the scheduler is currently running.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Status returns the current scheduler status.
func (s *Scheduler) Status() *Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var nextBackup time.Time
	if s.running && s.config.Interval > 0 {
		from := s.lastBackup
		if from.IsZero() {
			from = s.startedAt
		}
		nextBackup = from.Add(s.config.Interval)
	}

	var uptime time.Duration
	if s.running {
		uptime = time.Since(s.startedAt)
	}

	return &Status{
		Running:      s.running,
		Interval:     s.config.Interval,
		Watching:     s.running && s.config.WatchPath != "",
		LastBackup:   s.lastBackup,
		NextBackup:   nextBackup,
		BackupCount:  s.backupCount,
		FailureCount: s.failureCount,
		LastError:    s.lastError,
		LastStats:    s.lastStats,
		Uptime:       uptime,
	}
}

// Status contains information about the scheduler state.
type Status struct {
	Running      bool
	Interval     time.Duration
	Watching     bool
	LastBackup   time.Time
	NextBackup   time.Time
	BackupCount  int
	FailureCount int
	LastError    error
	LastStats    *incremental.Stats
	Uptime       time.Duration
}

// String returns a human-readable representation of the scheduler status.
func (s *Status) String() string {
	if !s.Running {
		return "Scheduler: Stopped"
	}

	status := "Scheduler: Running\n"
	if s.Interval > 0 {
		status += fmt.Sprintf("  Interval: %s\n", s.Interval)
	}
	if s.Watching {
		status += "  Watching: yes\n"
	}
	status += fmt.Sprintf("  Total Backups: %d\n", s.BackupCount)
	status += fmt.Sprintf("  Failures: %d\n", s.FailureCount)

	if !s.LastBackup.IsZero() {
		status += fmt.Sprintf("  Last Backup: %s\n", s.LastBackup.Format(time.RFC3339))
	}
	if s.LastStats != nil {
		status += fmt.Sprintf("  Last Pages Written: %d of %d\n", s.LastStats.PagesWritten, s.LastStats.PagesScanned)
	}

	if !s.NextBackup.IsZero() {
		status += fmt.Sprintf("  Next Backup: %s\n", s.NextBackup.Format(time.RFC3339))
		timeUntil := time.Until(s.NextBackup)
		if timeUntil > 0 {
			status += fmt.Sprintf("  Time Until Next: %s\n", timeUntil.Round(time.Second))
		}
	}

	if s.LastError != nil {
		status += fmt.Sprintf("  Last Error: %v\n", s.LastError)
	}

	return status
}
