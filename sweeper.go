package enrichaf

import (
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sweep statuses.
const (
	SweepCompleted = "completed"
	SweepSkipped   = "skipped"
	SweepError     = "error"
)

// SweepResult summarizes one retention pass.
type SweepResult struct {
	Status         string
	DeletedFolders int
	FreedBytes     int64
	DeletedNames   []string
	Err            error
}

// SweeperStatus is a snapshot of the background schedule.
type SweeperStatus struct {
	Running     bool
	CleanupDays int
	CleanupTime string
	NextCleanup time.Time
	ImagesDir   string
}

// RetentionSweeper deletes document image folders older than the
// configured retention window. It can be driven manually via Sweep or
// run on a daily schedule via Start. The root is read from the store
// on every pass, so a store that moved to its fallback location keeps
// getting swept.
type RetentionSweeper struct {
	store       *ImageStore
	days        int
	hour        int
	minute      int
	cleanupTime string
	logger      *zap.Logger

	mu      sync.Mutex
	running bool
	next    time.Time
	stop    chan struct{}
	done    chan struct{}
}

// NewRetentionSweeper builds a sweeper over the given store. A nil
// store gets one created from cfg. An invalid cleanup time falls back
// to the default with a warning.
func NewRetentionSweeper(cfg Config, store *ImageStore, logger *zap.Logger) *RetentionSweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	if store == nil {
		store = NewImageStore(cfg, logger)
	}

	hour, minute, err := parseCleanupTime(cfg.CleanupTime)
	cleanupTime := cfg.CleanupTime
	if err != nil {
		logger.Warn("invalid cleanup time, using default",
			zap.String("configured", cfg.CleanupTime),
			zap.String("default", DefaultCleanupTime),
			zap.Error(err))
		hour, minute, _ = parseCleanupTime(DefaultCleanupTime)
		cleanupTime = DefaultCleanupTime
	}

	return &RetentionSweeper{
		store:       store,
		days:        cfg.CleanupDays,
		hour:        hour,
		minute:      minute,
		cleanupTime: cleanupTime,
		logger:      logger,
	}
}

// Sweep removes every immediate subfolder of the images root whose
// modification time is older than the retention window. Folders that
// fail to delete are logged and skipped without aborting the pass.
func (s *RetentionSweeper) Sweep() SweepResult {
	root := s.store.Root()
	if _, err := os.Stat(root); os.IsNotExist(err) {
		s.logger.Debug("images directory missing, nothing to sweep",
			zap.String("dir", root))
		return SweepResult{Status: SweepSkipped}
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		s.logger.Error("reading images directory failed",
			zap.String("dir", root), zap.Error(err))
		return SweepResult{Status: SweepError, Err: err}
	}

	cutoff := time.Now().AddDate(0, 0, -s.days)
	result := SweepResult{Status: SweepCompleted}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			s.logger.Warn("stat failed during sweep",
				zap.String("folder", entry.Name()), zap.Error(err))
			continue
		}
		// ModTime stands in for the folder's creation time: Linux has
		// no portable birth-time stat, and a folder's mtime only moves
		// while images are still being written into it.
		if !info.ModTime().Before(cutoff) {
			continue
		}

		path := filepath.Join(root, entry.Name())
		size := folderSize(path)
		if err := os.RemoveAll(path); err != nil {
			s.logger.Warn("deleting expired folder failed",
				zap.String("folder", entry.Name()), zap.Error(err))
			continue
		}
		result.DeletedFolders++
		result.FreedBytes += size
		result.DeletedNames = append(result.DeletedNames, entry.Name())
	}

	s.logger.Info("retention sweep finished",
		zap.Int("deleted_folders", result.DeletedFolders),
		zap.Int64("freed_bytes", result.FreedBytes),
		zap.Int("retention_days", s.days))
	return result
}

// Start launches the schedule loop: one sweep immediately, then one
// every day at the configured time. Calling Start on a running
// sweeper is a no-op.
func (s *RetentionSweeper) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.next = s.nextRun(time.Now())
	s.mu.Unlock()

	go s.run()
	s.logger.Info("retention sweeper started",
		zap.String("cleanup_time", s.cleanupTime),
		zap.Int("retention_days", s.days))
}

// Stop terminates the schedule loop and waits for it to exit.
func (s *RetentionSweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stop)
	done := s.done
	s.mu.Unlock()

	<-done
	s.logger.Info("retention sweeper stopped")
}

// Status returns a snapshot of the schedule state.
func (s *RetentionSweeper) Status() SweeperStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SweeperStatus{
		Running:     s.running,
		CleanupDays: s.days,
		CleanupTime: s.cleanupTime,
		NextCleanup: s.next,
		ImagesDir:   s.store.Root(),
	}
}

func (s *RetentionSweeper) run() {
	defer close(s.done)

	// Startup pass catches folders that expired while the service was
	// down.
	s.Sweep()

	for {
		s.mu.Lock()
		next := s.nextRun(time.Now())
		s.next = next
		s.mu.Unlock()

		timer := time.NewTimer(time.Until(next))
		select {
		case <-timer.C:
			s.Sweep()
		case <-s.stop:
			timer.Stop()
			return
		}
	}
}

// nextRun computes the next occurrence of the configured wall-clock
// time strictly after now.
func (s *RetentionSweeper) nextRun(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), s.hour, s.minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// folderSize totals the file sizes under path. Errors are ignored so
// a partially unreadable folder still reports what it can.
func folderSize(path string) int64 {
	var total int64
	_ = filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			total += info.Size()
		}
		return nil
	})
	return total
}
