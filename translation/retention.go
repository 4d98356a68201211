package translation

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// RetentionPolicy decides which debug images to prune.
type RetentionPolicy struct {
	// KeepLast keeps the N newest images (0 = disabled).
	KeepLast int
	// MaxAge prunes images older than this (0 = disabled).
	MaxAge time.Duration
	// DryRun logs what would be removed without deleting.
	DryRun bool
	// Interval is how often the job runs.
	Interval time.Duration
}

// Enabled reports whether any pruning rule is set.
func (p RetentionPolicy) Enabled() bool { return p.KeepLast > 0 || p.MaxAge > 0 }

// RetentionReport summarizes one pruning pass.
type RetentionReport struct {
	Removed    int
	Kept       int
	Errors     int
	BytesFreed int64
}

// StartDebugRetentionJob prunes dir on policy.Interval until ctx is done.
func StartDebugRetentionJob(ctx context.Context, dir string, policy RetentionPolicy) {
	if !policy.Enabled() {
		slog.Info("debug retention job disabled (no policy configured)", slog.String("dir", dir))
		return
	}
	if policy.Interval <= 0 {
		policy.Interval = time.Hour
	}
	slog.Info("debug retention job starting",
		slog.String("dir", dir),
		slog.Int("keep_last", policy.KeepLast),
		slog.Duration("max_age", policy.MaxAge),
		slog.Bool("dry_run", policy.DryRun),
		slog.Duration("interval", policy.Interval))

	PruneDebugDir(dir, policy, time.Now())

	ticker := time.NewTicker(policy.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("debug retention job stopped", slog.String("dir", dir))
			return
		case <-ticker.C:
			PruneDebugDir(dir, policy, time.Now())
		}
	}
}

type debugFile struct {
	path string
	mod  time.Time
	size int64
}

// PruneDebugDir runs a single pass over the PNG files in dir.
func PruneDebugDir(dir string, policy RetentionPolicy, now time.Time) RetentionReport {
	logger := slog.Default().With(
		slog.String("component", "debug_retention"),
		slog.String("dir", dir),
		slog.Bool("dry_run", policy.DryRun),
	)
	var rep RetentionReport

	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("failed to read debug dir", slog.Any("err", err))
			rep.Errors++
		}
		return rep
	}

	files := make([]debugFile, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".png") {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, debugFile{path: filepath.Join(dir, e.Name()), mod: fi.ModTime(), size: fi.Size()})
	}
	// Newest first.
	sort.Slice(files, func(i, j int) bool { return files[i].mod.After(files[j].mod) })

	for i, f := range files {
		expired := policy.MaxAge > 0 && now.Sub(f.mod) > policy.MaxAge
		overflow := policy.KeepLast > 0 && i >= policy.KeepLast
		if !expired && !overflow {
			rep.Kept++
			continue
		}
		if policy.DryRun {
			logger.Info("dry-run: would delete debug image", slog.String("path", f.path), slog.Int64("size_bytes", f.size))
			rep.Removed++
			rep.BytesFreed += f.size
			continue
		}
		if err := os.Remove(f.path); err != nil {
			logger.Warn("failed to delete debug image", slog.String("path", f.path), slog.Any("err", err))
			rep.Errors++
			continue
		}
		rep.Removed++
		rep.BytesFreed += f.size
	}

	if rep.Removed > 0 || rep.Errors > 0 {
		logger.Info("debug retention completed",
			slog.Int("removed", rep.Removed),
			slog.Int("kept", rep.Kept),
			slog.Int("errors", rep.Errors),
			slog.Int64("bytes_freed", rep.BytesFreed))
	}
	return rep
}
