package observers

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// artifactSuffixes are the files the timeline and usage observers write.
var artifactSuffixes = []string{".jsonl", ".usage.json"}

// PurgeArtifacts deletes artifacts in dir last modified more than maxAge
// ago. Other files and subdirectories are left alone. It returns how many
// files were removed along with every error met on the way.
func PurgeArtifacts(dir string, maxAge time.Duration) (int, error) {
	if dir == "" || maxAge <= 0 {
		return 0, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	var errs []error
	for _, entry := range entries {
		stale, err := staleArtifact(entry, cutoff)
		if err != nil {
			errs = append(errs, err)
		}
		if !stale {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

func staleArtifact(entry fs.DirEntry, cutoff time.Time) (bool, error) {
	if !entry.Type().IsRegular() || !isArtifact(entry.Name()) {
		return false, nil
	}
	info, err := entry.Info()
	if err != nil {
		return false, err
	}
	return !info.ModTime().After(cutoff), nil
}

// RunRetention purges dir now and then every interval until ctx is done.
func RunRetention(ctx context.Context, dir string, maxAge, interval time.Duration, log *slog.Logger) {
	if dir == "" || maxAge <= 0 {
		return
	}
	if interval <= 0 {
		interval = time.Hour
	}
	if log == nil {
		log = slog.Default()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		switch n, err := PurgeArtifacts(dir, maxAge); {
		case err != nil && !errors.Is(err, fs.ErrNotExist):
			log.Warn("artifact_purge_failed", "dir", dir, "error", err.Error())
		case n > 0:
			log.Info("artifact_purged", "dir", dir, "removed", n)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func isArtifact(name string) bool {
	for _, suffix := range artifactSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}
