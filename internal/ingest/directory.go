// Package ingest collects answer sheet images from a local directory.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joseph-ayodele/exam-grader/constants"
	"github.com/joseph-ayodele/exam-grader/internal/pipeline"
)

type FileResult struct {
	Path string
	Err  string
}

type DirStats struct {
	Scanned   uint32
	Matched   uint32
	Succeeded uint32
	Failed    uint32
}

// ScanDirectory walks root, keeps files with an allowed image extension and
// reads them into uploads sorted by path. Unreadable files are reported in the
// results and skipped.
func ScanDirectory(ctx context.Context, root string, skipHidden bool) ([]pipeline.Upload, []FileResult, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, nil, DirStats{}, errors.New("root path is required")
	}

	var (
		uploads []pipeline.Upload
		results []FileResult
		stats   DirStats
	)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Scanned++
		if walkErr != nil {
			results = append(results, FileResult{Path: path, Err: walkErr.Error()})
			stats.Failed++
			return nil // continue walking
		}
		if skipHidden && path != root && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !constants.IsAllowedExt(filepath.Ext(path)) {
			return nil
		}
		stats.Matched++

		data, err := os.ReadFile(path)
		if err != nil {
			results = append(results, FileResult{Path: path, Err: err.Error()})
			stats.Failed++
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = filepath.Base(path)
		}
		uploads = append(uploads, pipeline.Upload{Filename: filepath.ToSlash(rel), Data: data})
		results = append(results, FileResult{Path: path})
		stats.Succeeded++
		return nil
	})
	if err != nil {
		return uploads, results, stats, fmt.Errorf("walk: %w", err)
	}

	sort.Slice(uploads, func(i, j int) bool { return uploads[i].Filename < uploads[j].Filename })
	return uploads, results, stats, nil
}

// IsHidden checks if a file or directory is hidden (starts with '.').
func IsHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
