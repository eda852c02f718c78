// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

// Package presubmit implements the golden watcher for artifacts downloaded
// from a presubmit invocation.  It never discovers anything by itself: the
// caller downloads a test's artifacts and hands the file names to Ingest.
package presubmit

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xmidt-org/aurum/golden"
	"github.com/xmidt-org/sallust"
	"go.uber.org/zap"
)

var (
	ErrDirEmpty         = errors.New("watcher directory is required")
	ErrDownloadDirEmpty = errors.New("download directory is required")
)

// video companions of an artifact name, in order of preference
var videoGlobs = []string{"**/%s.actual*.mp4*", "**/%s.actual*.zip*"}

type Config struct {
	// Dir receives the decompressed artifacts.
	Dir string

	// DownloadDir is where the artifact fetcher stores downloads.
	DownloadDir string

	// Logger (Optional) defaults to sallust.Default().
	Logger *zap.Logger
}

type Watcher struct {
	*golden.Cache
	dir         string
	downloadDir string
	logger      *zap.Logger
}

func New(config Config) (*Watcher, error) {
	if len(config.Dir) == 0 {
		return nil, ErrDirEmpty
	}
	if len(config.DownloadDir) == 0 {
		return nil, ErrDownloadDirEmpty
	}
	if config.Logger == nil {
		config.Logger = sallust.Default()
	}
	if err := os.MkdirAll(config.Dir, 0o755); err != nil {
		return nil, err
	}

	return &Watcher{
		Cache:       golden.NewCache(),
		dir:         config.Dir,
		downloadDir: config.DownloadDir,
		logger:      config.Logger,
	}, nil
}

func (w *Watcher) Dir() string { return w.dir }

func (w *Watcher) Type() golden.WatcherType { return golden.PresubmitWatcher }

// Refresh does nothing.  Presubmit artifacts only arrive through Ingest.
func (w *Watcher) Refresh(context.Context) error { return nil }

// Ingest loads the JSON members of filenames, which are relative to the
// download directory, as goldens of testName.
func (w *Watcher) Ingest(ctx context.Context, filenames []string, testName string) error {
	for _, f := range filenames {
		if !strings.Contains(f, ".json") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		src, err := golden.SafeJoin(w.downloadDir, f)
		if err != nil {
			return err
		}
		name, ok := golden.ParseArtifactName(src)
		if !ok {
			w.logger.Debug("skipping file with unrecognized name", zap.String("path", src))
			continue
		}

		local := filepath.Join(w.dir, fmt.Sprintf("%s_%s.actual.json", testName, name.Hash))
		if err := golden.Materialize(src, local, name.Compressed); err != nil {
			return err
		}

		g, err := golden.Load(src, local)
		if err != nil {
			return err
		}
		g.GoldenName = testName

		if len(g.VideoLocation) > 0 {
			if err := w.copyVideo(name.Name, g.VideoLocation); err != nil {
				return err
			}
		}

		w.Put(g)
	}
	return nil
}

// copyVideo copies the first video companion named after the artifact.
// Goldens without one get no video.
func (w *Watcher) copyVideo(name, location string) error {
	var src string
	for _, pattern := range videoGlobs {
		matches, err := golden.Glob(w.downloadDir, fmt.Sprintf(pattern, golden.QuoteMeta(name)))
		if err != nil {
			return err
		}
		if len(matches) > 0 {
			src = matches[0]
			break
		}
	}
	if len(src) == 0 {
		w.logger.Debug("no video found", zap.String("name", name))
		return nil
	}

	dst, err := golden.SafeJoin(w.dir, location)
	if err != nil {
		return err
	}
	return golden.Materialize(src, dst, strings.HasSuffix(src, ".gz"))
}
