// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package robolectric

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xmidt-org/aurum/golden"
	"github.com/xmidt-org/sallust"
	"go.uber.org/zap"
)

const (
	// DefaultRoot is where local Robolectric runs write their output.
	DefaultRoot = "/tmp/motion/"

	actualGlob       = "**/*.actual.json"
	screenshotSuffix = ".screenshots.zip"
)

var ErrDirEmpty = errors.New("watcher directory is required")

type Config struct {
	// Dir receives the copied artifacts.
	Dir string

	// Root is searched recursively for actual artifacts.
	// (Optional) Defaults to DefaultRoot.
	Root string

	// Logger (Optional) defaults to sallust.Default().
	Logger *zap.Logger

	now func() time.Time
}

// Watcher ingests actual artifacts written by local Robolectric runs.  The
// run output is left in place, so every refresh copies it again under a
// fresh local name.
type Watcher struct {
	*golden.Cache
	dir    string
	root   string
	logger *zap.Logger
	now    func() time.Time
}

func New(config Config) (*Watcher, error) {
	if len(config.Dir) == 0 {
		return nil, ErrDirEmpty
	}
	if len(config.Root) == 0 {
		config.Root = DefaultRoot
	}
	if config.Logger == nil {
		config.Logger = sallust.Default()
	}
	if config.now == nil {
		config.now = time.Now
	}
	if err := os.MkdirAll(config.Dir, 0o755); err != nil {
		return nil, err
	}

	return &Watcher{
		Cache:  golden.NewCache(),
		dir:    config.Dir,
		root:   config.Root,
		logger: config.Logger,
		now:    config.now,
	}, nil
}

func (w *Watcher) Dir() string { return w.dir }

func (w *Watcher) Type() golden.WatcherType { return golden.RobolectricWatcher }

func (w *Watcher) Refresh(ctx context.Context) error {
	if info, err := os.Stat(w.root); err != nil || !info.IsDir() {
		return fmt.Errorf("%w: robolectric output not found at %s", golden.ErrBackendUnavailable, w.root)
	}

	matches, err := golden.Glob(w.root, actualGlob)
	if err != nil {
		return fmt.Errorf("%w: %v", golden.ErrBackendUnavailable, err)
	}

	stamp := golden.Hash(w.now().UTC().Format(time.RFC3339Nano))
	for _, m := range matches {
		if err := ctx.Err(); err != nil {
			return err
		}

		base := filepath.Base(m)
		ext := filepath.Ext(base)
		stem := strings.TrimSuffix(base, ext)
		local := filepath.Join(w.dir, fmt.Sprintf("copy_%s_%s%s", stem, stamp, ext))
		if err := golden.CopyFile(m, local); err != nil {
			return err
		}

		g, err := golden.Load(m, local)
		if err != nil {
			return err
		}

		if len(g.VideoLocation) > 0 {
			if err := w.copyScreenshots(g, stem); err != nil {
				return err
			}
		}

		w.Put(g)
	}
	return nil
}

// copyScreenshots copies <root>/<testClassName>/<name>.screenshots.zip next
// to the artifact when the run recorded one.
func (w *Watcher) copyScreenshots(g golden.CachedGolden, name string) error {
	src, err := golden.SafeJoin(w.root, filepath.Join(g.TestClassName, name+screenshotSuffix))
	if err != nil {
		return err
	}
	if info, err := os.Stat(src); err != nil || !info.Mode().IsRegular() {
		w.logger.Debug("no screenshots found", zap.String("path", src))
		return nil
	}

	dst, err := golden.SafeJoin(w.dir, g.VideoLocation)
	if err != nil {
		return err
	}
	return golden.CopyFile(src, dst)
}
