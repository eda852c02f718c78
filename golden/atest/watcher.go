// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package atest

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

const actualGlob = "**/*.actual*json*"

var ErrDirEmpty = errors.New("watcher directory is required")

// DefaultRoot is the directory atest writes the results of its latest run to.
func DefaultRoot() string {
	return fmt.Sprintf("/tmp/atest_result_%s/LATEST/", os.Getenv("USER"))
}

type Config struct {
	// Dir receives the decompressed artifacts.
	Dir string

	// Root is searched recursively for actual artifacts.
	// (Optional) Defaults to DefaultRoot().
	Root string

	// Logger (Optional) defaults to sallust.Default().
	Logger *zap.Logger
}

// Watcher ingests the actual artifacts of the latest atest run.
type Watcher struct {
	*golden.Cache
	dir    string
	root   string
	logger *zap.Logger
}

func New(config Config) (*Watcher, error) {
	if len(config.Dir) == 0 {
		return nil, ErrDirEmpty
	}
	if len(config.Root) == 0 {
		config.Root = DefaultRoot()
	}
	if config.Logger == nil {
		config.Logger = sallust.Default()
	}
	if err := os.MkdirAll(config.Dir, 0o755); err != nil {
		return nil, err
	}

	return &Watcher{
		Cache:  golden.NewCache(),
		dir:    config.Dir,
		root:   config.Root,
		logger: config.Logger,
	}, nil
}

func (w *Watcher) Dir() string { return w.dir }

func (w *Watcher) Type() golden.WatcherType { return golden.AtestWatcher }

func (w *Watcher) Refresh(ctx context.Context) error {
	if info, err := os.Stat(w.root); err != nil || !info.IsDir() {
		return fmt.Errorf("%w: atest results not found at %s", golden.ErrBackendUnavailable, w.root)
	}

	matches, err := golden.Glob(w.root, actualGlob)
	if err != nil {
		return fmt.Errorf("%w: %v", golden.ErrBackendUnavailable, err)
	}

	for _, m := range matches {
		if err := ctx.Err(); err != nil {
			return err
		}

		name, ok := golden.ParseArtifactName(m)
		if !ok {
			w.logger.Debug("skipping file with unrecognized name", zap.String("path", m))
			continue
		}

		local := filepath.Join(w.dir, fmt.Sprintf("%s_%s.actual.json", name.Name, name.Hash))
		if err := golden.Materialize(m, local, name.Compressed); err != nil {
			return err
		}

		g, err := golden.Load(m, local)
		if err != nil {
			return err
		}

		if len(g.VideoLocation) > 0 {
			if err := w.copyVideo(name.Name, g.VideoLocation); err != nil {
				return err
			}
		}

		w.Put(g)
	}
	return nil
}

func (w *Watcher) copyVideo(name, location string) error {
	matches, err := golden.Glob(w.root, fmt.Sprintf("**/%s.actual*.mp4*", golden.QuoteMeta(name)))
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		w.logger.Debug("no video found", zap.String("name", name))
		return nil
	}

	dst, err := golden.SafeJoin(w.dir, location)
	if err != nil {
		return err
	}
	return golden.Materialize(matches[0], dst, strings.HasSuffix(matches[0], ".gz"))
}
