// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

// Package device implements the golden watcher for artifacts written on an
// attached device.  Artifacts are pulled to the local machine and then
// deleted from the device so a later refresh never ingests them twice.
package device

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/xmidt-org/aurum/golden"
	"github.com/xmidt-org/sallust"
	"go.uber.org/zap"
)

// DefaultSearchPath is where test apps write their actual artifacts.
const DefaultSearchPath = "/data/user/0/"

var (
	ErrNilRunner = errors.New("device runner is required")
	ErrDirEmpty  = errors.New("watcher directory is required")
)

// Runner executes a device command such as "shell ..." or "pull ...".
type Runner interface {
	Run(ctx context.Context, args ...string) (string, error)
}

type Config struct {
	// Dir receives the pulled artifacts.
	Dir string

	Runner Runner

	// SearchPath is the device directory searched for actual artifacts.
	// (Optional) Defaults to DefaultSearchPath.
	SearchPath string

	// Logger (Optional) defaults to sallust.Default().
	Logger *zap.Logger
}

type Watcher struct {
	*golden.Cache
	dir        string
	searchPath string
	runner     Runner
	logger     *zap.Logger
}

func New(config Config) (*Watcher, error) {
	if config.Runner == nil {
		return nil, ErrNilRunner
	}
	if len(config.Dir) == 0 {
		return nil, ErrDirEmpty
	}
	if len(config.SearchPath) == 0 {
		config.SearchPath = DefaultSearchPath
	}
	if config.Logger == nil {
		config.Logger = sallust.Default()
	}
	if err := os.MkdirAll(config.Dir, 0o755); err != nil {
		return nil, err
	}

	return &Watcher{
		Cache:      golden.NewCache(),
		dir:        config.Dir,
		searchPath: config.SearchPath,
		runner:     config.Runner,
		logger:     config.Logger,
	}, nil
}

func (w *Watcher) Dir() string { return w.dir }

func (w *Watcher) Type() golden.WatcherType { return golden.DeviceWatcher }

// Refresh finds every actual artifact on the device, pulls it, removes it
// from the device and ingests it.  Companion videos follow the same
// pull-then-remove contract.
func (w *Watcher) Refresh(ctx context.Context) error {
	out, err := w.runner.Run(ctx, "shell", fmt.Sprintf("find %s -type f -name '*.actual.json'", w.searchPath))
	if err != nil {
		return fmt.Errorf("%w: %v", golden.ErrBackendUnavailable, err)
	}

	for _, line := range strings.Split(out, "\n") {
		remote := strings.TrimSpace(line)
		if len(remote) == 0 {
			continue
		}

		local := filepath.Join(w.dir, localName(remote))
		if err := w.pull(ctx, remote, local); err != nil {
			return err
		}

		g, err := golden.Load(remote, local)
		if err != nil {
			return err
		}

		if len(g.VideoLocation) > 0 {
			if err := w.pullVideo(ctx, g); err != nil {
				return err
			}
		}

		w.Put(g)
		w.logger.Debug("ingested device golden", zap.String("remote", remote), zap.String("id", g.ID))
	}
	return nil
}

func (w *Watcher) pullVideo(ctx context.Context, g golden.CachedGolden) error {
	local, err := golden.SafeJoin(w.dir, g.VideoLocation)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return err
	}
	return w.pull(ctx, path.Join(g.DeviceLocalPath, g.VideoLocation), local)
}

// pull copies remote to local and then deletes remote from the device.
func (w *Watcher) pull(ctx context.Context, remote, local string) error {
	if _, err := w.runner.Run(ctx, "pull", remote, local); err != nil {
		return fmt.Errorf("%w: pull %s: %v", golden.ErrBackendUnavailable, remote, err)
	}
	if _, err := w.runner.Run(ctx, "shell", "rm", remote); err != nil {
		return fmt.Errorf("%w: rm %s: %v", golden.ErrBackendUnavailable, remote, err)
	}
	return nil
}

// localName keeps the remote base name and extension and inserts the hash of
// the full remote path so identically named artifacts from different apps do
// not collide.
func localName(remote string) string {
	base := path.Base(remote)
	ext := path.Ext(base)
	return fmt.Sprintf("%s_%s%s", strings.TrimSuffix(base, ext), golden.Hash(remote), ext)
}
