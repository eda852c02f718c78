// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package factory

import (
	"context"
	"errors"
	"fmt"

	"github.com/xmidt-org/aurum/golden"
	"github.com/xmidt-org/aurum/golden/atest"
	"github.com/xmidt-org/aurum/golden/device"
	"github.com/xmidt-org/aurum/golden/presubmit"
	"github.com/xmidt-org/aurum/golden/robolectric"
	"github.com/xmidt-org/sallust"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	ErrRunnerRequired  = errors.New("device watchers require a device runner")
	ErrUnsupportedType = errors.New("unsupported watcher type")
)

type Config struct {
	Type golden.WatcherType

	// Dir is where the watcher materializes local copies.
	Dir string

	// Root is the local search root of atest and robolectric watchers.
	Root string

	// DownloadDir is used by presubmit watchers.
	DownloadDir string

	// Runner is used by device watchers.
	Runner device.Runner

	Logger *zap.Logger
}

// Func builds watchers.  It is what the session depends on so tests can
// substitute their own.
type Func func(context.Context, Config) (golden.Watcher, error)

func Provide() fx.Option {
	return fx.Provide(
		func() Func { return New },
	)
}

// New builds the watcher selected by config.Type.  Watchers that discover
// artifacts on their own run one initial refresh before they are returned.
func New(ctx context.Context, config Config) (golden.Watcher, error) {
	if config.Logger == nil {
		config.Logger = sallust.Default()
	}
	logger := config.Logger.With(zap.Stringer("watcher", config.Type))

	var (
		w   golden.Watcher
		err error
	)
	switch config.Type {
	case golden.DeviceWatcher:
		if config.Runner == nil {
			return nil, ErrRunnerRequired
		}
		w, err = device.New(device.Config{Dir: config.Dir, Runner: config.Runner, Logger: logger})
	case golden.AtestWatcher:
		w, err = atest.New(atest.Config{Dir: config.Dir, Root: config.Root, Logger: logger})
	case golden.RobolectricWatcher:
		w, err = robolectric.New(robolectric.Config{Dir: config.Dir, Root: config.Root, Logger: logger})
	case golden.PresubmitWatcher:
		p, err := presubmit.New(presubmit.Config{Dir: config.Dir, DownloadDir: config.DownloadDir, Logger: logger})
		if err != nil {
			return nil, err
		}
		return p, nil
	case golden.EmptyWatcher:
		return golden.NewEmpty(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, config.Type)
	}
	if err != nil {
		return nil, err
	}

	logger.Info("running initial discovery", zap.String("dir", w.Dir()))
	if err := w.Refresh(ctx); err != nil {
		return nil, err
	}
	return w, nil
}
