// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package adb

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xmidt-org/aurum/command"
	"github.com/xmidt-org/sallust"
	"go.uber.org/zap"
)

// DefaultPath is the adb executable looked up on $PATH.
const DefaultPath = "adb"

var ErrSerialEmpty = errors.New("device serial is required")

// ClientConfig configures a Client bound to one device.
type ClientConfig struct {
	Serial string

	// Path (Optional) defaults to DefaultPath.
	Path string

	// Executor (Optional) defaults to command.Exec.
	Executor command.Executor

	// Logger (Optional) defaults to sallust.Default().
	Logger *zap.Logger
}

// Client runs adb commands against a single device.
type Client struct {
	serial string
	path   string
	exec   command.Executor
	logger *zap.Logger
}

func NewClient(config ClientConfig) (*Client, error) {
	if len(config.Serial) == 0 {
		return nil, ErrSerialEmpty
	}
	if len(config.Path) == 0 {
		config.Path = DefaultPath
	}
	if config.Executor == nil {
		config.Executor = command.Exec
	}
	if config.Logger == nil {
		config.Logger = sallust.Default()
	}

	return &Client{
		serial: config.Serial,
		path:   config.Path,
		exec:   config.Executor,
		logger: config.Logger.With(zap.String("serial", config.Serial)),
	}, nil
}

func (c *Client) Serial() string { return c.serial }

// Run executes "adb -s <serial> args..." and returns its standard output.
func (c *Client) Run(ctx context.Context, args ...string) (string, error) {
	c.logger.Debug("running adb command", zap.Strings("args", args))
	out, err := c.exec(ctx, c.path, append([]string{"-s", c.serial}, args...)...)
	if err != nil {
		return string(out), fmt.Errorf("adb %s: %w", strings.Join(args, " "), err)
	}
	return string(out), nil
}

// RunAsRoot restarts adbd as root.  It reports whether adbd runs as root
// once it returns.
func (c *Client) RunAsRoot(ctx context.Context) (bool, error) {
	out, err := c.Run(ctx, "root")
	if err != nil {
		return false, err
	}

	switch {
	case strings.Contains(out, "restarting adbd as root"):
		if _, err := c.Run(ctx, "wait-for-device"); err != nil {
			return false, err
		}
		return true, nil
	case strings.Contains(out, "adbd is already running as root"):
		return true, nil
	}

	c.logger.Warn("device refused to restart adbd as root", zap.String("output", strings.TrimSpace(out)))
	return false, nil
}
