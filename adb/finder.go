// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package adb

import (
	"context"
	"fmt"
	"strings"

	"github.com/xmidt-org/aurum/command"
	"github.com/xmidt-org/sallust"
	"go.uber.org/zap"
)

type FinderConfig struct {
	// Path (Optional) defaults to DefaultPath.
	Path string

	// Serial restricts discovery to a single device when set.
	Serial string

	// Executor (Optional) defaults to command.Exec.
	Executor command.Executor

	// Logger (Optional) defaults to sallust.Default().
	Logger *zap.Logger
}

// Finder discovers attached devices.  Discovery is a convenience: every
// failure is logged and the device is treated as absent.
type Finder struct {
	path   string
	serial string
	exec   command.Executor
	logger *zap.Logger
}

func NewFinder(config FinderConfig) *Finder {
	if len(config.Path) == 0 {
		config.Path = DefaultPath
	}
	if config.Executor == nil {
		config.Executor = command.Exec
	}
	if config.Logger == nil {
		config.Logger = sallust.Default()
	}
	return &Finder{
		path:   config.Path,
		serial: config.Serial,
		exec:   config.Executor,
		logger: config.Logger,
	}
}

// Devices maps the identity of every online device to its serial.  The
// identity is the product model, suffixed with the serial when two devices
// share a model.
func (f *Finder) Devices(ctx context.Context) map[string]string {
	out, err := f.exec(ctx, f.path, "devices")
	if err != nil {
		f.logger.Warn("failed to list devices", zap.Error(err))
		return map[string]string{}
	}

	var serials []string
	for _, s := range parseDevices(string(out)) {
		if len(f.serial) == 0 || s == f.serial {
			serials = append(serials, s)
		}
	}

	models := make(map[string][]string)
	var order []string
	for _, s := range serials {
		model, err := f.model(ctx, s)
		if err != nil {
			f.logger.Warn("failed to read device model", zap.String("serial", s), zap.Error(err))
			continue
		}
		if _, ok := models[model]; !ok {
			order = append(order, model)
		}
		models[model] = append(models[model], s)
	}

	result := make(map[string]string, len(serials))
	for _, model := range order {
		if group := models[model]; len(group) == 1 {
			result[model] = group[0]
			continue
		}
		for _, s := range models[model] {
			result[fmt.Sprintf("%s-%s", model, s)] = s
		}
	}
	return result
}

func (f *Finder) model(ctx context.Context, serial string) (string, error) {
	out, err := f.exec(ctx, f.path, "-s", serial, "shell", "getprop", "ro.product.model")
	if err != nil {
		return "", err
	}
	model := strings.TrimSpace(string(out))
	if len(model) == 0 {
		return "", fmt.Errorf("empty model for %s", serial)
	}
	return model, nil
}

// parseDevices returns the serials of the devices "adb devices" reports in
// the "device" state.
func parseDevices(out string) []string {
	var serials []string
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 || fields[1] != "device" {
			continue
		}
		serials = append(serials, fields[0])
	}
	return serials
}
