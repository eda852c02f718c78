// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

// Package command runs local processes on behalf of the collaborators that
// shell out (adb, credential exchange, gob-curl, ffmpeg).
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
)

// ErrNonZeroExit is wrapped by Exec when a process exits unsuccessfully.
var ErrNonZeroExit = errors.New("command exited with a non-zero status")

// Executor runs name with args and returns its standard output.
type Executor func(ctx context.Context, name string, args ...string) ([]byte, error)

// Exec is the default Executor.  Standard error is folded into the returned
// error so callers can log a single value.
func Exec(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return stdout.Bytes(), fmt.Errorf("%w: %s %s: exit %d: %s",
			ErrNonZeroExit, name, strings.Join(args, " "), exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
	}
	if err != nil {
		return stdout.Bytes(), fmt.Errorf("failed to run %s: %w", name, err)
	}
	return stdout.Bytes(), nil
}

// Recorder is an Executor double that records invocations and answers with
// canned output.  It is exported for use by tests in other packages.
type Recorder struct {
	lock    sync.Mutex
	Calls   [][]string
	Respond func(name string, args []string) ([]byte, error)
}

// Exec records the invocation and delegates to Respond.
func (r *Recorder) Exec(_ context.Context, name string, args ...string) ([]byte, error) {
	call := append([]string{name}, args...)
	r.lock.Lock()
	r.Calls = append(r.Calls, call)
	r.lock.Unlock()
	if r.Respond == nil {
		return nil, nil
	}
	return r.Respond(name, args)
}
