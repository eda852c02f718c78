// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package gerrit

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/xmidt-org/aurum/command"
	"github.com/xmidt-org/bascule/acquire"
)

const (
	defaultCurl    = "gob-curl"
	defaultTimeout = 30 * time.Second
)

type CommandFetcherConfig struct {
	// Command (Optional) defaults to gob-curl.
	Command string

	// Timeout (Optional) bounds each fetch, 30 seconds by default.
	Timeout time.Duration

	// Executor (Optional) defaults to command.Exec.
	Executor command.Executor
}

// CommandFetcher shells out to an authenticated curl wrapper.
type CommandFetcher struct {
	command string
	timeout time.Duration
	exec    command.Executor
}

func NewCommandFetcher(config CommandFetcherConfig) *CommandFetcher {
	if len(config.Command) == 0 {
		config.Command = defaultCurl
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}
	if config.Executor == nil {
		config.Executor = command.Exec
	}
	return &CommandFetcher{
		command: config.Command,
		timeout: config.Timeout,
		exec:    config.Executor,
	}
}

func (f *CommandFetcher) Fetch(ctx context.Context, link string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	return f.exec(ctx, f.command, link)
}

type HTTPFetcherConfig struct {
	// HTTPClient (Optional) defaults to http.DefaultClient.
	HTTPClient *http.Client

	// Auth (Optional) adds an Authorization header to every request.
	Auth acquire.Acquirer

	Timeout time.Duration
}

// HTTPFetcher fetches content links directly, for Gerrit hosts reachable
// without the curl wrapper.
type HTTPFetcher struct {
	client  *http.Client
	auth    acquire.Acquirer
	timeout time.Duration
}

func NewHTTPFetcher(config HTTPFetcherConfig) *HTTPFetcher {
	if config.HTTPClient == nil {
		config.HTTPClient = http.DefaultClient
	}
	if config.Auth == nil {
		config.Auth = &acquire.DefaultAcquirer{}
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}
	return &HTTPFetcher{
		client:  config.HTTPClient,
		auth:    config.Auth,
		timeout: config.Timeout,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, link string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	r, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, err
	}
	if err := acquire.AddAuth(r, f.auth); err != nil {
		return nil, err
	}

	resp, err := f.client.Do(r)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gerrit responded with status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
