// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
	"github.com/xmidt-org/aurum/adb"
	"github.com/xmidt-org/aurum/artifact"
	"github.com/xmidt-org/aurum/gerrit"
	"github.com/xmidt-org/aurum/session"
	"github.com/xmidt-org/aurum/video"
	"github.com/xmidt-org/bascule/acquire"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var errBuildTopMissing = errors.New("ANDROID_BUILD_TOP not set. Have you sourced envsetup.sh?")

// gerrit fetcher kinds
const (
	commandFetcher = "command"
	httpFetcher    = "http"
)

type DeviceConfig struct {
	// ADBPath (Optional) defaults to adb.DefaultPath.
	ADBPath string
}

type PresubmitConfig struct {
	BaseURL    string
	MaxResults int
	ChunkSize  int
	Workers    int
	Timeout    time.Duration

	// User and Scope feed the credential exchange.
	User  string
	Scope string
}

type GerritConfig struct {
	// Fetcher is either "command" (the default) or "http".
	Fetcher string

	Command       string
	Authorization string
	Timeout       time.Duration
}

type VideoConfig struct {
	FFmpegPath string
	FrameRate  string
}

type WatchersConfig struct {
	AtestRoot       string
	RobolectricRoot string
}

type componentsIn struct {
	fx.In
	Viper    *viper.Viper
	Logger   *zap.Logger
	Measures artifact.Measures
}

type componentsOut struct {
	fx.Out
	Finder    session.DeviceFinder
	Connect   session.DeviceConnector
	Sources   session.SourceFactory
	Gerrit    session.PairDownloader
	Converter video.Converter
}

// provideComponents builds the collaborators the session drives.
func provideComponents() fx.Option {
	return fx.Options(
		artifact.ProvideMetrics(),
		fx.Provide(
			newComponents,
			provideListener,
			provideSessionConfig,
		),
	)
}

func newComponents(in componentsIn) (componentsOut, error) {
	var (
		devices   DeviceConfig
		presubmit PresubmitConfig
		g         GerritConfig
		v         VideoConfig
	)
	for key, target := range map[string]interface{}{
		"device":    &devices,
		"presubmit": &presubmit,
		"gerrit":    &g,
		"video":     &v,
	} {
		if err := in.Viper.UnmarshalKey(key, target); err != nil {
			return componentsOut{}, fmt.Errorf("failed to unmarshal %s config: %w", key, err)
		}
	}

	fetcher, err := newGerritFetcher(g)
	if err != nil {
		return componentsOut{}, err
	}

	return componentsOut{
		Finder: adb.NewFinder(adb.FinderConfig{
			Path:   devices.ADBPath,
			Serial: in.Viper.GetString(serialKey),
			Logger: in.Logger,
		}),
		Connect: func(serial string) (session.Device, error) {
			c, err := adb.NewClient(adb.ClientConfig{
				Serial: serial,
				Path:   devices.ADBPath,
				Logger: in.Logger.With(zap.String("serial", serial)),
			})
			if err != nil {
				return nil, err
			}
			return c, nil
		},
		Sources:   newSourceFactory(presubmit, &in.Measures, in.Logger),
		Gerrit:    gerrit.New(gerrit.Config{Fetcher: fetcher, Logger: in.Logger}),
		Converter: video.New(video.Config{FFmpegPath: v.FFmpegPath, FrameRate: v.FrameRate, Logger: in.Logger}),
	}, nil
}

// newSourceFactory shares one credential exchange between every presubmit
// invocation.
func newSourceFactory(config PresubmitConfig, measures *artifact.Measures, logger *zap.Logger) session.SourceFactory {
	creds := artifact.NewExchanger(artifact.ExchangerConfig{
		User:   config.User,
		Scope:  config.Scope,
		Logger: logger,
	})
	return func(ctx context.Context, invocationID, downloadDir string) (session.ArtifactSource, error) {
		f, err := artifact.NewFetcher(ctx, artifact.Config{
			InvocationID: invocationID,
			DownloadDir:  downloadDir,
			BaseURL:      config.BaseURL,
			MaxResults:   config.MaxResults,
			ChunkSize:    config.ChunkSize,
			Workers:      config.Workers,
			Timeout:      config.Timeout,
			Credentials:  creds,
			Measures:     measures,
			Logger:       logger.With(zap.String("invocationID", invocationID)),
		})
		if err != nil {
			return nil, err
		}
		return f, nil
	}
}

func newGerritFetcher(config GerritConfig) (gerrit.Fetcher, error) {
	switch config.Fetcher {
	case "", commandFetcher:
		return gerrit.NewCommandFetcher(gerrit.CommandFetcherConfig{
			Command: config.Command,
			Timeout: config.Timeout,
		}), nil
	case httpFetcher:
		var auth acquire.Acquirer = &acquire.DefaultAcquirer{}
		if len(config.Authorization) > 0 {
			fixed, err := acquire.NewFixedAuthAcquirer(config.Authorization)
			if err != nil {
				return nil, err
			}
			auth = fixed
		}
		return gerrit.NewHTTPFetcher(gerrit.HTTPFetcherConfig{
			Auth:    auth,
			Timeout: config.Timeout,
		}), nil
	}
	return nil, fmt.Errorf("unknown gerrit fetcher %q", config.Fetcher)
}

// provideListener binds the web UI port up front so the session knows the
// address it hands to the client.
func provideListener(v *viper.Viper) (net.Listener, error) {
	return net.Listen("tcp", fmt.Sprintf("localhost:%d", v.GetInt(portKey)))
}

func provideSessionConfig(v *viper.Viper, l net.Listener) (session.Config, error) {
	buildTop, err := homedir.Expand(v.GetString(androidBuildTopKey))
	if err != nil {
		return session.Config{}, err
	}
	if info, err := os.Stat(buildTop); len(buildTop) == 0 || err != nil || !info.IsDir() {
		return session.Config{}, errBuildTopMissing
	}

	var w WatchersConfig
	if err := v.UnmarshalKey("watchers", &w); err != nil {
		return session.Config{}, err
	}
	for _, p := range []*string{&w.AtestRoot, &w.RobolectricRoot} {
		if *p, err = homedir.Expand(*p); err != nil {
			return session.Config{}, err
		}
	}

	tempDir, err := os.MkdirTemp("", applicationName+"_")
	if err != nil {
		return session.Config{}, err
	}

	return session.Config{
		TempDir:         tempDir,
		BuildTop:        buildTop,
		ServerAddress:   serverAddress(l),
		AtestRoot:       w.AtestRoot,
		RobolectricRoot: w.RobolectricRoot,
	}, nil
}

func serverAddress(l net.Listener) string {
	return fmt.Sprintf("http://localhost:%d", port(l))
}

func port(l net.Listener) int {
	if addr, ok := l.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}
