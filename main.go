/**
 * Copyright 2020 Comcast Cable Communications Management, LLC
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/xmidt-org/aurum/auth"
	"github.com/xmidt-org/aurum/golden/factory"
	"github.com/xmidt-org/aurum/session"
	"github.com/xmidt-org/candlelight"
	"github.com/xmidt-org/touchstone"
	_ "go.uber.org/automaxprocs"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const applicationName = "aurum"

var (
	GitCommit = "undefined"
	Version   = "undefined"
	BuildTime = "undefined"
)

func main() {
	v, logger, err := setup(os.Args[1:])
	switch {
	case errors.Is(err, pflag.ErrHelp):
		return
	case err != nil:
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	app := fx.New(
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger}
		}),
		fx.Supply(logger, v),
		touchstone.Provide(),
		provideMetrics(),
		auth.Provide(),
		factory.Provide(),
		provideComponents(),
		session.Provide(),
		session.ProvideHandlers(),
		fx.Provide(
			candlelight.New,
			func(v *viper.Viper) (candlelight.Config, error) {
				var config candlelight.Config
				err := v.UnmarshalKey("tracing", &config)
				if err != nil {
					return candlelight.Config{}, err
				}
				config.ApplicationName = applicationName
				return config, nil
			},
			BuildPrimaryRoutes,
		),
		fx.Invoke(
			runServer,
			announce,
			preselectMode,
		),
	)

	if err := app.Err(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	app.Run()
}

type serverIn struct {
	fx.In
	Lifecycle fx.Lifecycle
	Listener  net.Listener
	Handler   http.Handler
	Config    session.Config
	Logger    *zap.Logger
}

// runServer serves the web UI on the bound listener.  The session's temporary
// directory is removed on shutdown.
func runServer(in serverIn) {
	server := &http.Server{
		Handler:  in.Handler,
		ErrorLog: zap.NewStdLog(in.Logger),
	}
	in.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				err := server.Serve(in.Listener)
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					in.Logger.Error("server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return multierr.Append(
				server.Shutdown(ctx),
				os.RemoveAll(in.Config.TempDir),
			)
		},
	})
}

type announceIn struct {
	fx.In
	Lifecycle fx.Lifecycle
	Viper     *viper.Viper
	Listener  net.Listener
	Store     *auth.TokenStore
	Logger    *zap.Logger
}

// announce prints the address the web UI has to be opened with.
func announce(in announceIn) {
	in.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			u := clientURL(in.Viper.GetString(clientURLKey), in.Store.Token(), port(in.Listener))
			fmt.Fprintf(os.Stdout, "To use the golden service, open:\n\n  %s\n\n", u)
			in.Logger.Info("golden service started",
				zap.String("address", serverAddress(in.Listener)),
				zap.String("token_path", in.Store.Path()),
			)
			return nil
		},
	})
}

func clientURL(base, token string, port int) string {
	q := url.Values{}
	q.Set("token", token)
	q.Set("port", strconv.Itoa(port))
	return base + "?" + q.Encode()
}

type preselectIn struct {
	fx.In
	Lifecycle fx.Lifecycle
	Viper     *viper.Viper
	Service   session.S
	Logger    *zap.Logger
}

// preselectMode activates the mode named on the command line once the server
// is up.  A failure is only logged, the client can still pick another mode.
func preselectMode(in preselectIn) {
	mode := in.Viper.GetString(modeKey)
	if len(mode) == 0 {
		return
	}
	in.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				goldens, err := in.Service.SelectMode(context.Background(), mode)
				if err != nil {
					in.Logger.Error("failed to preselect mode", zap.String("mode", mode), zap.Error(err))
					return
				}
				in.Logger.Info("mode preselected", zap.String("mode", mode), zap.Int("goldens", len(goldens)))
			}()
			return nil
		},
	})
}
