/**
 * Copyright 2021 Comcast Cable Communications Management, LLC
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

package auth

import (
	"github.com/justinas/alice"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type tokenStoreIn struct {
	fx.In
	Viper  *viper.Viper
	Logger *zap.Logger
}

type enforcerIn struct {
	fx.In
	Store             *TokenStore
	ValidationOutcome *prometheus.CounterVec `name:"auth_validation"`
}

type ChainIn struct {
	fx.In
	Logger   *zap.Logger
	Enforcer *Enforcer
}

type ChainOut struct {
	fx.Out

	// Open only attaches the request logger.
	Open alice.Chain `name:"open_chain"`

	// Protected additionally requires the access token.
	Protected alice.Chain `name:"protected_chain"`
}

// Provide builds the token store, the enforcer and the chains of both route
// groups.
func Provide() fx.Option {
	return fx.Options(
		ProvideMetrics(),
		fx.Provide(
			func(in tokenStoreIn) (*TokenStore, error) {
				return NewTokenStore(TokenConfig{
					Path:   in.Viper.GetString("tokenPath"),
					Logger: in.Logger,
				})
			},
			func(in enforcerIn) *Enforcer {
				return NewEnforcer(in.Store.Token(), in.ValidationOutcome)
			},
			func(in ChainIn) ChainOut {
				setLogger := SetLogger(in.Logger)
				return ChainOut{
					Open:      alice.New(setLogger),
					Protected: alice.New(setLogger, in.Enforcer.Constructor()),
				}
			},
		),
	)
}
