// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"sync"

	"github.com/xmidt-org/aurum/command"
	"github.com/xmidt-org/bascule/acquire"
	"github.com/xmidt-org/sallust"
	"go.uber.org/zap"
)

// DefaultScope is the OAuth2 scope of the build API.
const DefaultScope = "https://www.googleapis.com/auth/androidbuild.internal"

const (
	defaultDomain   = "google.com"
	defaultExchange = "stubby"
)

var tokenPattern = regexp.MustCompile(`oauth2_token: "(.*)"`)

// Credentials produce the Authorization header value of build API requests
// and can be refreshed when the API rejects them.
type Credentials interface {
	acquire.Acquirer
	Refresh(context.Context) error
}

type ExchangerConfig struct {
	// User (Optional) defaults to $USER.
	User string

	// Domain (Optional) defaults to google.com.
	Domain string

	// Scope (Optional) defaults to DefaultScope.
	Scope string

	// Command (Optional) is the exchange executable, stubby by default.
	Command string

	// Executor (Optional) defaults to command.Exec.
	Executor command.Executor

	Logger *zap.Logger
}

// Exchanger obtains OAuth2 tokens by running the corp login exchange and
// scraping the token out of its text output.
type Exchanger struct {
	config ExchangerConfig

	lock  sync.RWMutex
	token string
}

func NewExchanger(config ExchangerConfig) *Exchanger {
	if len(config.User) == 0 {
		config.User = os.Getenv("USER")
	}
	if len(config.Domain) == 0 {
		config.Domain = defaultDomain
	}
	if len(config.Scope) == 0 {
		config.Scope = DefaultScope
	}
	if len(config.Command) == 0 {
		config.Command = defaultExchange
	}
	if config.Executor == nil {
		config.Executor = command.Exec
	}
	if config.Logger == nil {
		config.Logger = sallust.Default()
	}
	return &Exchanger{config: config}
}

func (e *Exchanger) Email() string {
	return fmt.Sprintf("%s@%s", e.config.User, e.config.Domain)
}

// Refresh runs the exchange and replaces the current token.  A failed exchange
// leaves the previous token in place.
func (e *Exchanger) Refresh(ctx context.Context) error {
	email := e.Email()
	request := fmt.Sprintf(
		`target { name: "%s" } target_credential{ type: OAUTH2_TOKEN oauth2_attributes { scope: "%s" } }`,
		email, e.config.Scope,
	)

	e.config.Logger.Info("refreshing build API token", zap.String("user", email))
	out, err := e.config.Executor(ctx, e.config.Command, "call", "blade:sso", "CorpLogin.Exchange", "--proto2", request)
	if err != nil {
		e.config.Logger.Error("credential exchange failed, make sure your corp credentials are fresh", zap.Error(err))
		return fmt.Errorf(errWrappedFmt, errAuthAcquireFailure, err.Error())
	}

	m := tokenPattern.FindSubmatch(out)
	if m == nil || len(m[1]) == 0 {
		return ErrTokenNotFound
	}

	e.lock.Lock()
	e.token = string(m[1])
	e.lock.Unlock()
	return nil
}

func (e *Exchanger) Acquire() (string, error) {
	e.lock.RLock()
	defer e.lock.RUnlock()
	if len(e.token) == 0 {
		return "", ErrTokenNotFound
	}
	return "Bearer " + e.token, nil
}
