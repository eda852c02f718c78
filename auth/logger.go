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
	"net/http"
	"strings"

	"github.com/justinas/alice"
	"github.com/xmidt-org/sallust"
	"go.uber.org/zap"
)

// SetLogger creates an alice constructor that sets up a logger that can be
// used for all logging related to the current request.  The logger is added to
// the request's context.  Credentials never reach the log.
func SetLogger(logger *zap.Logger) alice.Constructor {
	return func(delegate http.Handler) http.Handler {
		return http.HandlerFunc(
			func(w http.ResponseWriter, r *http.Request) {
				logHeader := r.Header.Clone()
				if str := logHeader.Get("Authorization"); str != "" {
					logHeader.Del("Authorization")
					logHeader.Set("Authorization-Type", strings.Split(str, " ")[0])
				}
				if logHeader.Get(TokenHeader) != "" {
					logHeader.Set(TokenHeader, "[redacted]")
				}
				ctx := sallust.With(r.Context(), logger.With(
					zap.Any("requestHeaders", logHeader),
					zap.String("requestURL", r.URL.EscapedPath()),
					zap.String("method", r.Method),
				))
				delegate.ServeHTTP(w, r.WithContext(ctx))
			})
	}
}
