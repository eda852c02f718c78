// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	kithttp "github.com/go-kit/kit/transport/http"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/xmidt-org/aurum/artifact"
	"github.com/xmidt-org/aurum/golden"
	"github.com/xmidt-org/aurum/model"
	"github.com/xmidt-org/httpaux/erraux"
)

// request URL path and query keys
const (
	PathVarKey   = "path"
	IDVarKey     = "id"
	idQueryKey   = "id"
	leftLinkKey  = "leftLink"
	rightLinkKey = "rightLink"
)

// ErrorHeaderKey carries the error message of failed requests.
const ErrorHeaderKey = "X-Golden-Error"

const jsonContentType = "application/json"

var (
	// ErrCasting indicates there was a middleware wiring mistake with the go-kit style
	// encoders.
	ErrCasting = errors.New("casting error due to middleware wiring mistake")

	errNotJSON = errors.New("content type must be application/json")
)

var validate = validator.New()

// errorCodes maps error categories to HTTP status codes, first match wins.
var errorCodes = []struct {
	err  error
	code int
}{
	{err: golden.ErrNoActiveMode, code: http.StatusConflict},
	{err: golden.ErrInvalidRequest, code: http.StatusBadRequest},
	{err: golden.ErrPermissionDenied, code: http.StatusForbidden},
	{err: golden.ErrNotFound, code: http.StatusNotFound},
	{err: golden.ErrAuthExpired, code: http.StatusUnauthorized},
	{err: golden.ErrBackendUnavailable, code: http.StatusServiceUnavailable},
	{err: golden.ErrMalformedResponse, code: http.StatusBadGateway},
	{err: golden.ErrPartialFailure, code: http.StatusMultiStatus},
}

type errorResponse struct {
	Error string `json:"error"`
}

func badRequest(err error) error {
	return &erraux.Error{
		Err:  fmt.Errorf("%w: %v", golden.ErrInvalidRequest, err),
		Code: http.StatusBadRequest,
	}
}

// decodeJSON requires a JSON content type, then unmarshals and validates the
// body into v.
func decodeJSON(r *http.Request, v interface{}) error {
	if mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err != nil || mediaType != jsonContentType {
		return badRequest(errNotJSON)
	}
	return decodeBody(r, v)
}

func decodeBody(r *http.Request, v interface{}) error {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return badRequest(errors.New("failed to read body"))
	}
	if err := json.Unmarshal(data, v); err != nil {
		return badRequest(errors.New("failed to unmarshal json"))
	}
	if err := validate.Struct(v); err != nil {
		return badRequest(err)
	}
	return nil
}

func decodeNoRequest(context.Context, *http.Request) (interface{}, error) {
	return nil, nil
}

func decodeModeRequest(_ context.Context, r *http.Request) (interface{}, error) {
	var request model.ModeRequest
	if err := decodeJSON(r, &request); err != nil {
		return nil, err
	}
	return &request, nil
}

func decodeRefreshRequest(_ context.Context, r *http.Request) (interface{}, error) {
	var request model.RefreshRequest
	if err := decodeJSON(r, &request); err != nil {
		return nil, err
	}
	return &refreshRequest{clear: request.Clear}, nil
}

func decodePresubmitListRequest(_ context.Context, r *http.Request) (interface{}, error) {
	var request model.PresubmitListRequest
	if err := decodeJSON(r, &request); err != nil {
		return nil, err
	}
	return &request, nil
}

func decodeFetchArtifactRequest(_ context.Context, r *http.Request) (interface{}, error) {
	var request model.FetchArtifactRequest
	if err := decodeJSON(r, &request); err != nil {
		return nil, err
	}
	return &request, nil
}

func decodeUpdateRequest(_ context.Context, r *http.Request) (interface{}, error) {
	id := r.URL.Query().Get(idQueryKey)
	if len(id) == 0 {
		return nil, badRequest(errors.New("id query parameter missing"))
	}
	return &promoteRequest{ids: []string{id}}, nil
}

func decodeUpdateSelectedRequest(_ context.Context, r *http.Request) (interface{}, error) {
	var request model.PromoteRequest
	if err := decodeBody(r, &request); err != nil {
		return nil, err
	}
	return &promoteRequest{ids: request.SelectedGoldenIDs}, nil
}

func decodeGoldenFileRequest(_ context.Context, r *http.Request) (interface{}, error) {
	p, ok := mux.Vars(r)[PathVarKey]
	if !ok {
		return nil, badRequest(errors.New("{path} URL path parameter missing"))
	}
	return &fileRequest{key: p, r: r}, nil
}

func decodeExpectedFileRequest(_ context.Context, r *http.Request) (interface{}, error) {
	id, ok := mux.Vars(r)[IDVarKey]
	if !ok {
		return nil, badRequest(errors.New("{id} URL path parameter missing"))
	}
	return &fileRequest{key: id, r: r}, nil
}

func decodeGerritRequest(_ context.Context, r *http.Request) (interface{}, error) {
	q := r.URL.Query()
	return &gerritRequest{
		left:  q.Get(leftLinkKey),
		right: q.Get(rightLinkKey),
	}, nil
}

func encodeJSONResponse(_ context.Context, rw http.ResponseWriter, response interface{}) error {
	rw.Header().Set("Content-Type", jsonContentType)
	return json.NewEncoder(rw).Encode(response)
}

func encodePromoteResponse(_ context.Context, rw http.ResponseWriter, response interface{}) error {
	p, ok := response.(Promotion)
	if !ok {
		return ErrCasting
	}
	rw.Header().Set("Content-Type", jsonContentType)
	rw.WriteHeader(p.Result.StatusCode())
	return json.NewEncoder(rw).Encode(p.Report)
}

// encodeFileResponse streams the file with Range support.
func encodeFileResponse(_ context.Context, rw http.ResponseWriter, response interface{}) error {
	f, ok := response.(*fileResponse)
	if !ok {
		return ErrCasting
	}

	file, err := os.Open(f.Path)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}
	if len(f.ContentType) > 0 {
		rw.Header().Set("Content-Type", f.ContentType)
	}
	http.ServeContent(rw, f.r, filepath.Base(f.Path), info.ModTime(), file)
	return nil
}

func encodeError(_ context.Context, err error, w http.ResponseWriter) {
	w.Header().Set(ErrorHeaderKey, err.Error())
	var headerer kithttp.Headerer
	if errors.As(err, &headerer) {
		for k, values := range headerer.Headers() {
			for _, v := range values {
				w.Header().Add(k, v)
			}
		}
	}
	w.Header().Set("Content-Type", jsonContentType)
	w.WriteHeader(statusCode(err))
	json.NewEncoder(w).Encode(errorResponse{Error: err.Error()})
}

// statusCode translates err for the client.  Upstream presubmit codes are
// passed through except 500, which the client sees as 503.
func statusCode(err error) int {
	var se *artifact.StatusError
	if errors.As(err, &se) {
		if se.Code == http.StatusInternalServerError {
			return http.StatusServiceUnavailable
		}
		return se.Code
	}

	var sc kithttp.StatusCoder
	if errors.As(err, &sc) {
		return sc.StatusCode()
	}

	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return http.StatusInternalServerError
}
