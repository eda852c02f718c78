// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"net/http"

	"github.com/go-kit/kit/endpoint"
	"github.com/xmidt-org/aurum/model"
)

type refreshRequest struct {
	clear bool
}

type promoteRequest struct {
	ids []string
}

type fileRequest struct {
	// key is a path relative to the watcher directory for goldens and a
	// golden id for expected files.
	key string
	r   *http.Request
}

type fileResponse struct {
	File
	r *http.Request
}

type gerritRequest struct {
	left, right string
}

func newListGoldensEndpoint(s S) endpoint.Endpoint {
	return func(ctx context.Context, _ interface{}) (interface{}, error) {
		return s.Goldens(ctx), nil
	}
}

func newListModesEndpoint(s S) endpoint.Endpoint {
	return func(ctx context.Context, _ interface{}) (interface{}, error) {
		return s.Modes(ctx), nil
	}
}

func newStateEndpoint(s S) endpoint.Endpoint {
	return func(context.Context, interface{}) (interface{}, error) {
		return s.State(), nil
	}
}

func newSelectModeEndpoint(s S) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		r := request.(*model.ModeRequest)
		return s.SelectMode(ctx, r.Mode)
	}
}

func newRefreshEndpoint(s S) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		r := request.(*refreshRequest)
		return s.Refresh(ctx, r.clear)
	}
}

func newListPresubmitEndpoint(s S) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		r := request.(*model.PresubmitListRequest)
		return s.ListPresubmit(ctx, r.InvocationID)
	}
}

func newFetchArtifactEndpoint(s S) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		r := request.(*model.FetchArtifactRequest)
		return s.FetchArtifact(ctx, r.ResourceID)
	}
}

func newPromoteEndpoint(s S) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		r := request.(*promoteRequest)
		return s.Promote(ctx, r.ids)
	}
}

func newGoldenFileEndpoint(s S) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		r := request.(*fileRequest)
		f, err := s.GoldenFile(ctx, r.key)
		if err != nil {
			return nil, err
		}
		return &fileResponse{File: f, r: r.r}, nil
	}
}

func newExpectedFileEndpoint(s S) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		r := request.(*fileRequest)
		f, err := s.ExpectedFile(ctx, r.key)
		if err != nil {
			return nil, err
		}
		return &fileResponse{File: f, r: r.r}, nil
	}
}

func newGerritEndpoint(s S) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		r := request.(*gerritRequest)
		return s.Gerrit(ctx, r.left, r.right), nil
	}
}
