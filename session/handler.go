// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"net/http"

	"github.com/go-kit/kit/endpoint"
	kithttp "github.com/go-kit/kit/transport/http"
)

type Handler http.Handler

func newHandler(e endpoint.Endpoint, dec kithttp.DecodeRequestFunc, enc kithttp.EncodeResponseFunc) Handler {
	return kithttp.NewServer(
		e,
		dec,
		enc,
		kithttp.ServerErrorEncoder(encodeError),
	)
}

func newListGoldensHandler(s S) Handler {
	return newHandler(newListGoldensEndpoint(s), decodeNoRequest, encodeJSONResponse)
}

func newListModesHandler(s S) Handler {
	return newHandler(newListModesEndpoint(s), decodeNoRequest, encodeJSONResponse)
}

func newStateHandler(s S) Handler {
	return newHandler(newStateEndpoint(s), decodeNoRequest, encodeJSONResponse)
}

func newSelectModeHandler(s S) Handler {
	return newHandler(newSelectModeEndpoint(s), decodeModeRequest, encodeJSONResponse)
}

func newRefreshHandler(s S) Handler {
	return newHandler(newRefreshEndpoint(s), decodeRefreshRequest, encodeJSONResponse)
}

func newListPresubmitHandler(s S) Handler {
	return newHandler(newListPresubmitEndpoint(s), decodePresubmitListRequest, encodeJSONResponse)
}

func newFetchArtifactHandler(s S) Handler {
	return newHandler(newFetchArtifactEndpoint(s), decodeFetchArtifactRequest, encodeJSONResponse)
}

func newUpdateHandler(s S) Handler {
	return newHandler(newPromoteEndpoint(s), decodeUpdateRequest, encodePromoteResponse)
}

func newUpdateSelectedHandler(s S) Handler {
	return newHandler(newPromoteEndpoint(s), decodeUpdateSelectedRequest, encodePromoteResponse)
}

func newGoldenFileHandler(s S) Handler {
	return newHandler(newGoldenFileEndpoint(s), decodeGoldenFileRequest, encodeFileResponse)
}

func newExpectedFileHandler(s S) Handler {
	return newHandler(newExpectedFileEndpoint(s), decodeExpectedFileRequest, encodeFileResponse)
}

func newGerritHandler(s S) Handler {
	return newHandler(newGerritEndpoint(s), decodeGerritRequest, encodeJSONResponse)
}
