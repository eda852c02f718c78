// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

// Package gerrit builds a golden pair out of the two sides of a Gerrit diff.
// Every failure is absorbed: a side that cannot be fetched or decoded is an
// empty object.
package gerrit

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"
	"github.com/tidwall/gjson"
	"github.com/xmidt-org/aurum/model"
	"github.com/xmidt-org/sallust"
	"go.uber.org/zap"
)

const (
	downloadSegment = "/download"
	contentSegment  = "/content"
	filesSegment    = "files"

	noResult = "NONE"
)

var (
	emptyObject = json.RawMessage(`{}`)

	errNotJSON = errors.New("content is not valid JSON")
)

// Fetcher retrieves the base64 encoded content behind a Gerrit content link.
type Fetcher interface {
	Fetch(ctx context.Context, link string) ([]byte, error)
}

type Config struct {
	// Fetcher (Optional) defaults to a CommandFetcher.
	Fetcher Fetcher

	Logger *zap.Logger

	now func() time.Time
}

type Downloader struct {
	fetcher Fetcher
	logger  *zap.Logger
	now     func() time.Time
}

func New(config Config) *Downloader {
	if config.Fetcher == nil {
		config.Fetcher = NewCommandFetcher(CommandFetcherConfig{})
	}
	if config.Logger == nil {
		config.Logger = sallust.Default()
	}
	if config.now == nil {
		config.now = time.Now
	}
	return &Downloader{
		fetcher: config.Fetcher,
		logger:  config.Logger,
		now:     config.now,
	}
}

// Download fetches both sides concurrently and returns a single record with
// left as the expected data and right as the actual data.  Either link may
// be empty.
func (d *Downloader) Download(ctx context.Context, left, right string) []model.GerritGolden {
	name := TestName(left)
	if len(name) == 0 {
		name = TestName(right)
	}

	expected, actual := emptyObject, emptyObject
	var wg conc.WaitGroup
	wg.Go(func() { expected = d.side(ctx, "left", left) })
	wg.Go(func() { actual = d.side(ctx, "right", right) })
	wg.Wait()

	return []model.GerritGolden{{
		ID:             uuid.NewString(),
		Result:         noResult,
		Label:          name,
		GoldenRepoPath: "",
		TestClassName:  name,
		TestMethodName: name,
		TestTime:       d.now().Format(time.RFC3339Nano),
		ActualData:     actual,
		ExpectedData:   expected,
		DataSource:     model.GerritDataSource,
		IsLocalData:    true,
	}}
}

func (d *Downloader) side(ctx context.Context, which, link string) json.RawMessage {
	if len(link) == 0 {
		return emptyObject
	}

	logger := d.logger.With(zap.String("side", which), zap.String("link", link))
	encoded, err := d.fetcher.Fetch(ctx, ContentLink(link))
	if err != nil {
		logger.Warn("failed fetching gerrit content, make sure your gerrit credentials are fresh", zap.Error(err))
		return emptyObject
	}

	data, err := decode(encoded)
	if err != nil {
		logger.Warn("failed decoding gerrit content", zap.Error(err))
		return emptyObject
	}
	return data
}

func decode(encoded []byte) (json.RawMessage, error) {
	encoded = bytes.Join(bytes.Fields(encoded), nil)
	if len(encoded) == 0 {
		return emptyObject, nil
	}

	data := make([]byte, base64.StdEncoding.DecodedLen(len(encoded)))
	n, err := base64.StdEncoding.Decode(data, encoded)
	if err != nil {
		return nil, err
	}
	data = data[:n]

	if !gjson.ValidBytes(data) {
		return nil, errNotJSON
	}
	return json.RawMessage(data), nil
}

// ContentLink turns a download link into its content link by replacing the
// last "/download".
func ContentLink(link string) string {
	i := strings.LastIndex(link, downloadSegment)
	if i < 0 {
		return link
	}
	return link[:i] + contentSegment + link[i+len(downloadSegment):]
}

// TestName is the unescaped path segment after "files", or empty when the
// link has none.
func TestName(link string) string {
	if len(link) == 0 {
		return ""
	}
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}

	segments := strings.Split(strings.Trim(u.EscapedPath(), "/"), "/")
	for i, s := range segments {
		if s != filesSegment || i+1 >= len(segments) {
			continue
		}
		name, err := url.PathUnescape(segments[i+1])
		if err != nil {
			return ""
		}
		return name
	}
	return ""
}
