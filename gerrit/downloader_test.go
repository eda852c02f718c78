// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package gerrit

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xmidt-org/aurum/command"
	"github.com/xmidt-org/aurum/model"
	"github.com/xmidt-org/bascule/acquire"
)

const (
	leftLink  = "http://gerrit/changes/123/revisions/1/files/my-test-file.json/download"
	rightLink = "http://gerrit/changes/123/revisions/2/files/my-test-file.json/download"
)

type mapFetcher struct {
	lock  sync.Mutex
	links []string
	data  map[string][]byte
	err   error
}

func (f *mapFetcher) Fetch(_ context.Context, link string) ([]byte, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.links = append(f.links, link)
	if f.err != nil {
		return nil, f.err
	}
	return f.data[link], nil
}

func encode(s string) []byte {
	return []byte(base64.StdEncoding.EncodeToString([]byte(s)) + "\n")
}

func TestDownload(t *testing.T) {
	left := `{"key": "value", "source": "left"}`
	right := `{"key": "value", "source": "right"}`
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	testCases := []struct {
		Description      string
		Left, Right      string
		Fetcher          *mapFetcher
		ExpectedName     string
		ExpectedExpected string
		ExpectedActual   string
		ExpectedLinks    []string
	}{
		{
			Description: "Both sides",
			Left:        leftLink,
			Right:       rightLink,
			Fetcher: &mapFetcher{data: map[string][]byte{
				ContentLink(leftLink):  encode(left),
				ContentLink(rightLink): encode(right),
			}},
			ExpectedName:     "my-test-file.json",
			ExpectedExpected: left,
			ExpectedActual:   right,
			ExpectedLinks:    []string{ContentLink(leftLink), ContentLink(rightLink)},
		},
		{
			Description:      "Fetch fails",
			Left:             leftLink,
			Right:            rightLink,
			Fetcher:          &mapFetcher{err: command.ErrNonZeroExit},
			ExpectedName:     "my-test-file.json",
			ExpectedExpected: `{}`,
			ExpectedActual:   `{}`,
			ExpectedLinks:    []string{ContentLink(leftLink), ContentLink(rightLink)},
		},
		{
			Description: "Not JSON",
			Left:        leftLink,
			Right:       rightLink,
			Fetcher: &mapFetcher{data: map[string][]byte{
				ContentLink(leftLink):  encode("this is not json"),
				ContentLink(rightLink): encode("this is not json"),
			}},
			ExpectedName:     "my-test-file.json",
			ExpectedExpected: `{}`,
			ExpectedActual:   `{}`,
			ExpectedLinks:    []string{ContentLink(leftLink), ContentLink(rightLink)},
		},
		{
			Description: "Corrupt base64 on one side",
			Left:        leftLink,
			Right:       rightLink,
			Fetcher: &mapFetcher{data: map[string][]byte{
				ContentLink(leftLink):  []byte("%%% not base64 %%%"),
				ContentLink(rightLink): encode(right),
			}},
			ExpectedName:     "my-test-file.json",
			ExpectedExpected: `{}`,
			ExpectedActual:   right,
			ExpectedLinks:    []string{ContentLink(leftLink), ContentLink(rightLink)},
		},
		{
			Description: "No left side",
			Right:       rightLink,
			Fetcher: &mapFetcher{data: map[string][]byte{
				ContentLink(rightLink): encode(right),
			}},
			ExpectedName:     "my-test-file.json",
			ExpectedExpected: `{}`,
			ExpectedActual:   right,
			ExpectedLinks:    []string{ContentLink(rightLink)},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.Description, func(t *testing.T) {
			assert := assert.New(t)
			d := New(Config{Fetcher: tc.Fetcher, now: func() time.Time { return fixed }})

			result := d.Download(context.Background(), tc.Left, tc.Right)
			require.Len(t, result, 1)
			g := result[0]

			_, err := uuid.Parse(g.ID)
			assert.NoError(err)
			assert.Equal("NONE", g.Result)
			assert.Equal(tc.ExpectedName, g.Label)
			assert.Equal(tc.ExpectedName, g.TestClassName)
			assert.Equal(tc.ExpectedName, g.TestMethodName)
			assert.Empty(g.GoldenRepoPath)
			assert.False(g.Updated)
			assert.Equal("2025-03-01T12:00:00Z", g.TestTime)
			assert.JSONEq(tc.ExpectedExpected, string(g.ExpectedData))
			assert.JSONEq(tc.ExpectedActual, string(g.ActualData))
			assert.Equal(model.GerritDataSource, g.DataSource)
			assert.True(g.IsLocalData)

			sort.Strings(tc.Fetcher.links)
			assert.Equal(tc.ExpectedLinks, tc.Fetcher.links)
		})
	}
}

func TestContentLink(t *testing.T) {
	assert.Equal(t, "http://g/a/download/files/x/content", ContentLink("http://g/a/download/files/x/download"))
	assert.Equal(t, "http://g/files/x", ContentLink("http://g/files/x"))
}

func TestTestName(t *testing.T) {
	testCases := []struct {
		Link     string
		Expected string
	}{
		{Link: leftLink, Expected: "my-test-file.json"},
		{Link: "http://g/c/1/files/dir%2Fgolden.json/download", Expected: "dir/golden.json"},
		{Link: "http://g/c/1/files", Expected: ""},
		{Link: "http://g/c/1/nothing", Expected: ""},
		{Link: "", Expected: ""},
		{Link: "://bad", Expected: ""},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.Expected, TestName(tc.Link), tc.Link)
	}
}

func TestHTTPFetcher(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Basic abc" {
			rw.WriteHeader(http.StatusUnauthorized)
			return
		}
		rw.Write(encode(`{"a": 1}`))
	}))
	defer server.Close()

	auth, err := acquire.NewFixedAuthAcquirer("Basic abc")
	require.NoError(t, err)

	d := New(Config{Fetcher: NewHTTPFetcher(HTTPFetcherConfig{HTTPClient: server.Client(), Auth: auth})})
	result := d.Download(context.Background(), "", server.URL+"/files/x.json/download")
	require.Len(t, result, 1)
	assert.JSONEq(t, `{"a": 1}`, string(result[0].ActualData))
	assert.Equal(t, "x.json", result[0].Label)

	d = New(Config{Fetcher: NewHTTPFetcher(HTTPFetcherConfig{HTTPClient: server.Client()})})
	result = d.Download(context.Background(), "", server.URL+"/files/x.json/download")
	assert.JSONEq(t, `{}`, string(result[0].ActualData))
}

func TestCommandFetcher(t *testing.T) {
	r := &command.Recorder{
		Respond: func(string, []string) ([]byte, error) { return nil, errors.New("no gcert") },
	}
	f := NewCommandFetcher(CommandFetcherConfig{Executor: r.Exec})
	_, err := f.Fetch(context.Background(), "http://g/content")
	assert.Error(t, err)
	assert.Equal(t, [][]string{{"gob-curl", "http://g/content"}}, r.Calls)
}
