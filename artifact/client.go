// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sourcegraph/conc/pool"
	"github.com/xmidt-org/aurum/golden"
	"github.com/xmidt-org/bascule/acquire"
	"github.com/xmidt-org/sallust"
	"go.uber.org/zap"
)

// DefaultBaseURL is the root of the build API.
const DefaultBaseURL = "https://androidbuildinternal.googleapis.com/android/internal/build/v3"

const (
	defaultMaxResults = 100
	defaultChunkSize  = 1024
	defaultWorkers    = 1
	defaultTimeout    = time.Minute

	actualMarker = ".actual"
)

// Config contains config data for the fetcher of one presubmit invocation.
type Config struct {
	InvocationID string `validate:"required"`

	// DownloadDir is deleted and recreated when the fetcher is built.
	DownloadDir string `validate:"required"`

	// BaseURL (Optional) defaults to DefaultBaseURL.
	BaseURL string `validate:"omitempty,url"`

	// MaxResults (Optional) is the listing page size, 100 by default.
	MaxResults int `validate:"gte=0"`

	// ChunkSize (Optional) is the size of the writes made while downloading.
	ChunkSize int `validate:"gte=0"`

	// Workers (Optional) bounds concurrent downloads.  The default of one
	// keeps downloads strictly sequential.
	Workers int `validate:"gte=0"`

	// Timeout (Optional) bounds every request, one minute by default.
	Timeout time.Duration `validate:"gte=0"`

	// HTTPClient (Optional) defaults to http.DefaultClient.
	HTTPClient *http.Client

	Credentials Credentials

	// Measures (Optional) records request outcomes.
	Measures *Measures

	// Logger (Optional) defaults to sallust.Default().
	Logger *zap.Logger
}

// Fetcher lists and downloads the test artifacts of a presubmit invocation.
type Fetcher struct {
	config   Config
	client   *http.Client
	noFollow *http.Client
	creds    Credentials
	measures *Measures
	logger   *zap.Logger

	lock       sync.Mutex
	order      []string
	artifacts  map[string][]string
	downloaded map[string]bool
}

type listResponse struct {
	NextPageToken string `json:"nextPageToken"`
	TestArtifacts []struct {
		Name string `json:"name"`
	} `json:"test_artifacts"`
}

type signedURLResponse struct {
	SignedURL string `json:"signedUrl"`
}

type response struct {
	Body []byte
	Code int
}

var validate = validator.New()

// NewFetcher validates config, recreates the download directory and obtains
// a first token.
func NewFetcher(ctx context.Context, config Config) (*Fetcher, error) {
	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	if err := os.RemoveAll(config.DownloadDir); err != nil {
		return nil, fmt.Errorf("failed clearing download directory: %w", err)
	}
	if err := os.MkdirAll(config.DownloadDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed creating download directory: %w", err)
	}

	noFollow := *config.HTTPClient
	noFollow.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	f := &Fetcher{
		config:     config,
		client:     config.HTTPClient,
		noFollow:   &noFollow,
		creds:      config.Credentials,
		measures:   config.Measures,
		logger:     config.Logger.With(zap.String("invocationId", config.InvocationID)),
		artifacts:  make(map[string][]string),
		downloaded: make(map[string]bool),
	}

	if err := f.refresh(ctx); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *Fetcher) InvocationID() string { return f.config.InvocationID }

func (f *Fetcher) DownloadDir() string { return f.config.DownloadDir }

// ListArtifacts follows the listing pages in order and groups every artifact
// whose name contains ".actual" by test name.  It returns the test names in
// the order they were first seen.
func (f *Fetcher) ListArtifacts(ctx context.Context) ([]string, error) {
	base := fmt.Sprintf("%s/testArtifacts?invocationId=%s&maxResults=%d&fields=nextPageToken%%2Ctest_artifacts.name",
		f.config.BaseURL, url.QueryEscape(f.config.InvocationID), f.config.MaxResults)

	var (
		names     []string
		refreshed bool
		next      = base
	)
	for {
		var page listResponse
		if err := f.getJSON(ctx, f.client, ListOperation, next, &refreshed, &page); err != nil {
			return nil, err
		}
		if len(page.TestArtifacts) == 0 {
			break
		}
		for _, a := range page.TestArtifacts {
			if strings.Contains(a.Name, actualMarker) {
				names = append(names, a.Name)
			}
		}
		if len(page.NextPageToken) == 0 {
			break
		}
		next = base + "&pageToken=" + url.QueryEscape(page.NextPageToken)
	}

	f.lock.Lock()
	defer f.lock.Unlock()
	f.order = f.order[:0]
	f.artifacts = make(map[string][]string)
	for _, name := range names {
		testName := TestName(name)
		if _, ok := f.artifacts[testName]; !ok {
			f.order = append(f.order, testName)
		}
		f.artifacts[testName] = append(f.artifacts[testName], name)
	}

	if len(f.order) == 0 {
		f.logger.Info("no artifacts found for this invocation")
	}
	return f.testNames(), nil
}

// TestName derives the logical test name of an artifact.
func TestName(artifactName string) string {
	name := artifactName
	if i := strings.Index(name, actualMarker); i >= 0 {
		name = name[:i]
	}
	return strings.ReplaceAll(name, "/", "_")
}

// TestNames returns the test names found by the last listing.
func (f *Fetcher) TestNames() []string {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.testNames()
}

func (f *Fetcher) testNames() []string {
	return append([]string{}, f.order...)
}

// Artifacts returns the artifact names grouped under testName.
func (f *Fetcher) Artifacts(testName string) []string {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]string{}, f.artifacts[testName]...)
}

// DownloadForTestName downloads every artifact of testName into the download
// directory and returns their names.  A test name is downloaded at most once:
// later calls return nothing and make no requests.
func (f *Fetcher) DownloadForTestName(ctx context.Context, testName string) ([]string, error) {
	f.lock.Lock()
	done := f.downloaded[testName]
	names, known := f.artifacts[testName]
	names = append([]string{}, names...)
	f.lock.Unlock()

	if done {
		return nil, nil
	}
	if !known {
		return nil, fmt.Errorf("%w: %w: %s", golden.ErrNotFound, ErrUnknownTestName, testName)
	}

	p := pool.New().
		WithMaxGoroutines(f.config.Workers).
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError()
	for _, name := range names {
		p.Go(func(ctx context.Context) error {
			signed, err := f.signedURL(ctx, name)
			if err != nil {
				return err
			}
			return f.download(ctx, signed, name)
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}

	f.lock.Lock()
	f.downloaded[testName] = true
	f.lock.Unlock()

	f.logger.Info("downloaded test artifacts", zap.String("testName", testName), zap.Int("count", len(names)))
	return names, nil
}

func (f *Fetcher) signedURL(ctx context.Context, resourceID string) (string, error) {
	u := fmt.Sprintf("%s/testArtifacts/%s/url?invocationId=%s",
		f.config.BaseURL, url.PathEscape(resourceID), url.QueryEscape(f.config.InvocationID))

	var (
		refreshed bool
		signed    signedURLResponse
	)
	if err := f.getJSON(ctx, f.noFollow, SignOperation, u, &refreshed, &signed); err != nil {
		return "", err
	}
	if len(signed.SignedURL) == 0 {
		f.logger.Error("no signed url returned", zap.String("resource", resourceID))
		return "", fmt.Errorf(errWrappedFmt, ErrSignedURLEmpty, resourceID)
	}
	return signed.SignedURL, nil
}

func (f *Fetcher) download(ctx context.Context, signedURL, name string) error {
	if len(signedURL) == 0 {
		return ErrSignedURLEmpty
	}
	if err := writable(f.config.DownloadDir); err != nil {
		return err
	}

	dst, err := golden.SafeJoin(f.config.DownloadDir, name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("%w: %s", golden.ErrPermissionDenied, err)
	}

	ctx, cancel := context.WithTimeout(ctx, f.config.Timeout)
	defer cancel()

	r, err := http.NewRequestWithContext(ctx, http.MethodGet, signedURL, nil)
	if err != nil {
		return fmt.Errorf(errWrappedFmt, errNewRequestFailure, err.Error())
	}
	resp, err := f.client.Do(r)
	if err != nil {
		f.measures.request(DownloadOperation, FailureOutcome)
		return fmt.Errorf("%w: %w: %s", golden.ErrBackendUnavailable, errDoRequestFailure, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		f.measures.request(DownloadOperation, FailureOutcome)
		return &StatusError{Code: resp.StatusCode, Err: translateNonSuccessStatusCode(resp.StatusCode)}
	}

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("%w: %s", golden.ErrPermissionDenied, err)
	}
	defer out.Close()

	// Plain wrappers keep io.CopyBuffer from bypassing the chunk buffer.
	n, err := io.CopyBuffer(
		struct{ io.Writer }{out},
		struct{ io.Reader }{resp.Body},
		make([]byte, f.config.ChunkSize),
	)
	f.measures.bytes(n)
	if err != nil {
		f.measures.request(DownloadOperation, FailureOutcome)
		return fmt.Errorf(errWrappedFmt, errReadingBodyFailure, err.Error())
	}
	if err := out.Close(); err != nil {
		return err
	}

	f.measures.request(DownloadOperation, SuccessOutcome)
	f.logger.Debug("download complete", zap.String("file", dst), zap.Int64("bytes", n))
	return nil
}

// getJSON sends an authorized GET and decodes the JSON body into v.  A 401
// triggers one credential refresh and a retry, unless *refreshed says that
// already happened during this operation.
func (f *Fetcher) getJSON(ctx context.Context, client *http.Client, operation, u string, refreshed *bool, v interface{}) error {
	for {
		resp, err := f.sendRequest(ctx, client, u)
		if err != nil {
			f.measures.request(operation, FailureOutcome)
			return err
		}

		if resp.Code == http.StatusUnauthorized && !*refreshed {
			f.measures.request(operation, UnauthorizedOutcome)
			f.logger.Warn("build API rejected the token, refreshing", zap.String("operation", operation))
			*refreshed = true
			if err := f.refresh(ctx); err != nil {
				return err
			}
			continue
		}

		if resp.Code < 200 || resp.Code > 299 {
			f.measures.request(operation, FailureOutcome)
			f.logger.Error("build API responded with a non-success status code",
				zap.String("operation", operation), zap.Int("code", resp.Code))
			return &StatusError{Code: resp.Code, Err: translateNonSuccessStatusCode(resp.Code)}
		}

		if err := json.Unmarshal(resp.Body, v); err != nil {
			f.measures.request(operation, FailureOutcome)
			f.logger.Error("failed decoding build API response",
				zap.String("operation", operation), zap.ByteString("body", resp.Body))
			return fmt.Errorf(errWrappedFmt, golden.ErrMalformedResponse, err.Error())
		}

		f.measures.request(operation, SuccessOutcome)
		return nil
	}
}

func (f *Fetcher) sendRequest(ctx context.Context, client *http.Client, u string) (response, error) {
	ctx, cancel := context.WithTimeout(ctx, f.config.Timeout)
	defer cancel()

	r, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return response{}, fmt.Errorf(errWrappedFmt, errNewRequestFailure, err.Error())
	}
	if err := acquire.AddAuth(r, f.creds); err != nil {
		return response{}, fmt.Errorf(errWrappedFmt, errAuthAcquireFailure, err.Error())
	}
	r.Header.Set("Accept", "application/json")

	resp, err := client.Do(r)
	if err != nil {
		return response{}, fmt.Errorf("%w: %w: %s", golden.ErrBackendUnavailable, errDoRequestFailure, err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return response{Code: resp.StatusCode}, fmt.Errorf(errWrappedFmt, errReadingBodyFailure, err.Error())
	}
	return response{Code: resp.StatusCode, Body: body}, nil
}

func (f *Fetcher) refresh(ctx context.Context) error {
	if err := f.creds.Refresh(ctx); err != nil {
		f.measures.refresh(FailureOutcome)
		return fmt.Errorf("%w: %w", golden.ErrAuthExpired, err)
	}
	f.measures.refresh(SuccessOutcome)
	return nil
}

// writable probes dir by creating and removing a temporary file.
func writable(dir string) error {
	probe, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return fmt.Errorf("%w: download directory is not writable: %s", golden.ErrPermissionDenied, err)
	}
	name := probe.Name()
	probe.Close()
	return os.Remove(name)
}

func validateConfig(config *Config) error {
	if len(config.InvocationID) == 0 {
		return ErrInvocationIDEmpty
	}
	if len(config.DownloadDir) == 0 {
		return ErrDownloadDirEmpty
	}
	if config.Credentials == nil {
		return ErrCredentialsMissing
	}
	if err := validate.Struct(config); err != nil {
		return fmt.Errorf("%w: %s", golden.ErrInvalidRequest, err)
	}

	if len(config.BaseURL) == 0 {
		config.BaseURL = DefaultBaseURL
	}
	config.BaseURL = strings.TrimSuffix(config.BaseURL, "/")
	if config.MaxResults == 0 {
		config.MaxResults = defaultMaxResults
	}
	if config.ChunkSize == 0 {
		config.ChunkSize = defaultChunkSize
	}
	if config.Workers == 0 {
		config.Workers = defaultWorkers
	}
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	if config.HTTPClient == nil {
		config.HTTPClient = http.DefaultClient
	}
	if config.Logger == nil {
		config.Logger = sallust.Default()
	}
	return nil
}
