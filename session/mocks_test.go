// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/stretchr/testify/mock"
	"github.com/xmidt-org/aurum/golden"
	"github.com/xmidt-org/aurum/golden/factory"
	"github.com/xmidt-org/aurum/model"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) Modes(ctx context.Context) []string {
	args := m.Called(ctx)
	return args.Get(0).([]string)
}

func (m *MockService) SelectMode(ctx context.Context, mode string) ([]model.Golden, error) {
	args := m.Called(ctx, mode)
	return args.Get(0).([]model.Golden), args.Error(1)
}

func (m *MockService) Refresh(ctx context.Context, clear bool) ([]model.Golden, error) {
	args := m.Called(ctx, clear)
	return args.Get(0).([]model.Golden), args.Error(1)
}

func (m *MockService) Goldens(ctx context.Context) []model.Golden {
	args := m.Called(ctx)
	return args.Get(0).([]model.Golden)
}

func (m *MockService) ListPresubmit(ctx context.Context, invocationID string) ([]string, error) {
	args := m.Called(ctx, invocationID)
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockService) FetchArtifact(ctx context.Context, testName string) (model.Golden, error) {
	args := m.Called(ctx, testName)
	return args.Get(0).(model.Golden), args.Error(1)
}

func (m *MockService) Promote(ctx context.Context, ids []string) (Promotion, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).(Promotion), args.Error(1)
}

func (m *MockService) GoldenFile(ctx context.Context, rel string) (File, error) {
	args := m.Called(ctx, rel)
	return args.Get(0).(File), args.Error(1)
}

func (m *MockService) ExpectedFile(ctx context.Context, id string) (File, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(File), args.Error(1)
}

func (m *MockService) Gerrit(ctx context.Context, left, right string) []model.GerritGolden {
	args := m.Called(ctx, left, right)
	return args.Get(0).([]model.GerritGolden)
}

func (m *MockService) State() State {
	args := m.Called()
	return args.Get(0).(State)
}

// fakeWatcher adds discover to its cache on every refresh.  Ingest caches one
// golden per downloaded file.
type fakeWatcher struct {
	*golden.Cache
	dir        string
	typ        golden.WatcherType
	discover   []golden.CachedGolden
	refreshErr error
	refreshes  int
	cleans     int
}

func (w *fakeWatcher) Refresh(context.Context) error {
	w.refreshes++
	if w.refreshErr != nil {
		return w.refreshErr
	}
	for _, g := range w.discover {
		w.Put(g)
	}
	return nil
}

func (w *fakeWatcher) Clean() {
	w.cleans++
	w.Cache.Clean()
}

func (w *fakeWatcher) Dir() string { return w.dir }

func (w *fakeWatcher) Type() golden.WatcherType { return w.typ }

func (w *fakeWatcher) Ingest(_ context.Context, filenames []string, testName string) error {
	for _, name := range filenames {
		w.Put(golden.CachedGolden{
			ID:         golden.Hash(name),
			RemoteRef:  name,
			LocalPath:  filepath.Join(w.dir, name),
			Checksum:   "c0ffee",
			GoldenName: testName,
		})
	}
	return nil
}

// fakeFactory builds fakeWatchers and runs the initial refresh the way
// factory.New does.
type fakeFactory struct {
	lock     sync.Mutex
	configs  []factory.Config
	watchers []*fakeWatcher
	discover []golden.CachedGolden
	err      error
}

func (f *fakeFactory) New(ctx context.Context, config factory.Config) (golden.Watcher, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.configs = append(f.configs, config)
	if f.err != nil {
		return nil, f.err
	}
	w := &fakeWatcher{
		Cache:    golden.NewCache(),
		dir:      config.Dir,
		typ:      config.Type,
		discover: f.discover,
	}
	if config.Type != golden.PresubmitWatcher {
		if err := w.Refresh(ctx); err != nil {
			return nil, err
		}
	}
	f.watchers = append(f.watchers, w)
	return w, nil
}

type fakeFinder map[string]string

func (f fakeFinder) Devices(context.Context) map[string]string {
	result := make(map[string]string, len(f))
	for k, v := range f {
		result[k] = v
	}
	return result
}

type fakeDevice struct {
	serial  string
	rooted  bool
	rootErr error
	roots   *int
}

func (d fakeDevice) Run(context.Context, ...string) (string, error) { return "", nil }

func (d fakeDevice) RunAsRoot(context.Context) (bool, error) {
	*d.roots++
	return d.rooted, d.rootErr
}

type fakeSource struct {
	names     []string
	listErr   error
	artifacts map[string][]string
	lists     int
}

func (s *fakeSource) ListArtifacts(context.Context) ([]string, error) {
	s.lists++
	return s.names, s.listErr
}

func (s *fakeSource) DownloadForTestName(_ context.Context, testName string) ([]string, error) {
	names := s.artifacts[testName]
	delete(s.artifacts, testName)
	return names, nil
}

type fakeConverter struct {
	calls []string
	err   error
}

func (c *fakeConverter) Convert(_ context.Context, zipPath string) (string, error) {
	c.calls = append(c.calls, zipPath)
	if c.err != nil {
		return "", c.err
	}
	return zipPath + ".mp4", nil
}

type fakeGerrit struct {
	pairs []model.GerritGolden
}

func (g fakeGerrit) Download(context.Context, string, string) []model.GerritGolden {
	return g.pairs
}
