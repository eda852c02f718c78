// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xmidt-org/aurum/artifact"
	"github.com/xmidt-org/aurum/golden"
	"github.com/xmidt-org/aurum/model"
	"github.com/xmidt-org/aurum/video"
)

const testServer = "http://localhost:8383"

type serviceFixture struct {
	service  *Service
	factory  *fakeFactory
	buildTop string
	roots    int
}

func newFixture(t *testing.T, configure func(*ServiceConfig)) *serviceFixture {
	f := &serviceFixture{
		factory:  &fakeFactory{},
		buildTop: t.TempDir(),
	}
	config := ServiceConfig{
		Config: Config{
			TempDir:       filepath.Join(t.TempDir(), "tmp"),
			BuildTop:      f.buildTop,
			ServerAddress: testServer,
		},
		Watchers: f.factory.New,
		Finder:   fakeFinder{"Pixel 7": "serial-1"},
		Connect: func(serial string) (Device, error) {
			return fakeDevice{serial: serial, rooted: true, roots: &f.roots}, nil
		},
	}
	if configure != nil {
		configure(&config)
	}

	s, err := NewService(config)
	require.NoError(t, err)
	f.service = s
	return f
}

// cachedGolden writes a local artifact under dir and describes it.
func cachedGolden(t *testing.T, dir, name, repoPath string) golden.CachedGolden {
	require.NoError(t, os.MkdirAll(dir, 0o755))
	local := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(local, []byte(`{"frames": []}`), 0o644))
	return golden.CachedGolden{
		Metadata: golden.Metadata{
			Result:           "FAILED",
			GoldenRepoPath:   repoPath,
			GoldenIdentifier: name,
			TestClassName:    "FooTest",
			TestMethodName:   "bar",
		},
		ID:         golden.Hash(local),
		RemoteRef:  local,
		LocalPath:  local,
		Checksum:   "abc",
		CapturedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestNewServiceInvalidConfig(t *testing.T) {
	_, err := NewService(ServiceConfig{Config: Config{TempDir: t.TempDir()}})
	assert.Error(t, err)
}

func TestModes(t *testing.T) {
	f := newFixture(t, func(c *ServiceConfig) {
		c.Finder = fakeFinder{"Pixel 7": "s1", "Pixel 6": "s2"}
	})
	assert.Equal(t, []string{"Pixel 6", "Pixel 7", AtestMode, RobolectricMode}, f.service.Modes(context.Background()))

	f = newFixture(t, func(c *ServiceConfig) { c.Finder = nil })
	assert.Equal(t, []string{AtestMode, RobolectricMode}, f.service.Modes(context.Background()))
}

func TestSelectModeCachesEntity(t *testing.T) {
	assert := assert.New(t)
	f := newFixture(t, nil)
	ctx := context.Background()

	assert.Equal(Unselected, f.service.State().Phase)

	_, err := f.service.SelectMode(ctx, AtestMode)
	require.NoError(t, err)
	_, err = f.service.SelectMode(ctx, AtestMode)
	require.NoError(t, err)

	require.Len(t, f.factory.watchers, 1)
	assert.Equal(1, f.factory.watchers[0].refreshes)
	assert.Equal(golden.AtestWatcher, f.factory.configs[0].Type)
	assert.Equal(State{Phase: Active, Mode: AtestMode}, f.service.State())

	_, err = f.service.SelectMode(ctx, RobolectricMode)
	require.NoError(t, err)
	_, err = f.service.SelectMode(ctx, AtestMode)
	require.NoError(t, err)
	assert.Len(f.factory.watchers, 2)
	assert.NotEqual(f.factory.configs[0].Dir, f.factory.configs[1].Dir)
}

func TestSelectModeDevice(t *testing.T) {
	assert := assert.New(t)
	f := newFixture(t, nil)

	_, err := f.service.SelectMode(context.Background(), "Pixel 7")
	require.NoError(t, err)
	assert.Equal(1, f.roots)
	require.Len(t, f.factory.configs, 1)
	assert.Equal(golden.DeviceWatcher, f.factory.configs[0].Type)
	assert.Equal("serial-1", f.factory.configs[0].Runner.(fakeDevice).serial)
}

func TestSelectModeFailures(t *testing.T) {
	testCases := []struct {
		Description string
		Mode        string
		Configure   func(*fakeFactory, *ServiceConfig)
		ExpectedErr error
	}{
		{
			Description: "Not rooted",
			Mode:        "Pixel 7",
			ExpectedErr: errNotRooted,
			Configure: func(_ *fakeFactory, c *ServiceConfig) {
				roots := 0
				c.Connect = func(serial string) (Device, error) {
					return fakeDevice{serial: serial, roots: &roots}, nil
				}
			},
		},
		{
			Description: "Unknown device",
			Mode:        "Nexus",
			ExpectedErr: golden.ErrNotFound,
		},
		{
			Description: "Presubmit not loaded",
			Mode:        PresubmitMode("I123"),
			ExpectedErr: golden.ErrNotFound,
		},
		{
			Description: "Gerrit is not selectable",
			Mode:        GerritMode,
			ExpectedErr: golden.ErrNotFound,
		},
		{
			Description: "Discovery fails",
			Mode:        AtestMode,
			ExpectedErr: golden.ErrBackendUnavailable,
			Configure: func(f *fakeFactory, _ *ServiceConfig) {
				f.err = golden.ErrBackendUnavailable
			},
		},
		{
			Description: "No device support",
			Mode:        "Pixel 7",
			ExpectedErr: errNoDeviceSupport,
			Configure: func(_ *fakeFactory, c *ServiceConfig) {
				c.Connect = nil
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.Description, func(t *testing.T) {
			assert := assert.New(t)
			var ff *fakeFactory
			f := newFixture(t, func(c *ServiceConfig) {
				ff = &fakeFactory{}
				c.Watchers = ff.New
				if tc.Configure != nil {
					tc.Configure(ff, c)
				}
			})

			goldens, err := f.service.SelectMode(context.Background(), tc.Mode)
			assert.Nil(goldens)

			var modeErr *ModeError
			require.True(t, errors.As(err, &modeErr))
			assert.Equal(tc.Mode, modeErr.Mode)
			assert.Equal(http.StatusServiceUnavailable, statusCode(err))
			assert.True(errors.Is(err, tc.ExpectedErr))

			state := f.service.State()
			assert.Equal(Failed, state.Phase)
			assert.Equal(tc.Mode, state.Mode)
			assert.Error(state.Err)

			assert.Empty(f.service.modes)
			assert.Empty(f.service.Goldens(context.Background()))
		})
	}
}

func TestSelectModeFailureKeepsOtherModes(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.service.SelectMode(ctx, AtestMode)
	require.NoError(t, err)
	_, err = f.service.SelectMode(ctx, "Nexus")
	require.Error(t, err)

	_, err = f.service.SelectMode(ctx, AtestMode)
	require.NoError(t, err)
	assert.Len(t, f.factory.watchers, 1)
}

func TestRefresh(t *testing.T) {
	assert := assert.New(t)
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.service.Refresh(ctx, false)
	assert.Equal(golden.ErrNoActiveMode, err)
	assert.Equal(http.StatusConflict, statusCode(err))

	_, err = f.service.SelectMode(ctx, AtestMode)
	require.NoError(t, err)
	w := f.factory.watchers[0]
	g := cachedGolden(t, w.dir, "a.actual.json", "golden/a.json")
	w.discover = []golden.CachedGolden{g}

	goldens, err := f.service.Refresh(ctx, false)
	require.NoError(t, err)
	assert.Len(goldens, 1)
	assert.Equal(2, w.refreshes)
	assert.Zero(w.cleans)

	goldens, err = f.service.Refresh(ctx, true)
	require.NoError(t, err)
	assert.Len(goldens, 1)
	assert.Equal(1, w.cleans)

	w.refreshErr = golden.ErrBackendUnavailable
	_, err = f.service.Refresh(ctx, false)
	assert.True(errors.Is(err, golden.ErrBackendUnavailable))
}

func TestSerialize(t *testing.T) {
	assert := assert.New(t)
	f := newFixture(t, nil)
	ctx := context.Background()

	dir := f.service.modeDir(AtestMode)
	withExpected := cachedGolden(t, filepath.Join(dir, "sub"), "a.actual.json", "golden/a.json")
	withExpected.VideoLocation = "videos/a.mp4"
	withoutExpected := cachedGolden(t, dir, "b.actual.json", "golden/b.json")
	withoutExpected.CapturedAt = withoutExpected.CapturedAt.Add(time.Second)
	f.factory.discover = []golden.CachedGolden{withExpected, withoutExpected}

	require.NoError(t, os.MkdirAll(filepath.Join(f.buildTop, "golden"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(f.buildTop, "golden", "a.json"), []byte("{}"), 0o644))

	goldens, err := f.service.SelectMode(ctx, AtestMode)
	require.NoError(t, err)
	require.Len(t, goldens, 2)

	assert.Equal(model.Golden{
		ID:             withExpected.ID,
		Result:         "FAILED",
		Label:          "a.actual.json",
		GoldenRepoPath: "golden/a.json",
		TestClassName:  "FooTest",
		TestMethodName: "bar",
		TestTime:       "2025-03-01T12:00:00Z",
		ActualURL:      testServer + "/golden/abc/sub/a.actual.json",
		ExpectedURL:    testServer + "/expected/" + withExpected.ID,
		VideoURL:       testServer + "/golden/abc/videos/a.mp4",
	}, goldens[0])

	assert.Equal(testServer+"/golden/abc/b.actual.json", goldens[1].ActualURL)
	assert.Empty(goldens[1].ExpectedURL)
	assert.Empty(goldens[1].VideoURL)

	assert.Equal(goldens, f.service.Goldens(ctx))
}

func TestPromote(t *testing.T) {
	assert := assert.New(t)
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.service.Promote(ctx, []string{"x"})
	assert.Equal(golden.ErrNoActiveMode, err)

	dir := f.service.modeDir(AtestMode)
	valid := cachedGolden(t, dir, "a.actual.json", "frameworks/golden/a.json")
	escaping := cachedGolden(t, dir, "b.actual.json", "../outside.json")
	f.factory.discover = []golden.CachedGolden{valid, escaping}
	_, err = f.service.SelectMode(ctx, AtestMode)
	require.NoError(t, err)

	_, err = f.service.Promote(ctx, nil)
	assert.True(errors.Is(err, golden.ErrInvalidRequest))
	assert.Equal(http.StatusBadRequest, statusCode(err))

	p, err := f.service.Promote(ctx, []string{valid.ID, "unknown", valid.ID})
	require.NoError(t, err)
	assert.Equal(PartialPromoteResult, p.Result)
	assert.Equal(http.StatusMultiStatus, p.Result.StatusCode())
	assert.Equal(model.PromoteReport{valid.ID: UpdatedStatus, "unknown": NotFoundStatus}, p.Report)

	b, err := os.ReadFile(filepath.Join(f.buildTop, "frameworks", "golden", "a.json"))
	require.NoError(t, err)
	assert.JSONEq(`{"frames": []}`, string(b))
	promoted, ok := f.factory.watchers[0].Find(valid.ID)
	require.True(t, ok)
	assert.True(promoted.Updated)

	p, err = f.service.Promote(ctx, []string{escaping.ID})
	require.NoError(t, err)
	assert.Equal(NonePromoteResult, p.Result)
	assert.Contains(p.Report[escaping.ID], failedStatus)
	_, err = os.Stat(filepath.Join(filepath.Dir(f.buildTop), "outside.json"))
	assert.True(os.IsNotExist(err))

	p, err = f.service.Promote(ctx, []string{valid.ID})
	require.NoError(t, err)
	assert.Equal(AllPromoteResult, p.Result)
}

func TestGoldenFile(t *testing.T) {
	assert := assert.New(t)
	converter := &fakeConverter{}
	f := newFixture(t, func(c *ServiceConfig) { c.Converter = converter })
	ctx := context.Background()

	_, err := f.service.GoldenFile(ctx, "a.actual.json")
	assert.True(errors.Is(err, golden.ErrNotFound))

	dir := f.service.modeDir(AtestMode)
	cachedGolden(t, dir, "a.actual.json", "")
	cachedGolden(t, filepath.Join(dir, "FooTest"), "bar.screenshots.zip", "")
	_, err = f.service.SelectMode(ctx, AtestMode)
	require.NoError(t, err)

	file, err := f.service.GoldenFile(ctx, "a.actual.json")
	require.NoError(t, err)
	assert.Equal(File{Path: filepath.Join(dir, "a.actual.json"), ContentType: "application/json"}, file)

	file, err = f.service.GoldenFile(ctx, "FooTest/bar.screenshots.zip")
	require.NoError(t, err)
	assert.Equal("video/mp4", file.ContentType)
	assert.Equal([]string{filepath.Join(dir, "FooTest", "bar.screenshots.zip")}, converter.calls)

	for _, rel := range []string{"../../etc/passwd", "/etc/passwd", "FooTest", "missing.json"} {
		_, err = f.service.GoldenFile(ctx, rel)
		assert.True(errors.Is(err, golden.ErrNotFound), rel)
		assert.Equal(http.StatusNotFound, statusCode(err), rel)
	}

	converter.err = video.ErrNoFrames
	_, err = f.service.GoldenFile(ctx, "FooTest/bar.screenshots.zip")
	assert.True(errors.Is(err, golden.ErrNotFound))
}

func TestExpectedFile(t *testing.T) {
	assert := assert.New(t)
	f := newFixture(t, nil)
	ctx := context.Background()

	dir := f.service.modeDir(AtestMode)
	present := cachedGolden(t, dir, "a.actual.json", "golden/a.json")
	escaping := cachedGolden(t, dir, "b.actual.json", "../../etc/passwd")
	f.factory.discover = []golden.CachedGolden{present, escaping}
	require.NoError(t, os.MkdirAll(filepath.Join(f.buildTop, "golden"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(f.buildTop, "golden", "a.json"), []byte("{}"), 0o644))

	_, err := f.service.SelectMode(ctx, AtestMode)
	require.NoError(t, err)

	file, err := f.service.ExpectedFile(ctx, present.ID)
	require.NoError(t, err)
	assert.Equal(File{Path: filepath.Join(f.buildTop, "golden", "a.json"), ContentType: "application/json"}, file)

	_, err = f.service.ExpectedFile(ctx, escaping.ID)
	assert.True(errors.Is(err, golden.ErrNotFound))

	_, err = f.service.ExpectedFile(ctx, "unknown")
	assert.True(errors.Is(err, golden.ErrNotFound))
}

func TestPresubmit(t *testing.T) {
	assert := assert.New(t)
	source := &fakeSource{
		names:     []string{"FooTest_bar"},
		artifacts: map[string][]string{"FooTest_bar": {"FooTest/bar.actual_1.json"}},
	}
	var downloadDirs []string
	f := newFixture(t, func(c *ServiceConfig) {
		c.Sources = func(_ context.Context, invocationID, downloadDir string) (ArtifactSource, error) {
			assert.Equal("I123", invocationID)
			downloadDirs = append(downloadDirs, downloadDir)
			return source, nil
		}
	})
	ctx := context.Background()

	_, err := f.service.FetchArtifact(ctx, "FooTest_bar")
	assert.Equal(golden.ErrNoActiveMode, err)

	names, err := f.service.ListPresubmit(ctx, "I123")
	require.NoError(t, err)
	assert.Equal([]string{"FooTest_bar"}, names)
	assert.Equal(State{Phase: Active, Mode: PresubmitMode("I123")}, f.service.State())
	require.Len(t, f.factory.configs, 1)
	assert.Equal(golden.PresubmitWatcher, f.factory.configs[0].Type)
	assert.Equal(downloadDirs[0], f.factory.configs[0].DownloadDir)
	assert.Equal(filepath.Join(f.service.modeDir(PresubmitMode("I123")), "downloads"), downloadDirs[0])

	g, err := f.service.FetchArtifact(ctx, "FooTest_bar")
	require.NoError(t, err)
	assert.Equal("FooTest_bar", g.GoldenName)
	assert.Equal(testServer+"/golden/c0ffee/FooTest/bar.actual_1.json", g.ActualURL)

	// the second fetch downloads nothing and still finds the golden
	g, err = f.service.FetchArtifact(ctx, "FooTest_bar")
	require.NoError(t, err)
	assert.Equal("FooTest_bar", g.GoldenName)

	_, err = f.service.FetchArtifact(ctx, "Unknown")
	assert.True(errors.Is(err, golden.ErrNotFound))

	// listing again reuses the entity
	_, err = f.service.ListPresubmit(ctx, "I123")
	require.NoError(t, err)
	assert.Len(downloadDirs, 1)
	assert.Equal(2, source.lists)

	_, err = f.service.SelectMode(ctx, PresubmitMode("I123"))
	assert.NoError(err)
}

func TestPresubmitFailures(t *testing.T) {
	testCases := []struct {
		Description  string
		SourceErr    error
		ListErr      error
		ExpectedCode int
	}{
		{
			Description:  "Auth exchange fails",
			SourceErr:    golden.ErrAuthExpired,
			ExpectedCode: http.StatusUnauthorized,
		},
		{
			Description:  "Upstream 500",
			ListErr:      &artifact.StatusError{Code: http.StatusInternalServerError, Err: golden.ErrBackendUnavailable},
			ExpectedCode: http.StatusServiceUnavailable,
		},
		{
			Description:  "Upstream 403",
			ListErr:      &artifact.StatusError{Code: http.StatusForbidden, Err: golden.ErrPermissionDenied},
			ExpectedCode: http.StatusForbidden,
		},
		{
			Description:  "Unexpected",
			ListErr:      errors.New("boom"),
			ExpectedCode: http.StatusInternalServerError,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.Description, func(t *testing.T) {
			assert := assert.New(t)
			source := &fakeSource{listErr: tc.ListErr}
			f := newFixture(t, func(c *ServiceConfig) {
				c.Sources = func(context.Context, string, string) (ArtifactSource, error) {
					if tc.SourceErr != nil {
						return nil, tc.SourceErr
					}
					return source, nil
				}
			})

			_, err := f.service.ListPresubmit(context.Background(), "I123")
			require.Error(t, err)
			assert.Equal(tc.ExpectedCode, statusCode(err))
			assert.Equal(Failed, f.service.State().Phase)
			assert.Empty(f.service.modes)
		})
	}
}

func TestGerrit(t *testing.T) {
	assert := assert.New(t)
	pairs := []model.GerritGolden{{ID: "g1", Result: "NONE", DataSource: model.GerritDataSource}}
	f := newFixture(t, func(c *ServiceConfig) { c.Gerrit = fakeGerrit{pairs: pairs} })
	ctx := context.Background()

	g := cachedGolden(t, f.service.modeDir(AtestMode), "a.actual.json", "frameworks/golden/a.json")
	f.factory.discover = []golden.CachedGolden{g}
	_, err := f.service.SelectMode(ctx, AtestMode)
	require.NoError(t, err)

	assert.Equal(pairs, f.service.Gerrit(ctx, "left", "right"))

	// the active mode survives the pair synthesis
	assert.Equal(State{Phase: Active, Mode: AtestMode}, f.service.State())
	assert.Len(f.service.modes, 1)
	assert.NotContains(f.service.modes, GerritMode)
	assert.Len(f.service.Goldens(ctx), 1)

	p, err := f.service.Promote(ctx, []string{g.ID})
	require.NoError(t, err)
	assert.Equal(model.PromoteReport{g.ID: UpdatedStatus}, p.Report)
}

func TestGerritNotConfigured(t *testing.T) {
	f := newFixture(t, nil)
	assert.Empty(t, f.service.Gerrit(context.Background(), "left", "right"))
	assert.Equal(t, State{}, f.service.State())
}

func TestStateJSON(t *testing.T) {
	data, err := State{Phase: Failed, Mode: "Pixel 7", Err: errNotRooted}.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"phase": "FAILED", "mode": "Pixel 7", "reason": "device refused to restart adbd as root"}`, string(data))

	data, err = State{}.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"phase": "UNSELECTED"}`, string(data))
}
