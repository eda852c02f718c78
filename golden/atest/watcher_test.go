// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package atest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xmidt-org/aurum/golden"
)

const artifactFmt = `{
  "frame_ids": [0],
  "//metadata": {
    "result": "PASSED",
    "goldenRepoPath": "goldens/%[1]s.json",
    "goldenIdentifier": "%[1]s",
    "testClassName": "AtestClass",
    "testMethodName": "%[1]s",
    "deviceLocalPath": "/data/user/0/com.example/files",
    "videoLocation": "%[2]s"
  }
}`

func writeFile(t *testing.T, p string, contents []byte, compress bool) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	f, err := os.Create(p)
	require.NoError(t, err)
	defer f.Close()
	if !compress {
		_, err = f.Write(contents)
		require.NoError(t, err)
		return
	}
	gz := gzip.NewWriter(f)
	_, err = gz.Write(contents)
	require.NoError(t, err)
	require.NoError(t, gz.Close())
}

func TestRefresh(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	root := t.TempDir()
	dir := t.TempDir()
	writeFile(t, filepath.Join(root, "dir_name", "test_method_1.actual.json_4383267726505225616.txt.gz"),
		[]byte(fmt.Sprintf(artifactFmt, "test_method_1", "videos/test_method_1.mp4")), true)
	writeFile(t, filepath.Join(root, "dir_name", "test_method_2.actual_10536896158799342698.json"),
		[]byte(fmt.Sprintf(artifactFmt, "test_method_2", "")), false)
	writeFile(t, filepath.Join(root, "a", "b", "test_method_3.actual_118505410949600545.json.gz"),
		[]byte(fmt.Sprintf(artifactFmt, "test_method_3", "")), true)
	writeFile(t, filepath.Join(root, "dir_name", "unrelated.actual.json"), []byte("{}"), false)
	writeFile(t, filepath.Join(root, "videos", "test_method_1.actual_99.mp4.gz"), []byte("video"), true)

	w, err := New(Config{Dir: dir, Root: root})
	require.NoError(err)
	require.NoError(w.Refresh(context.Background()))
	assert.Equal(3, w.Len())

	for _, local := range []string{
		"test_method_1_4383267726505225616.actual.json",
		"test_method_2_10536896158799342698.actual.json",
		"test_method_3_118505410949600545.actual.json",
	} {
		data, err := os.ReadFile(filepath.Join(dir, local))
		require.NoError(err, local)
		assert.NotContains(string(data), golden.MetadataKey)
	}

	video, err := os.ReadFile(filepath.Join(dir, "videos", "test_method_1.mp4"))
	require.NoError(err)
	assert.Equal("video", string(video))

	ids := map[string]bool{}
	for _, g := range w.Goldens() {
		ids[g.ID] = true
	}

	require.NoError(w.Refresh(context.Background()))
	assert.Equal(3, w.Len())
	for _, g := range w.Goldens() {
		assert.True(ids[g.ID], "ids must be stable across refreshes")
	}
}

func TestRefreshMissingRoot(t *testing.T) {
	w, err := New(Config{Dir: t.TempDir(), Root: filepath.Join(t.TempDir(), "missing")})
	require.NoError(t, err)
	err = w.Refresh(context.Background())
	assert.True(t, errors.Is(err, golden.ErrBackendUnavailable))
}

func TestRefreshMalformed(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "d", "x.actual_1.json"), []byte(`{"no": "descriptor"}`), false)

	w, err := New(Config{Dir: t.TempDir(), Root: root})
	require.NoError(t, err)
	err = w.Refresh(context.Background())
	assert.True(t, errors.Is(err, golden.ErrMalformedResponse))
	assert.Zero(t, w.Len())
}

func TestDefaults(t *testing.T) {
	assert := assert.New(t)
	_, err := New(Config{})
	assert.Equal(ErrDirEmpty, err)

	t.Setenv("USER", "tester")
	w, err := New(Config{Dir: t.TempDir()})
	require.NoError(t, err)
	assert.Equal("/tmp/atest_result_tester/LATEST/", w.root)
	assert.Equal(golden.AtestWatcher, w.Type())
}
