// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"

	"github.com/xmidt-org/aurum/golden"
)

// Mode keys that are not device identities.
const (
	AtestMode       = "ATEST"
	RobolectricMode = "ROBOLECTRIC"
	GerritMode      = "GERRIT"

	presubmitPrefix = "PRESUBMIT/"
)

// PresubmitMode is the mode cache key of a presubmit invocation.
func PresubmitMode(invocationID string) string {
	return presubmitPrefix + invocationID
}

// ArtifactSource lists and downloads the artifacts of a presubmit run.
type ArtifactSource interface {
	ListArtifacts(ctx context.Context) ([]string, error)
	DownloadForTestName(ctx context.Context, testName string) ([]string, error)
}

// Ingester takes downloaded artifacts into a watcher cache.
type Ingester interface {
	Ingest(ctx context.Context, filenames []string, testName string) error
}

// TestEntity is everything cached for one mode.  Source is only set for
// presubmit modes.
type TestEntity struct {
	Watcher golden.Watcher
	Source  ArtifactSource
}
