// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package golden

import (
	"context"
	"strings"
)

// Watcher discovers actual artifacts from one backend and keeps the goldens
// it ingested.
type Watcher interface {
	// Refresh discovers new artifacts and merges them into the cache.  An
	// artifact whose remote reference is already cached replaces the prior
	// entry.
	Refresh(ctx context.Context) error

	// Clean empties the cache without touching backend state.
	Clean()

	Goldens() []CachedGolden
	Find(id string) (CachedGolden, bool)
	MarkUpdated(id string) bool

	// Dir is the directory local copies are materialized in.
	Dir() string

	Type() WatcherType
}

// WatcherType selects a Watcher implementation.
type WatcherType int

const (
	UnknownWatcher WatcherType = iota
	DeviceWatcher
	AtestWatcher
	RobolectricWatcher
	PresubmitWatcher
	EmptyWatcher
)

func (t WatcherType) String() string {
	switch t {
	case DeviceWatcher:
		return "DEVICE"
	case AtestWatcher:
		return "ATEST"
	case RobolectricWatcher:
		return "ROBOLECTRIC"
	case PresubmitWatcher:
		return "PRESUBMIT"
	case EmptyWatcher:
		return "NONE"
	}
	return "UNKNOWN"
}

// ParseWatcherType is the inverse of WatcherType.String, ignoring case.
func ParseWatcherType(s string) WatcherType {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEVICE", "FILE":
		return DeviceWatcher
	case "ATEST":
		return AtestWatcher
	case "ROBOLECTRIC":
		return RobolectricWatcher
	case "PRESUBMIT":
		return PresubmitWatcher
	case "NONE", "":
		return EmptyWatcher
	}
	return UnknownWatcher
}

// Empty is the Watcher used before any backend has been selected.
type Empty struct {
	*Cache
}

func NewEmpty() *Empty {
	return &Empty{Cache: NewCache()}
}

func (e *Empty) Refresh(context.Context) error { return nil }

func (e *Empty) Dir() string { return "" }

func (e *Empty) Type() WatcherType { return EmptyWatcher }
