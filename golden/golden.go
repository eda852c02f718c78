// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package golden

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"emperror.dev/emperror"
	"github.com/google/uuid"
	"github.com/spf13/cast"
	"github.com/tidwall/gjson"
)

// MetadataKey is the top level key of the descriptor block embedded in every
// actual artifact.
const MetadataKey = "//metadata"

// Metadata is the descriptor a test run embeds in its actual artifact.
type Metadata struct {
	Result           string
	GoldenRepoPath   string
	GoldenIdentifier string
	TestClassName    string
	TestMethodName   string
	DeviceLocalPath  string

	// VideoLocation is optional.  When set it names a companion recording
	// relative to DeviceLocalPath on the backend and to the watcher directory
	// locally.
	VideoLocation string
}

// CachedGolden is one ingested actual artifact.
type CachedGolden struct {
	Metadata

	// ID is derived from RemoteRef and never changes for the same remote
	// reference.
	ID string

	RemoteRef string
	LocalPath string

	// Checksum changes every time the artifact is loaded.
	Checksum string

	CapturedAt time.Time

	// GoldenName is the logical test name for artifacts fetched from a
	// presubmit invocation.
	GoldenName string

	Updated bool
}

// Loader ingests the artifact materialized at localPath.
type Loader func(remoteRef, localPath string) (CachedGolden, error)

// Hash returns the lowercase hex md5 of s.
func Hash(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Load reads the artifact at localPath, extracts its descriptor and rewrites
// the file without the descriptor block.
func Load(remoteRef, localPath string) (CachedGolden, error) {
	return load(remoteRef, localPath, time.Now().UTC())
}

func load(remoteRef, localPath string, now time.Time) (CachedGolden, error) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return CachedGolden{}, emperror.Wrap(err, "failed to read golden")
	}

	metadata, payload, err := splitDescriptor(data)
	if err != nil {
		return CachedGolden{}, fmt.Errorf("%s: %w", remoteRef, err)
	}

	if err = os.WriteFile(localPath, payload, 0o644); err != nil {
		return CachedGolden{}, emperror.Wrap(err, "failed to rewrite golden")
	}

	return CachedGolden{
		Metadata:   metadata,
		ID:         Hash(remoteRef),
		RemoteRef:  remoteRef,
		LocalPath:  localPath,
		Checksum:   Hash(now.Format(time.RFC3339Nano) + uuid.NewString()),
		CapturedAt: now,
	}, nil
}

// splitDescriptor separates the descriptor block from the comparison payload.
// The payload keeps its original key order and is indented by two spaces.
func splitDescriptor(data []byte) (Metadata, []byte, error) {
	if !gjson.ValidBytes(data) {
		return Metadata{}, nil, fmt.Errorf("%w: artifact is not valid JSON", ErrMalformedResponse)
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return Metadata{}, nil, fmt.Errorf("%w: artifact is not a JSON object", ErrMalformedResponse)
	}

	var (
		descriptor gjson.Result
		body       bytes.Buffer
		first      = true
		keyErr     error
	)
	body.WriteByte('{')
	root.ForEach(func(key, value gjson.Result) bool {
		if key.String() == MetadataKey {
			descriptor = value
			return true
		}
		k, err := json.Marshal(key.String())
		if err != nil {
			keyErr = err
			return false
		}
		if !first {
			body.WriteByte(',')
		}
		first = false
		body.Write(k)
		body.WriteByte(':')
		body.WriteString(value.Raw)
		return true
	})
	body.WriteByte('}')
	if keyErr != nil {
		return Metadata{}, nil, fmt.Errorf("%w: %v", ErrMalformedResponse, keyErr)
	}

	if !descriptor.IsObject() {
		return Metadata{}, nil, fmt.Errorf("%w: missing %s object", ErrMalformedResponse, MetadataKey)
	}
	metadata, err := readMetadata(descriptor)
	if err != nil {
		return Metadata{}, nil, err
	}

	var payload bytes.Buffer
	if err := json.Indent(&payload, body.Bytes(), "", "  "); err != nil {
		return Metadata{}, nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return metadata, payload.Bytes(), nil
}

func readMetadata(descriptor gjson.Result) (Metadata, error) {
	fields, _ := descriptor.Value().(map[string]interface{})

	var missing []string
	required := func(key string) string {
		v, ok := fields[key]
		if !ok || v == nil {
			missing = append(missing, key)
			return ""
		}
		return cast.ToString(v)
	}

	m := Metadata{
		Result:           required("result"),
		GoldenRepoPath:   required("goldenRepoPath"),
		GoldenIdentifier: required("goldenIdentifier"),
		TestClassName:    required("testClassName"),
		TestMethodName:   required("testMethodName"),
		DeviceLocalPath:  required("deviceLocalPath"),
		VideoLocation:    cast.ToString(fields["videoLocation"]),
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return Metadata{}, fmt.Errorf("%w: descriptor is missing %s", ErrMalformedResponse, strings.Join(missing, ", "))
	}
	return m, nil
}
