// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package golden

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"emperror.dev/emperror"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/klauspost/compress/gzip"
)

// artifactPattern accepts both historical actual file shapes:
//
//	<name>.actual.<ext>_<hash>.txt[.gz]
//	<name>.actual_<hash>.<ext>[.gz]
var artifactPattern = regexp.MustCompile(
	`.*/(?P<name>.*)\.actual((\.(?P<ext1>[a-zA-Z0-9]+)_(?P<hash1>\d+)\.txt)|(_(?P<hash2>\d+)\.(?P<ext2>[a-zA-Z0-9]+)))(?P<compressed>\.gz)?`,
)

// ArtifactName is the parsed form of an actual artifact file name.
type ArtifactName struct {
	Name       string
	Ext        string
	Hash       string
	Compressed bool
}

// ParseArtifactName parses p, which must contain at least one path separator.
func ParseArtifactName(p string) (ArtifactName, bool) {
	match := artifactPattern.FindStringSubmatch(filepath.ToSlash(p))
	if match == nil {
		return ArtifactName{}, false
	}

	group := func(name string) string {
		return match[artifactPattern.SubexpIndex(name)]
	}

	a := ArtifactName{
		Name:       group("name"),
		Ext:        group("ext1"),
		Hash:       group("hash1"),
		Compressed: len(group("compressed")) > 0,
	}
	if len(a.Hash) == 0 {
		a.Ext = group("ext2")
		a.Hash = group("hash2")
	}
	return a, true
}

// Materialize copies src to dst, creating parent directories, and gunzips
// along the way when decompress is set.
func Materialize(src, dst string, decompress bool) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return emperror.Wrap(err, "failed to open artifact")
	}
	defer in.Close()

	var r io.Reader = in
	if decompress {
		gz, err := gzip.NewReader(in)
		if err != nil {
			return emperror.With(emperror.Wrap(err, "failed to decompress artifact"), "path", src)
		}
		defer gz.Close()
		r = gz
	}

	if err = os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return emperror.Wrap(err, "failed to create artifact directory")
	}
	out, err := os.Create(dst)
	if err != nil {
		return emperror.Wrap(err, "failed to create artifact copy")
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()

	_, err = io.Copy(out, r)
	return err
}

// CopyFile copies src to dst, creating parent directories.
func CopyFile(src, dst string) error {
	return Materialize(src, dst, false)
}

// Glob returns the regular files under root matching the doublestar pattern,
// joined with root.
func Glob(root, pattern string) ([]string, error) {
	matches, err := doublestar.Glob(os.DirFS(root), pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, emperror.With(emperror.Wrap(err, "failed to glob"), "root", root, "pattern", pattern)
	}
	for i, m := range matches {
		matches[i] = filepath.Join(root, filepath.FromSlash(m))
	}
	return matches, nil
}

// QuoteMeta escapes the glob metacharacters in s.
func QuoteMeta(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '{', '}', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SafeJoin joins rel onto root and fails with ErrNotFound when the result
// would leave root.
func SafeJoin(root, rel string) (string, error) {
	if len(root) == 0 {
		return "", fmt.Errorf("%w: no root directory", ErrNotFound)
	}
	base, err := filepath.Abs(root)
	if err != nil {
		return "", emperror.Wrap(err, "failed to resolve root")
	}
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("%w: %s is outside %s", ErrNotFound, rel, root)
	}
	joined := filepath.Join(base, filepath.FromSlash(rel))
	r, err := filepath.Rel(base, joined)
	if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s is outside %s", ErrNotFound, rel, root)
	}
	return joined, nil
}
