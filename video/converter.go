// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

// Package video turns zipped screenshot sequences into mp4 files.
package video

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/xmidt-org/aurum/command"
	"github.com/xmidt-org/sallust"
	"go.uber.org/zap"
)

const (
	DefaultFFmpegPath = "ffmpeg"
	DefaultFrameRate  = "62.5"

	framePattern = "image_%04d.png"
	videoExt     = ".mp4"
)

// ErrNoFrames is returned when an archive holds no usable png frames.
var ErrNoFrames = errors.New("archive holds no usable png frames")

// Converter produces the video for a screenshots archive.
type Converter interface {
	Convert(ctx context.Context, zipPath string) (string, error)
}

type Config struct {
	// FFmpegPath (Optional) defaults to DefaultFFmpegPath.
	FFmpegPath string

	// FrameRate (Optional) defaults to DefaultFrameRate.
	FrameRate string

	// Executor (Optional) defaults to command.Exec.
	Executor command.Executor

	Logger *zap.Logger
}

// FFmpeg converts archives with the ffmpeg binary.
type FFmpeg struct {
	ffmpeg    string
	frameRate string
	exec      command.Executor
	logger    *zap.Logger
}

func New(config Config) *FFmpeg {
	if len(config.FFmpegPath) == 0 {
		config.FFmpegPath = DefaultFFmpegPath
	}
	if len(config.FrameRate) == 0 {
		config.FrameRate = DefaultFrameRate
	}
	if config.Executor == nil {
		config.Executor = command.Exec
	}
	if config.Logger == nil {
		config.Logger = sallust.Default()
	}
	return &FFmpeg{
		ffmpeg:    config.FFmpegPath,
		frameRate: config.FrameRate,
		exec:      config.Executor,
		logger:    config.Logger,
	}
}

// VideoPath is where the video of zipPath is written: next to the archive,
// with ".zip" replaced by ".mp4".
func VideoPath(zipPath string) string {
	return strings.TrimSuffix(zipPath, filepath.Ext(zipPath)) + videoExt
}

// Convert writes the video of zipPath and returns its path.  A video newer
// than its archive is reused.
func (f *FFmpeg) Convert(ctx context.Context, zipPath string) (string, error) {
	final := VideoPath(zipPath)
	if fresh(zipPath, final) {
		return final, nil
	}

	base := strings.TrimSuffix(filepath.Base(zipPath), filepath.Ext(zipPath))
	tmp, err := os.MkdirTemp(filepath.Dir(zipPath), base+"_ffmpeg_")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(tmp)

	logger := f.logger.With(zap.String("archive", zipPath))
	count, err := extractFrames(zipPath, tmp)
	if err != nil {
		logger.Error("failed extracting frames", zap.Error(err))
		return "", err
	}
	if count == 0 {
		logger.Info("no usable frames, skipping video creation")
		return "", ErrNoFrames
	}

	out := filepath.Join(tmp, base+videoExt)
	_, err = f.exec(ctx, f.ffmpeg,
		"-r", f.frameRate,
		"-i", filepath.Join(tmp, framePattern),
		out,
	)
	if err != nil {
		logger.Error("ffmpeg failed", zap.Error(err))
		return "", err
	}
	if _, err := os.Stat(out); err != nil {
		return "", fmt.Errorf("ffmpeg succeeded but produced no video: %w", err)
	}

	if err := os.Rename(out, final); err != nil {
		return "", err
	}
	logger.Info("created video", zap.String("video", final), zap.Int("frames", count))
	return final, nil
}

func fresh(zipPath, videoPath string) bool {
	z, err := os.Stat(zipPath)
	if err != nil {
		return false
	}
	v, err := os.Stat(videoPath)
	if err != nil || !v.Mode().IsRegular() {
		return false
	}
	return !v.ModTime().Before(z.ModTime())
}

// extractFrames copies the png members of the archive into dir, skipping
// members whose names are absolute or climb out of dir.
func extractFrames(zipPath, dir string) (int, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return 0, fmt.Errorf("invalid archive %s: %w", zipPath, err)
	}
	defer r.Close()

	var count int
	for _, member := range r.File {
		name := member.Name
		if !strings.HasSuffix(strings.ToLower(name), ".png") {
			continue
		}
		if strings.Contains(name, "..") || path.IsAbs(name) || filepath.IsAbs(name) {
			continue
		}
		if err := extract(member, filepath.Join(dir, filepath.FromSlash(name))); err != nil {
			continue
		}
		count++
	}
	return count, nil
}

func extract(member *zip.File, dst string) error {
	src, err := member.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
