// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"emperror.dev/emperror"
	"github.com/xmidt-org/aurum/golden"
	"github.com/xmidt-org/aurum/golden/device"
	"github.com/xmidt-org/aurum/golden/factory"
	"github.com/xmidt-org/aurum/model"
	"github.com/xmidt-org/aurum/video"
	"github.com/xmidt-org/sallust"
	"go.uber.org/zap"
)

const screenshotsSuffix = "screenshots.zip"

var (
	errNotRooted       = errors.New("device refused to restart adbd as root")
	errNotIngestible   = errors.New("active watcher does not accept downloaded artifacts")
	errEmptyRepoPath   = errors.New("golden has no repository path")
	errNoDeviceSupport = errors.New("device modes are not configured")
)

// S is the mode coordinator the HTTP handlers talk to.
type S interface {
	Modes(ctx context.Context) []string
	SelectMode(ctx context.Context, mode string) ([]model.Golden, error)
	Refresh(ctx context.Context, clear bool) ([]model.Golden, error)
	Goldens(ctx context.Context) []model.Golden
	ListPresubmit(ctx context.Context, invocationID string) ([]string, error)
	FetchArtifact(ctx context.Context, testName string) (model.Golden, error)
	Promote(ctx context.Context, ids []string) (Promotion, error)
	GoldenFile(ctx context.Context, rel string) (File, error)
	ExpectedFile(ctx context.Context, id string) (File, error)
	Gerrit(ctx context.Context, left, right string) []model.GerritGolden
	State() State
}

// DeviceFinder maps attached device identities to serial numbers.
type DeviceFinder interface {
	Devices(ctx context.Context) map[string]string
}

// Device is an attached device that can be switched to a root shell.
type Device interface {
	device.Runner
	RunAsRoot(ctx context.Context) (bool, error)
}

// DeviceConnector opens the device with the given serial number.
type DeviceConnector func(serial string) (Device, error)

// SourceFactory builds the artifact source of a presubmit invocation.
// downloadDir is owned by the returned source.
type SourceFactory func(ctx context.Context, invocationID, downloadDir string) (ArtifactSource, error)

// PairDownloader synthesizes the golden pair of two Gerrit file revisions.
type PairDownloader interface {
	Download(ctx context.Context, left, right string) []model.GerritGolden
}

// File is a local file ready to be served.
type File struct {
	Path        string
	ContentType string
}

type Config struct {
	// TempDir holds one directory per mode.
	TempDir string `validate:"required"`

	// BuildTop is the source checkout goldens are promoted into.
	BuildTop string `validate:"required"`

	// ServerAddress prefixes every URL handed to the client.
	ServerAddress string `validate:"required"`

	// AtestRoot (Optional) defaults to the atest watcher's own default.
	AtestRoot string

	// RobolectricRoot (Optional) defaults to the robolectric watcher's own
	// default.
	RobolectricRoot string
}

type ServiceConfig struct {
	Config Config

	// Watchers (Optional) defaults to factory.New.
	Watchers factory.Func

	// Finder and Connect are required for device modes.
	Finder  DeviceFinder
	Connect DeviceConnector

	// Sources is required for presubmit modes.
	Sources SourceFactory

	// Gerrit is required for the Gerrit mode.
	Gerrit PairDownloader

	// Converter (Optional) turns screenshot archives into videos.
	Converter video.Converter

	Measures *Measures
	Logger   *zap.Logger
}

// Service owns the mode cache and the active TestEntity.  One mutex
// serializes every mode cache and watcher mutation.
type Service struct {
	lock    sync.Mutex
	modes   map[string]*TestEntity
	devices map[string]string
	current *TestEntity
	state   State

	config    Config
	watchers  factory.Func
	finder    DeviceFinder
	connect   DeviceConnector
	sources   SourceFactory
	gerrit    PairDownloader
	converter video.Converter
	measures  *Measures
	logger    *zap.Logger
}

func NewService(config ServiceConfig) (*Service, error) {
	if err := validate.Struct(config.Config); err != nil {
		return nil, emperror.Wrap(err, "invalid session config")
	}
	if config.Watchers == nil {
		config.Watchers = factory.New
	}
	if config.Logger == nil {
		config.Logger = sallust.Default()
	}
	if err := os.MkdirAll(config.Config.TempDir, 0o755); err != nil {
		return nil, emperror.With(emperror.Wrap(err, "failed to create temp dir"), "dir", config.Config.TempDir)
	}

	return &Service{
		modes:     map[string]*TestEntity{},
		devices:   map[string]string{},
		config:    config.Config,
		watchers:  config.Watchers,
		finder:    config.Finder,
		connect:   config.Connect,
		sources:   config.Sources,
		gerrit:    config.Gerrit,
		converter: config.Converter,
		measures:  config.Measures,
		logger:    config.Logger,
	}, nil
}

func (s *Service) State() State {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.state
}

// Modes lists the attached devices followed by the fixed modes.  The device
// list is remembered for SelectMode.
func (s *Service) Modes(ctx context.Context) []string {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.discoverDevices(ctx)
	modes := make([]string, 0, len(s.devices)+2)
	for identity := range s.devices {
		modes = append(modes, identity)
	}
	sort.Strings(modes)
	return append(modes, AtestMode, RobolectricMode)
}

func (s *Service) discoverDevices(ctx context.Context) {
	if s.finder == nil {
		return
	}
	s.devices = s.finder.Devices(ctx)
}

// SelectMode activates mode.  A cached mode is activated as is.  Otherwise
// its watcher is built, runs its initial discovery and is cached only when
// every step succeeded.
func (s *Service) SelectMode(ctx context.Context, mode string) ([]model.Golden, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	logger := sallust.Get(ctx).With(zap.String("mode", mode))
	if e, ok := s.modes[mode]; ok {
		s.activate(mode, e)
		s.measures.selection(e.Watcher.Type().String(), CachedOutcome)
		logger.Info("activated cached mode")
		return s.serialize(e.Watcher), nil
	}

	s.current = nil
	s.state = State{Phase: Resolving, Mode: mode}
	e, err := s.resolve(ctx, mode)
	if err != nil {
		s.state = State{Phase: Failed, Mode: mode, Err: err}
		s.measures.selection(modeType(mode), FailureOutcome)
		logger.Error("failed to activate mode", zap.Error(err))
		return nil, &ModeError{Mode: mode, Err: err}
	}

	s.modes[mode] = e
	s.activate(mode, e)
	s.measures.selection(e.Watcher.Type().String(), CreatedOutcome)
	logger.Info("activated new mode", zap.Int("goldens", len(e.Watcher.Goldens())))
	return s.serialize(e.Watcher), nil
}

func (s *Service) resolve(ctx context.Context, mode string) (*TestEntity, error) {
	config := factory.Config{
		Dir:    s.modeDir(mode),
		Logger: s.logger,
	}

	switch {
	case mode == AtestMode:
		config.Type = golden.AtestWatcher
		config.Root = s.config.AtestRoot
	case mode == RobolectricMode:
		config.Type = golden.RobolectricWatcher
		config.Root = s.config.RobolectricRoot
	case mode == GerritMode || strings.HasPrefix(mode, presubmitPrefix):
		return nil, fmt.Errorf("%w: mode %s has not been loaded", golden.ErrNotFound, mode)
	default:
		runner, err := s.rootedDevice(ctx, mode)
		if err != nil {
			return nil, err
		}
		config.Type = golden.DeviceWatcher
		config.Runner = runner
	}

	w, err := s.watchers(ctx, config)
	if err != nil {
		return nil, err
	}
	return &TestEntity{Watcher: w}, nil
}

func (s *Service) rootedDevice(ctx context.Context, identity string) (Device, error) {
	if s.connect == nil {
		return nil, errNoDeviceSupport
	}
	serial, ok := s.devices[identity]
	if !ok {
		s.discoverDevices(ctx)
		serial, ok = s.devices[identity]
	}
	if !ok {
		return nil, fmt.Errorf("%w: no attached device %s", golden.ErrNotFound, identity)
	}

	d, err := s.connect(serial)
	if err != nil {
		return nil, err
	}
	rooted, err := d.RunAsRoot(ctx)
	if err != nil {
		return nil, err
	}
	if !rooted {
		return nil, errNotRooted
	}
	return d, nil
}

// Refresh rediscovers the active mode's artifacts, emptying its cache first
// when clear is set.
func (s *Service) Refresh(ctx context.Context, clear bool) ([]model.Golden, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.state.Phase != Active || s.current == nil {
		return nil, golden.ErrNoActiveMode
	}
	w := s.current.Watcher
	if clear {
		w.Clean()
	}
	if err := w.Refresh(ctx); err != nil {
		return nil, err
	}
	s.measures.cached(w.Type().String(), len(w.Goldens()))
	return s.serialize(w), nil
}

// Goldens lists the active mode's goldens, or nothing without an active mode.
func (s *Service) Goldens(context.Context) []model.Golden {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.current == nil {
		return []model.Golden{}
	}
	return s.serialize(s.current.Watcher)
}

// ListPresubmit activates the presubmit mode of invocationID and lists the
// test names of its artifacts.  Listing failures are returned unchanged so
// upstream status codes survive.
func (s *Service) ListPresubmit(ctx context.Context, invocationID string) ([]string, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	key := PresubmitMode(invocationID)
	logger := sallust.Get(ctx).With(zap.String("mode", key))
	e, cached := s.modes[key]
	if !cached {
		var err error
		if e, err = s.newPresubmit(ctx, key, invocationID); err != nil {
			s.fail(key, err)
			logger.Error("failed to create presubmit mode", zap.Error(err))
			return nil, err
		}
	}

	names, err := e.Source.ListArtifacts(ctx)
	if err != nil {
		s.fail(key, err)
		logger.Error("failed to list presubmit artifacts", zap.Error(err))
		return nil, err
	}

	s.modes[key] = e
	s.activate(key, e)
	outcome := CreatedOutcome
	if cached {
		outcome = CachedOutcome
	}
	s.measures.selection(golden.PresubmitWatcher.String(), outcome)
	logger.Info("listed presubmit artifacts", zap.Int("tests", len(names)))
	return names, nil
}

func (s *Service) newPresubmit(ctx context.Context, key, invocationID string) (*TestEntity, error) {
	if s.sources == nil {
		return nil, fmt.Errorf("%w: presubmit modes are not configured", golden.ErrBackendUnavailable)
	}
	dir := s.modeDir(key)
	downloads := filepath.Join(dir, "downloads")

	src, err := s.sources(ctx, invocationID, downloads)
	if err != nil {
		return nil, err
	}
	w, err := s.watchers(ctx, factory.Config{
		Type:        golden.PresubmitWatcher,
		Dir:         filepath.Join(dir, "goldens"),
		DownloadDir: downloads,
		Logger:      s.logger,
	})
	if err != nil {
		return nil, err
	}
	return &TestEntity{Watcher: w, Source: src}, nil
}

// FetchArtifact downloads and ingests the artifacts of testName and returns
// the resulting golden.
func (s *Service) FetchArtifact(ctx context.Context, testName string) (model.Golden, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.state.Phase != Active || s.current == nil || s.current.Source == nil {
		return model.Golden{}, golden.ErrNoActiveMode
	}
	e := s.current

	names, err := e.Source.DownloadForTestName(ctx, testName)
	if err != nil {
		return model.Golden{}, err
	}
	if len(names) > 0 {
		ingester, ok := e.Watcher.(Ingester)
		if !ok {
			return model.Golden{}, errNotIngestible
		}
		if err := ingester.Ingest(ctx, names, testName); err != nil {
			return model.Golden{}, err
		}
		s.measures.cached(e.Watcher.Type().String(), len(e.Watcher.Goldens()))
	}

	for _, g := range e.Watcher.Goldens() {
		if g.GoldenName == testName {
			return s.serializeOne(e.Watcher.Dir(), g), nil
		}
	}
	return model.Golden{}, fmt.Errorf("%w: no golden for test %s", golden.ErrNotFound, testName)
}

// Promote copies the selected goldens over their checkout counterparts.
func (s *Service) Promote(ctx context.Context, ids []string) (Promotion, error) {
	if len(ids) == 0 {
		return Promotion{}, fmt.Errorf("%w: no golden ids selected", golden.ErrInvalidRequest)
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	if s.current == nil {
		return Promotion{}, golden.ErrNoActiveMode
	}
	w := s.current.Watcher
	logger := sallust.Get(ctx)

	report := model.PromoteReport{}
	var succeeded int
	for _, id := range ids {
		if _, done := report[id]; done {
			continue
		}

		g, ok := w.Find(id)
		if !ok {
			report[id] = NotFoundStatus
			s.measures.promotion(NotFoundOutcome)
			continue
		}

		if err := s.promote(g); err != nil {
			report[id] = failedStatus + err.Error()
			s.measures.promotion(FailureOutcome)
			logger.Error("failed to promote golden", zap.String("id", id), zap.Error(err))
			continue
		}
		w.MarkUpdated(id)
		report[id] = UpdatedStatus
		s.measures.promotion(UpdatedOutcome)
		succeeded++
	}

	return Promotion{
		Result: promoteResult(succeeded, len(report)),
		Report: report,
	}, nil
}

func (s *Service) promote(g golden.CachedGolden) error {
	if len(g.GoldenRepoPath) == 0 {
		return errEmptyRepoPath
	}
	dst, err := golden.SafeJoin(s.config.BuildTop, g.GoldenRepoPath)
	if err != nil {
		return err
	}
	return golden.CopyFile(g.LocalPath, dst)
}

// GoldenFile resolves rel under the active watcher's directory.  Screenshot
// archives resolve to their video.
func (s *Service) GoldenFile(ctx context.Context, rel string) (File, error) {
	s.lock.Lock()
	var dir string
	if s.current != nil {
		dir = s.current.Watcher.Dir()
	}
	s.lock.Unlock()

	p, err := regularFile(dir, rel)
	if err != nil {
		return File{}, err
	}
	if !strings.HasSuffix(p, screenshotsSuffix) {
		return File{Path: p, ContentType: contentType(p)}, nil
	}

	if s.converter == nil {
		return File{}, fmt.Errorf("%w: video conversion is not configured", golden.ErrNotFound)
	}
	out, err := s.converter.Convert(ctx, p)
	if errors.Is(err, video.ErrNoFrames) {
		return File{}, fmt.Errorf("%w: %v", golden.ErrNotFound, err)
	}
	if err != nil {
		return File{}, err
	}
	return File{Path: out, ContentType: "video/mp4"}, nil
}

// ExpectedFile resolves the checkout counterpart of the golden with id.
func (s *Service) ExpectedFile(_ context.Context, id string) (File, error) {
	s.lock.Lock()
	var (
		g  golden.CachedGolden
		ok bool
	)
	if s.current != nil {
		g, ok = s.current.Watcher.Find(id)
	}
	s.lock.Unlock()

	if !ok {
		return File{}, fmt.Errorf("%w: golden %s", golden.ErrNotFound, id)
	}
	p, err := regularFile(s.config.BuildTop, g.GoldenRepoPath)
	if err != nil {
		return File{}, err
	}
	return File{Path: p, ContentType: "application/json"}, nil
}

// Gerrit synthesizes the pair of two file revisions.  The pair is handed to
// the client only, the mode cache and the active mode are left untouched.
func (s *Service) Gerrit(ctx context.Context, left, right string) []model.GerritGolden {
	if s.gerrit == nil {
		return nil
	}
	return s.gerrit.Download(ctx, left, right)
}

func (s *Service) activate(mode string, e *TestEntity) {
	s.current = e
	s.state = State{Phase: Active, Mode: mode}
	s.measures.cached(e.Watcher.Type().String(), len(e.Watcher.Goldens()))
}

func (s *Service) fail(mode string, err error) {
	s.current = nil
	s.state = State{Phase: Failed, Mode: mode, Err: err}
	s.measures.selection(modeType(mode), FailureOutcome)
}

func (s *Service) modeDir(mode string) string {
	return filepath.Join(s.config.TempDir, strings.ToLower(modeType(mode))+"_"+golden.Hash(mode))
}

func modeType(mode string) string {
	switch {
	case mode == AtestMode, mode == RobolectricMode:
		return mode
	case strings.HasPrefix(mode, presubmitPrefix):
		return golden.PresubmitWatcher.String()
	}
	return golden.DeviceWatcher.String()
}

func (s *Service) serialize(w golden.Watcher) []model.Golden {
	goldens := w.Goldens()
	result := make([]model.Golden, 0, len(goldens))
	for _, g := range goldens {
		result = append(result, s.serializeOne(w.Dir(), g))
	}
	return result
}

func (s *Service) serializeOne(dir string, g golden.CachedGolden) model.Golden {
	rel, err := filepath.Rel(dir, g.LocalPath)
	if err != nil {
		rel = filepath.Base(g.LocalPath)
	}
	base := fmt.Sprintf("%s/golden/%s/", s.config.ServerAddress, g.Checksum)

	result := model.Golden{
		ID:             g.ID,
		Result:         g.Result,
		Label:          g.GoldenIdentifier,
		GoldenRepoPath: g.GoldenRepoPath,
		Updated:        g.Updated,
		TestClassName:  g.TestClassName,
		TestMethodName: g.TestMethodName,
		TestTime:       g.CapturedAt.Format(time.RFC3339),
		GoldenName:     g.GoldenName,
		ActualURL:      base + filepath.ToSlash(rel),
	}
	if _, err := regularFile(s.config.BuildTop, g.GoldenRepoPath); err == nil && len(g.GoldenRepoPath) > 0 {
		result.ExpectedURL = fmt.Sprintf("%s/expected/%s", s.config.ServerAddress, g.ID)
	}
	if len(g.VideoLocation) > 0 {
		result.VideoURL = base + filepath.ToSlash(g.VideoLocation)
	}
	return result
}

// regularFile joins rel onto root and requires the result to be a regular
// file inside root.
func regularFile(root, rel string) (string, error) {
	p, err := golden.SafeJoin(root, rel)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(p)
	if err != nil || !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s", golden.ErrNotFound, rel)
	}
	return p, nil
}

func contentType(p string) string {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".json":
		return "application/json"
	case ".mp4":
		return "video/mp4"
	case ".zip":
		return "application/zip"
	}
	return ""
}
