// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"github.com/xmidt-org/aurum/golden/factory"
	"github.com/xmidt-org/aurum/video"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type ServiceIn struct {
	fx.In

	Config    Config
	Watchers  factory.Func
	Finder    DeviceFinder    `optional:"true"`
	Connect   DeviceConnector `optional:"true"`
	Sources   SourceFactory   `optional:"true"`
	Gerrit    PairDownloader  `optional:"true"`
	Converter video.Converter `optional:"true"`
	Measures  Measures
	Logger    *zap.Logger
}

func newService(in ServiceIn) (S, error) {
	return NewService(ServiceConfig{
		Config:    in.Config,
		Watchers:  in.Watchers,
		Finder:    in.Finder,
		Connect:   in.Connect,
		Sources:   in.Sources,
		Gerrit:    in.Gerrit,
		Converter: in.Converter,
		Measures:  &in.Measures,
		Logger:    in.Logger,
	})
}

// Provide builds the service and its metrics.
func Provide() fx.Option {
	return fx.Options(
		ProvideMetrics(),
		fx.Provide(newService),
	)
}

// ProvideHandlers builds one named handler per route.
func ProvideHandlers() fx.Option {
	return fx.Provide(
		fx.Annotated{
			Name:   "list_goldens_handler",
			Target: newListGoldensHandler,
		},
		fx.Annotated{
			Name:   "list_modes_handler",
			Target: newListModesHandler,
		},
		fx.Annotated{
			Name:   "state_handler",
			Target: newStateHandler,
		},
		fx.Annotated{
			Name:   "select_mode_handler",
			Target: newSelectModeHandler,
		},
		fx.Annotated{
			Name:   "refresh_handler",
			Target: newRefreshHandler,
		},
		fx.Annotated{
			Name:   "list_presubmit_handler",
			Target: newListPresubmitHandler,
		},
		fx.Annotated{
			Name:   "fetch_artifact_handler",
			Target: newFetchArtifactHandler,
		},
		fx.Annotated{
			Name:   "update_handler",
			Target: newUpdateHandler,
		},
		fx.Annotated{
			Name:   "update_selected_handler",
			Target: newUpdateSelectedHandler,
		},
		fx.Annotated{
			Name:   "golden_file_handler",
			Target: newGoldenFileHandler,
		},
		fx.Annotated{
			Name:   "expected_file_handler",
			Target: newExpectedFileHandler,
		},
		fx.Annotated{
			Name:   "gerrit_handler",
			Target: newGerritHandler,
		},
	)
}
