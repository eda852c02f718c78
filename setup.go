// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/xmidt-org/arrange"
	"github.com/xmidt-org/sallust"
	"go.uber.org/zap"
)

// configuration keys also settable from the command line or the environment
const (
	portKey            = "port"
	serialKey          = "serial"
	androidBuildTopKey = "androidBuildTop"
	clientURLKey       = "clientURL"
	modeKey            = "mode"
)

const defaultClientURL = "http://motion.teams.x20web.corp.google.com/"

func setupFlagSet(fs *pflag.FlagSet) {
	fs.StringP("file", "f", "", "the configuration file to use.  Overrides the search path.")
	fs.BoolP("debug", "d", false, "enables debug logging.  Overrides configuration.")
	fs.BoolP("version", "v", false, "print version and exit")
	fs.IntP("port", "p", 0, "port to run the web UI service on, a free port when 0")
	fs.String("serial", "", "the adb device serial to pull goldens from, defaults to $ANDROID_SERIAL")
	fs.String("android-build-top", "", "the root directory of the android checkout, defaults to $ANDROID_BUILD_TOP")
	fs.String("client-url", defaultClientURL, "the URL where the client app is deployed")
	fs.String("mode", "", "a mode to select at startup, such as ATEST, ROBOLECTRIC or a device identity")
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	bindings := map[string]string{
		portKey:            "port",
		serialKey:          "serial",
		androidBuildTopKey: "android-build-top",
		clientURLKey:       "client-url",
		modeKey:            "mode",
	}
	for key, flag := range bindings {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return err
		}
	}
	if err := v.BindEnv(serialKey, "ANDROID_SERIAL"); err != nil {
		return err
	}
	return v.BindEnv(androidBuildTopKey, "ANDROID_BUILD_TOP")
}

func setup(args []string) (*viper.Viper, *zap.Logger, error) {
	l, err := zap.NewDevelopment() // initial value
	if err != nil {
		return nil, l, fmt.Errorf("failed to create zap logger: %w", err)
	}

	fs := pflag.NewFlagSet(applicationName, pflag.ContinueOnError)
	setupFlagSet(fs)
	err = fs.Parse(args)
	if err != nil {
		return nil, l, fmt.Errorf("failed to create parse args: %w", err)
	}
	if printVersion, _ := fs.GetBool("version"); printVersion {
		printVersionInfo()
	}

	v := viper.New()
	if err = bindFlags(v, fs); err != nil {
		return v, l, fmt.Errorf("failed to bind flags: %w", err)
	}

	if file, _ := fs.GetString("file"); len(file) > 0 {
		v.SetConfigFile(file)
		err = v.ReadInConfig()
	} else {
		v.SetConfigName(applicationName)
		v.AddConfigPath(fmt.Sprintf("/etc/%s", applicationName))
		v.AddConfigPath(fmt.Sprintf("$HOME/.%s", applicationName))
		v.AddConfigPath(".")
		err = v.ReadInConfig()

		// every setting has a default, so the search path is optional
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			err = nil
		}
	}
	if err != nil {
		return v, l, fmt.Errorf("failed to read config file: %w", err)
	}

	if debug, _ := fs.GetBool("debug"); debug {
		v.Set("logging.level", "DEBUG")
	}

	var c sallust.Config
	err = v.UnmarshalKey("logging", &c, arrange.ComposeDecodeHooks(sallust.DecodeHook))
	if err != nil {
		return v, l, err
	}

	l, err = c.Build()
	return v, l, err
}

func printVersionInfo() {
	fmt.Fprintf(os.Stdout, "%s:\n", applicationName)
	fmt.Fprintf(os.Stdout, "  version: \t%s\n", Version)
	fmt.Fprintf(os.Stdout, "  go version: \t%s\n", runtime.Version())
	fmt.Fprintf(os.Stdout, "  built time: \t%s\n", BuildTime)
	fmt.Fprintf(os.Stdout, "  git commit: \t%s\n", GitCommit)
	fmt.Fprintf(os.Stdout, "  os/arch: \t%s/%s\n", runtime.GOOS, runtime.GOARCH)
	os.Exit(0)
}
