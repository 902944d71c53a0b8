// Package app composes the application - configuration loading, logging and
// signal handling for the composer CLI.
package app

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	runtime "github.com/banzaicloud/logrus-runtime-formatter"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// App holds attributes for the composer application
type App struct {
	v *viper.Viper
	// Sync waitgroup to wait for running go routines on termination.
	SyncWG *sync.WaitGroup
	// Composer configuration.
	Config *Configuration
	// TermCh is the channel to terminate the app based on a signal
	TermCh chan os.Signal
	// Logger is the app logger
	Logger *logrus.Logger
}

// New returns a new instance of the composer app
func New(_ context.Context, cfgFile, loglevel string) (*App, error) {
	app := &App{
		v:      viper.New(),
		Config: &Configuration{},
		SyncWG: &sync.WaitGroup{},
		Logger: logrus.New(),
		TermCh: make(chan os.Signal, 1),
	}

	if err := app.LoadConfiguration(cfgFile); err != nil {
		return nil, err
	}

	if loglevel == "" {
		loglevel = app.Config.LogLevel
	}

	// set log level, format
	switch loglevel {
	case "debug":
		app.Logger.Level = logrus.DebugLevel
	case "trace":
		app.Logger.Level = logrus.TraceLevel
	default:
		app.Logger.Level = logrus.InfoLevel
	}

	app.Logger.SetFormatter(
		&runtime.Formatter{ChildFormatter: &logrus.JSONFormatter{}},
	)

	// register for SIGINT, SIGTERM
	signal.Notify(app.TermCh, syscall.SIGINT, syscall.SIGTERM)

	return app, nil
}
