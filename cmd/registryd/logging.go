package main

import (
	"fmt"

	bugsnaghook "github.com/Shopify/logrus-bugsnag"
	bugsnag "github.com/bugsnag/bugsnag-go"
	logstash "github.com/bshuster-repo/logrus-logstash-hook"
	"github.com/sirupsen/logrus"

	"github.com/PThorpe92/Floundr/config"
)

// configureLogging sets the standard logger's level and formatter from
// cfg, matching the teacher's configureLogging (generalized to plain
// logrus since this repository has no GitLab LabKit dependency).
func configureLogging(cfg *config.Configuration) error {
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("registryd: parsing log level: %w", err)
	}
	logrus.SetLevel(level)

	switch cfg.Log.Formatter {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	case "logstash":
		logrus.SetFormatter(&logstash.LogstashFormatter{
			Formatter: &logrus.JSONFormatter{},
			Fields:    logrus.Fields{"type": "registryd"},
		})
	default:
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}

// configureReporting wires an optional Bugsnag hook reporting 5xx-class
// log entries to an external collector, matching the teacher's
// configureReporting except driven by a logrus.Hook (this repository's
// ambient stack) rather than errortracking middleware.
func configureReporting(cfg *config.Configuration) error {
	if cfg.Reporting.BugsnagAPIKey == "" {
		return nil
	}
	bugsnag.Configure(bugsnag.Configuration{APIKey: cfg.Reporting.BugsnagAPIKey})
	hook, err := bugsnaghook.NewBugsnagHook()
	if err != nil {
		return fmt.Errorf("registryd: configuring bugsnag hook: %w", err)
	}
	logrus.AddHook(hook)
	return nil
}
