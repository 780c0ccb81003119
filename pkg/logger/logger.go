package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New configures the standard logrus logger and returns it.
func New(level, format string) *logrus.Logger {
	l := logrus.StandardLogger()
	l.SetOutput(os.Stdout)

	if format == "text" {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{})
	}

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)
	return l
}
