package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"storeroom-backend/internal/platform/config"
)

// New builds the process logger from config. Unknown levels fall back to info.
func New(c config.LogConfig) *logrus.Logger {
	logg := logrus.New()
	if strings.EqualFold(c.Format, "text") {
		logg.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logg.SetFormatter(&logrus.JSONFormatter{})
	}
	lvl, err := logrus.ParseLevel(c.Level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logg.SetLevel(lvl)
	logg.SetOutput(os.Stdout)
	return logg
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *logrus.Logger {
	logg := logrus.New()
	logg.SetOutput(io.Discard)
	return logg
}

func LogError(logger logrus.FieldLogger, moduleName string, funcName string, context string, data any, err error) {
	fields := logrus.Fields{
		"module":   moduleName,
		"funcName": funcName,
		"context":  context,
	}
	if data != nil {
		fields["data"] = data
	}
	logger.WithFields(fields).Error(err.Error())
}
