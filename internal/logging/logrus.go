package logging

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

var logg *logrus.Logger

func init() {
	logg = logrus.New()
	logg.SetFormatter(&logrus.JSONFormatter{})
	logg.SetOutput(os.Stdout)
	logg.SetLevel(logrus.InfoLevel)
}

// GetLogger returns the shared application logger.
func GetLogger() *logrus.Logger {
	return logg
}

// Configure applies the configured log level; unknown levels keep info.
func Configure() {
	viper.SetDefault("log.level", "info")
	if lvl, err := logrus.ParseLevel(viper.GetString("log.level")); err == nil {
		logg.SetLevel(lvl)
	}
}
