package main

import (
	"os"

	"github.com/sirupsen/logrus"
)

var logFile *os.File

// SetupLogger 日志写入logPath，打开失败时继续输出到stderr
func SetupLogger(logPath string, level string) {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if lvl, err := logrus.ParseLevel(level); err == nil {
		logrus.SetLevel(lvl)
	} else {
		logrus.Warnf("unknown log level %q, use info", level)
		logrus.SetLevel(logrus.InfoLevel)
	}
	if logPath == "" {
		return
	}

	var err error
	logFile, err = os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		logrus.Warnf("open log file %s fail, err = %v", logPath, err)
		return
	}
	logrus.SetOutput(logFile)
}

func CloseLogger() {
	if logFile != nil {
		_ = logFile.Close()
	}
}
