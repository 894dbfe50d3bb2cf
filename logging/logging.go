// Package logging configures the process wide logrus logger.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	rotatelogs "github.com/lestrrat/go-file-rotatelogs"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
)

// TimestampFormat is used for every log line.
const TimestampFormat = "2006-01-02 15:04:05.000 Z07:00"

type utcFormatter struct {
	logrus.Formatter
}

func (f utcFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	entry.Time = entry.Time.UTC()
	return f.Formatter.Format(entry)
}

// Options control Setup.
type Options struct {
	Level string // "info" if empty
	JSON  bool
	// Dir, if set, also receives the log in a file rotated daily.
	Dir string
	// Output defaults to os.Stdout.
	Output io.Writer
}

// Setup installs the formatter, level and outputs on the standard logrus
// logger.
func Setup(opts Options) error {
	level := opts.Level
	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	logrus.SetLevel(lvl)

	var lineFormatter logrus.Formatter
	if opts.JSON {
		lineFormatter = &logrus.JSONFormatter{
			TimestampFormat: TimestampFormat,
		}
	} else {
		lineFormatter = &logrus.TextFormatter{
			TimestampFormat:  TimestampFormat,
			FullTimestamp:    true,
			DisableColors:    true,
			QuoteEmptyFields: true,
		}
	}
	formatter := &utcFormatter{lineFormatter}
	logrus.SetFormatter(formatter)
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	logrus.SetOutput(out)

	if opts.Dir == "" || opts.Dir == "-" {
		return nil
	}
	if err := os.MkdirAll(opts.Dir, 0775); err != nil {
		return err
	}
	logFile := filepath.Join(opts.Dir, "bagindexer.log")
	writer, err := rotatelogs.New(
		logFile+".%Y%m%d",
		rotatelogs.WithLinkName(logFile),
		rotatelogs.WithMaxAge(14*24*time.Hour),
		rotatelogs.WithRotationTime(24*time.Hour),
	)
	if err != nil {
		return err
	}
	logrus.AddHook(lfshook.NewHook(lfshook.WriterMap{
		logrus.DebugLevel: writer,
		logrus.InfoLevel:  writer,
		logrus.WarnLevel:  writer,
		logrus.ErrorLevel: writer,
		logrus.FatalLevel: writer,
		logrus.PanicLevel: writer,
	}, formatter))
	return nil
}
