package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const logDir = "logs"

func newBaseLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime: "time",
			logrus.FieldKeyMsg:  "msg",
		},
	})

	level, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

// NewLogger writes JSON lines to logs/<component>.log through a buffered
// async writer and mirrors them to stdout.
func NewLogger(component string) *logrus.Logger {
	logger := newBaseLogger()

	logFile := filepath.Clean(filepath.Join(logDir, component+".log"))
	if !strings.HasPrefix(logFile, logDir+string(filepath.Separator)) {
		log.Fatalf("invalid log file path: must be in %s directory", logDir)
	}
	if err := os.MkdirAll(logDir, 0750); err != nil {
		log.Fatalf("failed to create logs directory: %v", err)
	}

	asyncWriter, err := NewAsyncFileWriter(logFile, 32*1024)
	if err != nil {
		log.Fatalf("failed to initialize async log writer: %v", err)
	}
	logger.SetOutput(asyncWriter)
	logger.AddHook(NewConsoleHook(os.Stdout))
	logger.ExitFunc = func(code int) {
		asyncWriter.Close()
		os.Exit(code)
	}

	return logger
}

// NewConsoleLogger is used by one-shot CLI commands that should not touch
// the logs directory.
func NewConsoleLogger(out io.Writer) *logrus.Logger {
	logger := newBaseLogger()
	logger.SetOutput(out)
	return logger
}

// Close flushes the async file writer behind logger, if any.
func Close(logger *logrus.Logger) {
	if w, ok := logger.Out.(*AsyncFileWriter); ok {
		w.Close()
		if dropped := w.Dropped(); dropped > 0 {
			fmt.Fprintf(os.Stderr, "%d log lines dropped under backpressure\n", dropped)
		}
	}
}
