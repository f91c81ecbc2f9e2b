// Package logsink opens the engine's append-only log file and mirrors every
// line to a second writer, usually stdout.
package logsink

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// TimestampFormat is the timestamp layout of every log line.
const TimestampFormat = "2006-01-02 15:04:05"

// Sink owns the log file behind a logger.
type Sink struct {
	Logger *logrus.Logger
	file   *os.File
}

// Open appends to path, creating it if needed, and returns a sink whose
// logger writes each entry to the file and to mirror. A nil mirror logs to
// the file only.
func Open(path string, mirror io.Writer, level logrus.Level) (*Sink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	var out io.Writer = f
	if mirror != nil {
		out = io.MultiWriter(f, mirror)
	}
	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: TimestampFormat,
		DisableColors:   true,
	})
	return &Sink{Logger: logger, file: f}, nil
}

// Path returns the log file path.
func (s *Sink) Path() string {
	return s.file.Name()
}

// Close flushes and closes the log file. Entries logged afterwards go to the
// mirror only, or are discarded.
func (s *Sink) Close() error {
	s.Logger.SetOutput(io.Discard)
	if err := s.file.Sync(); err != nil {
		_ = s.file.Close()
		return fmt.Errorf("syncing log file: %w", err)
	}
	return s.file.Close()
}
