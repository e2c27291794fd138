// Package logging builds the *log.Logger values passed to every component.
package logging

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Rotation limits for file output.
const (
	MaxSizeMB  = 10
	MaxBackups = 3
	MaxAgeDays = 28
)

// Output returns the writer loggers should use: a rotating file when file is
// set, stderr otherwise. The returned closer releases the file.
func Output(file string) (io.Writer, io.Closer) {
	if file == "" {
		return os.Stderr, nopCloser{}
	}
	_ = os.MkdirAll(filepath.Dir(file), 0o755)
	lj := &lumberjack.Logger{
		Filename:   file,
		MaxSize:    MaxSizeMB,
		MaxBackups: MaxBackups,
		MaxAge:     MaxAgeDays,
	}
	return lj, lj
}

// New returns a logger writing to w with a bracketed component prefix, e.g.
// New(w, "sync") logs as "[sync] 2026/01/02 15:04:05 ...".
func New(w io.Writer, component string) *log.Logger {
	return log.New(w, "["+component+"] ", log.LstdFlags)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
