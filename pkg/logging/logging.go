package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"
)

func init() {
	// Set the global logger to use standard output by default; ToFile
	// redirects (and tees) this once the root path is known.
	log.SetOutput(os.Stdout)
}

// ToFile mirrors all subsequent log output to a dated file under metaDir, in
// addition to standard output, per the <root>/.ncs/log/<YYYYMMDD>.log layout.
// It returns the opened file so the caller can close it on shutdown.
func ToFile(metaDir string) (*os.File, error) {
	logDir := filepath.Join(metaDir, "log")
	if err := os.MkdirAll(logDir, 0700); err != nil {
		return nil, fmt.Errorf("unable to create log directory: %w", err)
	}

	name := time.Now().Format("20060102") + ".log"
	path := filepath.Join(logDir, name)

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("unable to open log file: %w", err)
	}

	log.SetOutput(io.MultiWriter(os.Stdout, file))

	return file, nil
}
