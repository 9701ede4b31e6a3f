package main

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// setupLogging tees the standard logger into a rotating file when one is
// configured.
func setupLogging(cfg *config) func() {
	if cfg.Log.File == "" {
		return func() {}
	}
	w := &lumberjack.Logger{
		Filename:   cfg.Log.File,
		MaxSize:    cfg.Log.MaxSizeMB, // MB
		MaxBackups: cfg.Log.MaxBackups,
	}
	if w.MaxSize <= 0 {
		w.MaxSize = 32
	}
	log.SetOutput(io.MultiWriter(os.Stderr, w))
	log.Printf("logging to %s", cfg.Log.File)
	return func() {
		log.SetOutput(os.Stderr)
		w.Close()
	}
}
