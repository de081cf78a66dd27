// Package logext provides the small log.Backend-like wrapper the rest
// of this module uses to hand out named loggers over op/go-logging.
package logext

import (
	"io"
	"os"

	"github.com/op/go-logging"
)

// Backend mints named loggers that all share one output stream and
// level, mirroring the teacher's logBackend.GetLogger(name) call sites.
type Backend struct {
	level    logging.Level
	backend  logging.LeveledBackend
	disabled bool
}

// New creates a Backend writing to w (os.Stderr if nil) at the given
// level ("DEBUG", "INFO", "NOTICE", "WARNING", "ERROR", "CRITICAL").
func New(w io.Writer, level string, disabled bool) (*Backend, error) {
	if w == nil {
		w = os.Stderr
	}
	lvl, err := logging.LogLevel(level)
	if err != nil {
		return nil, err
	}
	fmtr := logging.NewBackendFormatter(logging.NewLogBackend(w, "", 0),
		logging.MustStringFormatter("%{time:15:04:05.000} %{level:.4s} %{module}: %{message}"))
	leveled := logging.AddModuleLevel(fmtr)
	leveled.SetLevel(lvl, "")
	return &Backend{level: lvl, backend: leveled, disabled: disabled}, nil
}

// GetLogger returns a logger scoped to name.
func (b *Backend) GetLogger(name string) *logging.Logger {
	log := logging.MustGetLogger(name)
	if b.disabled {
		log.SetBackend(logging.AddModuleLevel(logging.NewBackendFormatter(
			logging.NewLogBackend(io.Discard, "", 0), logging.MustStringFormatter("%{message}"))))
		return log
	}
	log.SetBackend(b.backend)
	return log
}
