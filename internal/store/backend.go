package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Config selects and configures the backend at startup
type Config struct {
	Backend             string
	Driver              string
	URL                 string
	File                string
	Disabled            bool
	FallbackPassthrough bool
	FlushInterval       time.Duration
}

// Open builds the configured backend. When the relational store cannot be
// reached and fallback is enabled, the passthrough backend is returned.
func Open(ctx context.Context, cfg Config, logger *zap.Logger, opts ...Option) (Backend, error) {
	if cfg.Disabled {
		logger.Warn("entity store disabled, running in passthrough mode")
		return NewPassthrough(), nil
	}

	switch cfg.Backend {
	case BackendPassthrough:
		return NewPassthrough(), nil

	case BackendFile:
		fileOpts := append([]Option{WithLogger(logger), WithFlushInterval(cfg.FlushInterval)}, opts...)
		fs, err := NewFileStore(cfg.File, fileOpts...)
		if err != nil {
			return nil, err
		}
		logger.Info("using file store",
			zap.String("path", cfg.File),
			zap.Duration("flush_interval", cfg.FlushInterval))
		return fs, nil

	case BackendSQL, "":
		dialect, err := ParseDialect(cfg.Driver)
		if err != nil {
			return nil, err
		}

		db, err := NewDB(ctx, dialect, cfg.URL)
		if err != nil {
			if cfg.FallbackPassthrough && errors.Is(err, ErrUnavailable) {
				logger.Error("relational store unavailable, falling back to passthrough mode", zap.Error(err))
				return NewPassthrough(), nil
			}
			return nil, err
		}
		logger.Info("using relational store", zap.String("driver", string(dialect)))
		return NewSQLStore(db, dialect, opts...), nil
	}

	return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
}
