// internal/artifacts/sink.go
package artifacts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	"github.com/xkilldash9x/reportcast/internal/config"
)

// Sink stores a captured image under name and returns where it went.
type Sink interface {
	Store(ctx context.Context, name string, data []byte) (string, error)
}

// LocalSink writes artifacts into a directory.
type LocalSink struct {
	dir string
}

// NewLocalSink creates a sink writing into dir. The directory is created on first write.
func NewLocalSink(dir string) *LocalSink {
	return &LocalSink{dir: dir}
}

func (s *LocalSink) Store(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create artifact dir: %w", err)
	}
	path := filepath.Join(s.dir, filepath.Base(name))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}
	return path, nil
}

// MultiSink fans an artifact out to several sinks. Every sink is attempted;
// the first location that succeeded is returned.
type MultiSink struct {
	sinks  []Sink
	logger *zap.Logger
}

// NewMultiSink combines sinks. Nil entries are skipped.
func NewMultiSink(logger *zap.Logger, sinks ...Sink) *MultiSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &MultiSink{logger: logger.Named("artifacts")}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Len returns the number of configured sinks.
func (m *MultiSink) Len() int { return len(m.sinks) }

func (m *MultiSink) Store(ctx context.Context, name string, data []byte) (string, error) {
	var (
		first string
		errs  []error
	)
	for _, s := range m.sinks {
		loc, err := s.Store(ctx, name, data)
		if err != nil {
			m.logger.Warn("Artifact sink failed.", zap.String("artifact", name), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		m.logger.Info("Artifact stored.", zap.String("location", loc), zap.Int("bytes", len(data)))
		if first == "" {
			first = loc
		}
	}
	if first == "" && len(errs) > 0 {
		return "", errors.Join(errs...)
	}
	return first, nil
}

// FromConfig builds the configured sinks. It returns nil when artifacts are
// disabled entirely.
func FromConfig(ctx context.Context, cfg config.ArtifactsConfig, logger *zap.Logger) (Sink, error) {
	var sinks []Sink
	if cfg.Dir != "" {
		dir, err := homedir.Expand(cfg.Dir)
		if err != nil {
			return nil, fmt.Errorf("failed to expand artifacts dir: %w", err)
		}
		sinks = append(sinks, NewLocalSink(dir))
	}
	if cfg.S3.Bucket != "" {
		s3Sink, err := NewS3SinkFromConfig(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s3Sink)
	}
	if len(sinks) == 0 {
		return nil, nil
	}
	return NewMultiSink(logger, sinks...), nil
}
