package replstate

import (
	"context"

	"github.com/wal-g/initsync/internal/databases/mongo/models"
)

// ConfigSource provides current replica set configuration.
type ConfigSource interface {
	CurrentConfig(ctx context.Context) (models.ReplSetConfig, error)
}

var _ = []ConfigSource{&StaticConfigSource{}, &DriverConfigSource{}}

// StaticConfigSource returns fixed config or error.
type StaticConfigSource struct {
	Config models.ReplSetConfig
	Err    error
}

// CurrentConfig returns stored result.
func (s *StaticConfigSource) CurrentConfig(_ context.Context) (models.ReplSetConfig, error) {
	return s.Config, s.Err
}

// ConfigGetter is a part of mongo driver reading replica set config.
type ConfigGetter interface {
	ReplSetGetConfig(ctx context.Context) (models.ReplSetConfig, error)
}

// DriverConfigSource reads config with replSetGetConfig command.
type DriverConfigSource struct {
	getter ConfigGetter
}

// NewDriverConfigSource builds DriverConfigSource.
func NewDriverConfigSource(getter ConfigGetter) *DriverConfigSource {
	return &DriverConfigSource{getter: getter}
}

// CurrentConfig fetches and validates config.
func (d *DriverConfigSource) CurrentConfig(ctx context.Context) (models.ReplSetConfig, error) {
	if d.getter == nil {
		return models.ReplSetConfig{}, models.NewError(models.ConfigUnavailable, "mongo client is not set")
	}
	cfg, err := d.getter.ReplSetGetConfig(ctx)
	if err != nil {
		return models.ReplSetConfig{}, err
	}
	if err := cfg.Validate(); err != nil {
		return models.ReplSetConfig{}, models.WrapError(models.ConfigUnavailable, err, "")
	}
	return cfg, nil
}
