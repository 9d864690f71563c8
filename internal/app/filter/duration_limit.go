package filter

import (
	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"github.com/melba-bot/melba/internal/domain/track"
)

// DurationLimitConfig represents the configuration for DurationLimit.
// MaxMinutes of zero means no upper limit.
type DurationLimitConfig struct {
	MinMinutes float64 `mapstructure:"min_minutes" default:"0" validate:"gte=0"`
	MaxMinutes float64 `mapstructure:"max_minutes" validate:"gte=0"`
}

// DurationLimit rejects items whose catalog duration falls outside the
// configured bounds. Items with unknown duration (streams) pass.
type DurationLimit struct {
	config DurationLimitConfig
}

// NewDurationLimit creates a duration filter from raw config settings.
func NewDurationLimit(settings map[string]any) (*DurationLimit, error) {
	var config DurationLimitConfig
	if err := mapstructure.Decode(settings, &config); err != nil {
		return nil, errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&config); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(config); err != nil {
		return nil, errors.Wrap(err, "validation failed")
	}
	if config.MaxMinutes > 0 && config.MinMinutes > config.MaxMinutes {
		return nil, errors.New("min_minutes cannot be greater than max_minutes")
	}
	return &DurationLimit{config: config}, nil
}

// Name returns the filter name.
func (f *DurationLimit) Name() string {
	return "duration_limit"
}

// Check rejects items outside the configured duration bounds.
func (f *DurationLimit) Check(item *track.QueueItem, _ []*track.QueueItem) Result {
	d := item.EffectiveDuration()
	if d <= 0 {
		return Accept()
	}

	minutes := d.Minutes()
	if minutes < f.config.MinMinutes {
		return Reject("duration_limit")
	}
	if f.config.MaxMinutes > 0 && minutes > f.config.MaxMinutes {
		return Reject("duration_limit")
	}
	return Accept()
}
