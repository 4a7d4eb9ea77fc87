// internal/alerting/config.go
package alerting

import "time"

type Config struct {
	// EmailEnabled and TopicEnabled select the delivery channels.
	EmailEnabled bool
	FromEmail    string
	Recipients   []string
	TopicEnabled bool
	TopicARN     string
	AWSRegion    string

	// EmptyRateThreshold and LowScoreRateThreshold trip an alert when the
	// recorder window's rate exceeds them.
	EmptyRateThreshold    float64
	LowScoreRateThreshold float64

	// MinSampleSize suppresses alerts until the window holds enough
	// retrievals to be meaningful.
	MinSampleSize int

	// Cooldown is the minimum gap between two alerts of the same kind.
	Cooldown time.Duration

	// CheckInterval is how often the watcher polls the recorder.
	CheckInterval time.Duration
}

func LoadConfig() *Config {
	return &Config{
		EmailEnabled:          false,
		FromEmail:             "alerts@finqa.local",
		TopicEnabled:          false,
		AWSRegion:             "us-east-1",
		EmptyRateThreshold:    0.5,
		LowScoreRateThreshold: 0.6,
		MinSampleSize:         20,
		Cooldown:              15 * time.Minute,
		CheckInterval:         time.Minute,
	}
}
