// internal/stages/parse-time-filter/config.go
package parsetimefilter

import "time"

type Config struct {
	Timeout time.Duration

	// MaxRelativeYears caps "last N years" so a stray large number in a
	// query cannot blow up the filter.
	MaxRelativeYears int
}

func LoadConfig() *Config {
	return &Config{
		Timeout:          2 * time.Second,
		MaxRelativeYears: 25,
	}
}
