package checknotificationstatus

import "time"

type Config struct {
	Timeout time.Duration
	// MaxJobIDs bounds one lookup.
	MaxJobIDs int
}

func DefaultConfig() *Config {
	return &Config{
		Timeout:   10 * time.Second,
		MaxJobIDs: 50,
	}
}
