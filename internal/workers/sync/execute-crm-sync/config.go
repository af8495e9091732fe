// internal/workers/sync/execute-crm-sync/config.go
package executecrmsync

import "time"

type Config struct {
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 120 * time.Second,
	}
}
