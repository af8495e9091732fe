// internal/workers/sessions/expire-sessions/config.go
package expiresessions

import "time"

type Config struct {
	Timeout time.Duration
	// Sessions expiring within this window trigger a reminder.
	ReminderWindow time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout:        60 * time.Second,
		ReminderWindow: 2 * time.Hour,
	}
}
