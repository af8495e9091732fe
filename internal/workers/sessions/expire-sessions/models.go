// internal/workers/sessions/expire-sessions/models.go
package expiresessions

type Input struct{}

// Output reports the sweep result back to the workflow.
type Output struct {
	ExpiredCount  int `json:"expiredCount"`
	RemindedCount int `json:"remindedCount"`
}
