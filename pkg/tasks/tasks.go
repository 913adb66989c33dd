// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

import (
	"fmt"
	"time"
)

// ChatExchangeEvent is published after every successful generation and archived asynchronously.
type ChatExchangeEvent struct {
	UserName  string    `json:"user_name"`
	ModelName string    `json:"model_name"`
	Message   string    `json:"message"`
	Response  string    `json:"response"`
	CreatedAt time.Time `json:"created_at"`
}

// Key identifies the event for retry bookkeeping.
func (e ChatExchangeEvent) Key() string {
	return fmt.Sprintf("%s|%s|%d", e.UserName, e.ModelName, e.CreatedAt.UnixNano())
}
