package model

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	ActivityOutcomeSucceeded = "succeeded"
	ActivityOutcomeFailed    = "failed"
	ActivityOutcomeRefused   = "refused"

	activityActionMaxLength  = 64
	activityTargetMaxLength  = 200
	activityActorMaxLength   = 200
	activityDetailMaxLength  = 2000
	activityOutcomeMaxLength = 16
)

var (
	ErrInvalidActivityAction  = errors.New("invalid_activity_action")
	ErrInvalidActivityOutcome = errors.New("invalid_activity_outcome")
)

// ActivityEntry records the outcome of one console operation against the backend.
type ActivityEntry struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	Action     string    `gorm:"not null;size:64;index" json:"action"`
	Target     string    `gorm:"size:200;index" json:"target"`
	Actor      string    `gorm:"size:200" json:"actor"`
	Outcome    string    `gorm:"not null;size:16;index" json:"outcome"`
	Detail     string    `gorm:"size:2000" json:"detail"`
	OccurredAt time.Time `gorm:"not null;index" json:"occurred_at"`
}

// ActivityInput holds the raw values used to construct an ActivityEntry.
type ActivityInput struct {
	Action   string
	Target   string
	Actor    string
	Outcome  string
	Detail   string
	Occurred time.Time
}

// NewActivityEntry constructs a validated ActivityEntry.
func NewActivityEntry(input ActivityInput) (ActivityEntry, error) {
	action := strings.TrimSpace(input.Action)
	if action == "" {
		return ActivityEntry{}, ErrInvalidActivityAction
	}
	outcome := strings.ToLower(strings.TrimSpace(input.Outcome))
	switch outcome {
	case ActivityOutcomeSucceeded, ActivityOutcomeFailed, ActivityOutcomeRefused:
	default:
		return ActivityEntry{}, ErrInvalidActivityOutcome
	}
	occurred := input.Occurred
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}
	return ActivityEntry{
		ID:         uuid.NewString(),
		Action:     truncateString(action, activityActionMaxLength),
		Target:     truncateString(strings.TrimSpace(input.Target), activityTargetMaxLength),
		Actor:      truncateString(strings.TrimSpace(input.Actor), activityActorMaxLength),
		Outcome:    truncateString(outcome, activityOutcomeMaxLength),
		Detail:     truncateString(strings.TrimSpace(input.Detail), activityDetailMaxLength),
		OccurredAt: occurred,
	}, nil
}

func truncateString(value string, max int) string {
	if len(value) <= max {
		return value
	}
	return value[:max]
}
