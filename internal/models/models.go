package models

import "time"

type ItemStatus string

const (
	ItemSucceeded ItemStatus = "succeeded"
	ItemFailed    ItemStatus = "failed"
	ItemSkipped   ItemStatus = "skipped"
)

// GenerationLog is one audit row per attempted image.
type GenerationLog struct {
	ID             int64
	RunID          string
	UserID         string
	ShotID         string
	Status         ItemStatus
	Prompt         string
	NegativePrompt string
	AppliedRules   string
	OwnCredential  bool
	Error          string
	CreatedAt      time.Time
}
