package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Stages at which the pipeline reached its decision.
const (
	StageCrisis  = "crisis"
	StageGuard   = "guard"
	StageJudge   = "judge"
	StageEngine  = "engine"
	StageWelcome = "welcome"
)

// DecisionRecord is one audited governance decision.
type DecisionRecord struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	SessionID   string    `json:"session_id,omitempty"`
	Stage       string    `json:"stage"`
	Decision    string    `json:"decision"`
	Reason      string    `json:"reason,omitempty"`
	Missing     []string  `json:"missing"`
	UserMessage string    `json:"user_message"`
	Draft       string    `json:"draft,omitempty"`
	Reply       string    `json:"reply"`
	DurationMS  int64     `json:"duration_ms"`
}

// DecisionCount is the number of records with a given decision code.
type DecisionCount struct {
	Decision string `json:"decision"`
	Count    int    `json:"count"`
}
