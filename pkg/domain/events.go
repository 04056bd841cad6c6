package domain

import "time"

// SaveOutcome labels the result of one save attempt.
type SaveOutcome string

const (
	SaveOutcomeSuccess SaveOutcome = "success"
	SaveOutcomeFailure SaveOutcome = "failure"
)

// SaveEvent describes one step of the save scheduler's lifecycle.
type SaveEvent struct {
	Graph    string
	Version  string
	Outcome  SaveOutcome
	Duration time.Duration
	Err      error
}

// StatusEvent describes one reconciliation decision for a node status or
// state update.
type StatusEvent struct {
	NodeID    string
	Source    string // "push" or "poll"
	Timestamp time.Time
}

// ChannelMode is the connectivity mode of the live status channel.
type ChannelMode string

const (
	ModeLive     ChannelMode = "live"
	ModeDegraded ChannelMode = "degraded"
)

// ModeEvent describes a transition of the channel's state machine.
type ModeEvent struct {
	Mode ChannelMode
	// Level is the degradation level n (0 when live). The poll interval is
	// base * 2^(n-1), capped.
	Level        int
	PollInterval time.Duration
}

// LifecycleHooks defines callbacks for observability. All hooks are
// optional and must not block: they fire synchronously on the hot path.
type LifecycleHooks struct {
	OnSaveScheduled   func(*SaveEvent)
	OnSaveStart       func(*SaveEvent)
	OnSaveResult      func(*SaveEvent)
	OnStatusApplied   func(*StatusEvent)
	OnStatusDiscarded func(*StatusEvent)
	OnModeChange      func(*ModeEvent)
}
