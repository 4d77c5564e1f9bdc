package status

import "time"

// SyncPhase is the stage a refresh attempt is in
type SyncPhase string

const (
	// SyncPhaseIdle means no refresh is running
	SyncPhaseIdle SyncPhase = "Idle"

	// SyncPhaseFetching means records are being downloaded
	SyncPhaseFetching SyncPhase = "Fetching"

	// SyncPhaseTransforming means records are being converted to features
	SyncPhaseTransforming SyncPhase = "Transforming"

	// SyncPhaseCommitting means the document is being written to the cache
	SyncPhaseCommitting SyncPhase = "Committing"
)

// Outcome is the result of the last finished attempt
type Outcome string

const (
	// OutcomeNone means no attempt has finished yet
	OutcomeNone Outcome = ""

	// OutcomeSucceeded means the last attempt replaced the cache
	OutcomeSucceeded Outcome = "Succeeded"

	// OutcomeFailed means the last attempt left the cache untouched
	OutcomeFailed Outcome = "Failed"
)

// SyncStatus records the progress and history of refresh attempts
type SyncStatus struct {
	// Phase is the current stage; Idle between attempts
	Phase SyncPhase `json:"phase"`

	// Outcome is the result of the last finished attempt
	Outcome Outcome `json:"outcome,omitempty"`

	// Message provides additional information about the status
	Message string `json:"message,omitempty"`

	// Trigger names what started the last attempt (bootstrap, refresh, cli)
	Trigger string `json:"trigger,omitempty"`

	// LastAttempt is when the last attempt started
	LastAttempt *time.Time `json:"lastAttempt,omitempty"`

	// LastAttemptID identifies the last attempt in logs and traces
	LastAttemptID string `json:"lastAttemptId,omitempty"`

	// AttemptCount is the number of attempts since the last success
	AttemptCount int `json:"attemptCount,omitempty"`

	// LastSyncTime is when the last successful attempt finished
	LastSyncTime *time.Time `json:"lastSyncTime,omitempty"`

	// LastSyncHash is the document hash written by the last successful attempt
	LastSyncHash string `json:"lastSyncHash,omitempty"`

	// RecordCount is the number of upstream records seen by the last successful attempt
	RecordCount int `json:"recordCount,omitempty"`

	// FeatureCount is the number of features written by the last successful attempt
	FeatureCount int `json:"featureCount,omitempty"`

	// DroppedCount is the number of records skipped for missing coordinates
	DroppedCount int `json:"droppedCount,omitempty"`

	// WriterVersion is the placesync version that saved this status
	WriterVersion string `json:"writerVersion,omitempty"`
}

// Clone returns a deep copy of s
func (s *SyncStatus) Clone() *SyncStatus {
	if s == nil {
		return nil
	}
	out := *s
	if s.LastAttempt != nil {
		t := *s.LastAttempt
		out.LastAttempt = &t
	}
	if s.LastSyncTime != nil {
		t := *s.LastSyncTime
		out.LastSyncTime = &t
	}
	return &out
}

// InProgress reports whether an attempt is running
func (s *SyncStatus) InProgress() bool {
	return s.Phase != SyncPhaseIdle && s.Phase != ""
}
