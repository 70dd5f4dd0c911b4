package schemas

import (
	"time"
)

// RunArtifact is the durable, JSON-compatible record of a completed run,
// keyed by RunID and written for offline audit. It always exists, even when
// collaborators failed mid-run: partial progress is retained.
type RunArtifact struct {
	RunID        string              `json:"run_id"`
	Target       string              `json:"target"`
	StartedAt    time.Time           `json:"started_at"`
	FinishedAt   time.Time           `json:"finished_at"`
	FinalControl ControlDecision     `json:"final_control"`
	StopReason   string              `json:"stop_reason"`
	Steps        []StepRecord        `json:"steps"`
	Anomalies    []AnomalyReport     `json:"anomalies"`
	Baselines    map[string]Baseline `json:"baselines"`
	RiskScores   map[string]float64  `json:"risk_scores"`
}
