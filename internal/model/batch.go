package model

import "time"

// BatchStatus represents the current state of an evaluation batch.
type BatchStatus string

const (
	BatchStatusQueued     BatchStatus = "queued"
	BatchStatusProcessing BatchStatus = "processing"
	BatchStatusCompleted  BatchStatus = "completed"
	BatchStatusFailed     BatchStatus = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s BatchStatus) Terminal() bool {
	return s == BatchStatusCompleted || s == BatchStatusFailed
}

// Mode is the depth of a single document evaluation.
type Mode string

const (
	ModeDetailed Mode = "detailed"
	ModeConcise  Mode = "concise"
)

// EvaluationResult is the outcome of one evaluation or synthesis call.
type EvaluationResult struct {
	Text    string `json:"evaluation,omitempty"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Failed builds an unsuccessful result carrying msg.
func Failed(msg string) EvaluationResult {
	return EvaluationResult{Success: false, Error: msg}
}

// DocumentResult pairs the two independent mode outcomes for one document.
type DocumentResult struct {
	Document Document         `json:"document"`
	Detailed EvaluationResult `json:"detailed"`
	Concise  EvaluationResult `json:"concise"`
}

// Batch is a group of documents submitted together. It is mutated only by
// the queue's drain loop once enqueued.
type Batch struct {
	ID         string            `json:"batch_id"`
	Documents  []Document        `json:"documents"`
	Status     BatchStatus       `json:"status"`
	Progress   int               `json:"progress"`
	Individual []DocumentResult  `json:"individual_results"`
	Synthesis  *EvaluationResult `json:"synthesis_result,omitempty"`
	Error      string            `json:"error,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	FinishedAt time.Time         `json:"finished_at,omitempty"`
}

// Snapshot returns a point-in-time status view of b.
func (b *Batch) Snapshot() StatusSnapshot {
	return StatusSnapshot{
		BatchID:        b.ID,
		Status:         b.Status,
		Progress:       b.Progress,
		DocumentCount:  len(b.Documents),
		CompletedCount: len(b.Individual),
		Error:          b.Error,
		CreatedAt:      b.CreatedAt,
	}
}

// Result copies the fetchable outcome of a completed batch.
func (b *Batch) Result() *BatchResult {
	individual := make([]DocumentResult, len(b.Individual))
	copy(individual, b.Individual)

	var synthesis *EvaluationResult
	if b.Synthesis != nil {
		s := *b.Synthesis
		synthesis = &s
	}

	return &BatchResult{
		BatchID:    b.ID,
		Individual: individual,
		Synthesis:  synthesis,
		CreatedAt:  b.CreatedAt,
		FinishedAt: b.FinishedAt,
	}
}

// StatusSnapshot is the caller-facing status of a batch.
type StatusSnapshot struct {
	BatchID        string      `json:"batch_id"`
	Status         BatchStatus `json:"status"`
	Progress       int         `json:"progress"`
	DocumentCount  int         `json:"document_count"`
	CompletedCount int         `json:"completed_count"`
	Error          string      `json:"error,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
}

// BatchResult is the caller-facing result of a completed batch.
type BatchResult struct {
	BatchID    string            `json:"batch_id"`
	Individual []DocumentResult  `json:"individual_results"`
	Synthesis  *EvaluationResult `json:"synthesis_result,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	FinishedAt time.Time         `json:"finished_at"`
}

// Primary returns the synthesis when present, otherwise the first document's
// detailed evaluation.
func (r *BatchResult) Primary() EvaluationResult {
	if r.Synthesis != nil {
		return *r.Synthesis
	}
	if len(r.Individual) > 0 {
		return r.Individual[0].Detailed
	}
	return Failed("batch produced no results")
}
