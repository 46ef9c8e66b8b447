package core

import "time"

// Outcomes reported to a Recorder.
const (
	OutcomeImported = "imported"
	OutcomeFailed   = "failed"
	OutcomeSkipped  = "skipped"
)

// Recorder receives pipeline measurements. The metrics package provides a
// Prometheus implementation.
type Recorder interface {
	UploadFinished(ok bool, d time.Duration)
	RowsValidated(entity EntityType, status CellStatus, n int)
	RowCommitted(entity EntityType, outcome string)
	CommitFinished(ok bool, d time.Duration)
	CellsCorrected(n int)
	SessionsOpen(n int)
}

type nopRecorder struct{}

func (nopRecorder) UploadFinished(bool, time.Duration)         {}
func (nopRecorder) RowsValidated(EntityType, CellStatus, int)  {}
func (nopRecorder) RowCommitted(EntityType, string)            {}
func (nopRecorder) CommitFinished(bool, time.Duration)         {}
func (nopRecorder) CellsCorrected(int)                         {}
func (nopRecorder) SessionsOpen(int)                           {}
