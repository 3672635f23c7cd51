// Package ingest provides concurrent batch loading of embedding records.
package ingest

import (
	"sync"
	"time"
)

// Status is the overall state of a batch ingest.
type Status string

const (
	// StatusIngesting indicates records are still being written.
	StatusIngesting Status = "ingesting"
	// StatusDone indicates the batch finished, possibly with per-record failures.
	StatusDone Status = "done"
	// StatusError indicates the batch aborted before processing every record.
	StatusError Status = "error"
)

// ProgressSnapshot is an immutable view of a batch ingest, safe to serialize.
type ProgressSnapshot struct {
	Status         string  `json:"status"`
	Total          int     `json:"total"`
	Processed      int     `json:"processed"`
	Inserted       int     `json:"inserted"`
	Updated        int     `json:"updated"`
	Skipped        int     `json:"skipped"`
	Failed         int     `json:"failed"`
	ProgressPct    float64 `json:"progress_pct"`
	ElapsedSeconds int     `json:"elapsed_seconds"`
	LastError      string  `json:"last_error,omitempty"`
}

// Progress tracks a batch ingest across worker goroutines.
type Progress struct {
	mu sync.RWMutex

	status    Status
	total     int
	inserted  int
	updated   int
	skipped   int
	failed    int
	startTime time.Time
	lastError string
}

// NewProgress creates a tracker for a batch of total records.
func NewProgress(total int) *Progress {
	return &Progress{
		status:    StatusIngesting,
		total:     total,
		startTime: time.Now(),
	}
}

// RecordInserted counts one inserted record.
func (p *Progress) RecordInserted() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inserted++
}

// RecordUpdated counts one updated record.
func (p *Progress) RecordUpdated() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updated++
}

// RecordSkipped counts one record whose content was unchanged.
func (p *Progress) RecordSkipped() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.skipped++
}

// RecordFailed counts one failed record and remembers its error.
func (p *Progress) RecordFailed(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failed++
	p.lastError = message
}

// SetDone marks the batch as fully processed.
func (p *Progress) SetDone() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = StatusDone
}

// SetError marks the batch as aborted.
func (p *Progress) SetError(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = StatusError
	p.lastError = message
}

// Snapshot returns a consistent copy of the current state.
func (p *Progress) Snapshot() ProgressSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	processed := p.inserted + p.updated + p.skipped + p.failed
	pct := 0.0
	if p.total > 0 {
		pct = float64(processed) / float64(p.total) * 100
	}
	return ProgressSnapshot{
		Status:         string(p.status),
		Total:          p.total,
		Processed:      processed,
		Inserted:       p.inserted,
		Updated:        p.updated,
		Skipped:        p.skipped,
		Failed:         p.failed,
		ProgressPct:    pct,
		ElapsedSeconds: int(time.Since(p.startTime).Seconds()),
		LastError:      p.lastError,
	}
}
