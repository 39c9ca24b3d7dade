// Audit logging for the coordination protocol: structured JSONL events that
// record how each task moved from request to terminal outcome. One line per
// event, one file per day, append-only. Operators grep these; nothing in the
// process reads them back.
package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// =============================================================================
// AUDIT EVENT TYPES
// =============================================================================

// AuditEventType names one step of a coordination run.
type AuditEventType string

const (
	// Request lifecycle
	AuditRequestReceived     AuditEventType = "request_received"
	AuditEvaluationRequested AuditEventType = "evaluation_requested"

	// Collection
	AuditReportCollected    AuditEventType = "report_collected"
	AuditCollectionFinished AuditEventType = "collection_finished"

	// Negotiation
	AuditNegotiationRound AuditEventType = "negotiation_round"

	// Terminal outcomes
	AuditAssignmentCommitted AuditEventType = "assignment_committed"
	AuditAssignmentDeclined  AuditEventType = "assignment_declined"
	AuditNoResponse          AuditEventType = "no_response"
	AuditRunFailed           AuditEventType = "run_failed"

	// Execution on the assigned specialist
	AuditExecutionStarted   AuditEventType = "execution_started"
	AuditExecutionCompleted AuditEventType = "execution_completed"
	AuditExecutionFailed    AuditEventType = "execution_failed"
)

// AuditEvent is one JSONL record.
type AuditEvent struct {
	Timestamp  int64          `json:"ts"` // Unix milliseconds
	Type       AuditEventType `json:"type"`
	ThreadTS   string         `json:"thread,omitempty"` // coordination thread key
	ChannelID  string         `json:"channel,omitempty"`
	Specialist string         `json:"specialist,omitempty"`
	Confidence int            `json:"confidence,omitempty"`
	Round      int            `json:"round,omitempty"`
	Detail     string         `json:"detail,omitempty"`
}

// =============================================================================
// AUDIT WRITER
// =============================================================================

var (
	auditMu   sync.Mutex
	auditFile *os.File
)

// InitializeAudit opens the daily audit file under the logs directory.
// No-op when debug mode is off, mirroring Initialize.
func InitializeAudit() error {
	if !IsDebugMode() || logsDir == "" {
		return nil
	}
	auditMu.Lock()
	defer auditMu.Unlock()
	if auditFile != nil {
		return nil
	}

	date := time.Now().Format("2006-01-02")
	path := filepath.Join(logsDir, fmt.Sprintf("audit_%s.jsonl", date))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open audit file: %w", err)
	}
	auditFile = f
	return nil
}

// CloseAudit closes the audit file (call at shutdown).
func CloseAudit() {
	auditMu.Lock()
	defer auditMu.Unlock()
	if auditFile != nil {
		auditFile.Close()
		auditFile = nil
	}
}

// Audit writes one event. Safe from any goroutine; silently a no-op when the
// audit file is not open.
func Audit(ev AuditEvent) {
	auditMu.Lock()
	defer auditMu.Unlock()
	if auditFile == nil {
		return
	}
	if ev.Timestamp == 0 {
		ev.Timestamp = time.Now().UnixMilli()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	auditFile.Write(append(data, '\n'))
}

// =============================================================================
// CONVENIENCE EMITTERS
// =============================================================================

// AuditRequest records an incoming user request and its coordination thread.
func AuditRequest(channelID, threadTS, detail string) {
	Audit(AuditEvent{Type: AuditRequestReceived, ChannelID: channelID, ThreadTS: threadTS, Detail: detail})
}

// AuditReport records one collected confidence report.
func AuditReport(threadTS, specialist string, confidence int) {
	Audit(AuditEvent{Type: AuditReportCollected, ThreadTS: threadTS, Specialist: specialist, Confidence: confidence})
}

// AuditRound records one specialist's statement in a negotiation round.
func AuditRound(threadTS, specialist string, round, confidence int) {
	Audit(AuditEvent{Type: AuditNegotiationRound, ThreadTS: threadTS, Specialist: specialist, Round: round, Confidence: confidence})
}

// AuditOutcome records a terminal coordination outcome.
func AuditOutcome(t AuditEventType, threadTS, specialist string, confidence int, detail string) {
	Audit(AuditEvent{Type: t, ThreadTS: threadTS, Specialist: specialist, Confidence: confidence, Detail: detail})
}
