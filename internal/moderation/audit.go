package moderation

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
)

// AuditLog appends one line per completed moderation cycle to a plain text
// file. Line format:
//
//	<channelID> - Action Required: <text> - Reasons: <comma-joined> - User Scores: <JSON object>
//
// The file is opened in append mode and writes are serialized, so concurrent
// dispatch cycles across channels interleave whole lines only.
type AuditLog struct {
	mu sync.Mutex
	f  *os.File
}

// OpenAuditLog opens (or creates) the audit file at path.
func OpenAuditLog(path string) (*AuditLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", path, err)
	}
	return &AuditLog{f: f}, nil
}

// Record appends the audit entry for one dispatch cycle.
func (a *AuditLog) Record(channelID string, v *Verdict) error {
	scores, err := json.Marshal(v.UserScores)
	if err != nil {
		return fmt.Errorf("audit: marshal scores: %w", err)
	}

	line := fmt.Sprintf("%s - Action Required: %s - Reasons: %s - User Scores: %s\n",
		channelID, v.ActionRequired, strings.Join(v.Reasons, ", "), scores)

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := a.f.WriteString(line); err != nil {
		return fmt.Errorf("audit: write: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (a *AuditLog) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.f.Close()
}
