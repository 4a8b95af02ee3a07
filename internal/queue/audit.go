package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// AuditLog appends one human-readable line per security event to a file.
type AuditLog struct {
	mu   sync.Mutex
	path string
}

func NewAuditLog(path string) *AuditLog { return &AuditLog{path: path} }

// DeviceMismatch is a Handler for TopicDeviceMismatch.
func (a *AuditLog) DeviceMismatch(_ context.Context, env Envelope) error {
	var ev DeviceMismatchEvent
	if err := json.Unmarshal(env.Data, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	line := fmt.Sprintf("[%s] Device mismatch | ticket_id=%s | event_id=%s | bound=%s | presented=%s\n",
		ev.DetectedAt.UTC().Format("2006-01-02T15:04:05Z07:00"), ev.TicketID, ev.EventID, ev.BoundKey, ev.PresentedKey)
	return a.write(line)
}

func (a *AuditLog) write(line string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if dir := filepath.Dir(a.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	f, err := os.OpenFile(a.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}
