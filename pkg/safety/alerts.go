package safety

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"soartrack/pkg/model"
)

const alertCollection = "alerts"

// AlertCallback is invoked after an alert is stored locally, for UI
// toast/badge purposes.
type AlertCallback func(a model.AlertRecord)

// OnAlertCreated registers a callback. Startup wiring only.
func (m *Monitor) OnAlertCreated(fn AlertCallback) {
	m.onAlert = append(m.onAlert, fn)
}

// CreateAlert stores a new alert locally and queues the remote create.
// It always succeeds locally, connectivity or not, and returns the alert
// identity.
func (m *Monitor) CreateAlert(ctx context.Context, category model.AlertCategory, severity model.AlertSeverity, reason string, metadata map[string]any) string {
	m.mu.Lock()
	id := m.createAlertLocked(ctx, category, severity, reason, metadata)
	callbacks := append([]AlertCallback(nil), m.onAlert...)
	var created model.AlertRecord
	for i := range m.alerts {
		if m.alerts[i].ID == id {
			created = m.alerts[i]
			break
		}
	}
	m.mu.Unlock()

	for _, fn := range callbacks {
		fn(created)
	}
	return id
}

func (m *Monitor) createAlertLocked(ctx context.Context, category model.AlertCategory, severity model.AlertSeverity, reason string, metadata map[string]any) string {
	now := m.now()
	m.alertSeq++
	a := model.AlertRecord{
		ID:        fmt.Sprintf("alert_%d_%d", now.UnixMilli(), m.alertSeq),
		UserID:    m.userID,
		UserName:  m.userName,
		License:   m.license,
		Category:  category,
		Severity:  severity,
		Reason:    reason,
		Triggered: now,
		Metadata:  metadata,
	}

	m.alerts = append([]model.AlertRecord{a}, m.alerts...)
	m.persistAlertsLocked(ctx)

	payload := alertPayload(&a)
	m.queue.Enqueue(ctx, model.PendingOperation{
		Kind:       model.OpCreate,
		Collection: alertCollection,
		DocID:      a.ID,
		Payload:    payload,
	})

	slog.Info("Safety: alert created",
		"alert", a.ID, "category", category, "severity", severity, "reason", reason)
	return a.ID
}

// createIfNotDuplicateLocked suppresses repeats of the same logical alert
// within the dedupe cooldown.
func (m *Monitor) createIfNotDuplicateLocked(ctx context.Context, key string, category model.AlertCategory, severity model.AlertSeverity, reason string, metadata map[string]any) (string, bool) {
	cooldown := time.Duration(m.cfg.DedupeCooldown)
	if last, ok := m.recent[key]; ok && m.now().Sub(last) < cooldown {
		return "", false
	}
	m.recent[key] = m.now()
	return m.createAlertLocked(ctx, category, severity, reason, metadata), true
}

// updateFlightAlertLocked folds the flight's full violation history into
// the consolidated alert document via a merge-update. One flight gets one
// alert record no matter how many zones it clips.
func (m *Monitor) updateFlightAlertLocked(ctx context.Context) {
	if m.flightAlertID == "" {
		return
	}

	summary := buildViolationSummary(m.violations)
	doc := map[string]any{
		"reason": summary.headline,
		"metadata": map[string]any{
			"violations": m.violations,
			"summary":    summary.text,
		},
		"updated_at": model.ServerTimestamp,
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		slog.Error("Safety: failed to marshal alert update", "error", err)
		return
	}

	// Mirror the consolidated fields into the local record too
	for i := range m.alerts {
		if m.alerts[i].ID == m.flightAlertID {
			m.alerts[i].Reason = summary.headline
			if m.alerts[i].Metadata == nil {
				m.alerts[i].Metadata = map[string]any{}
			}
			m.alerts[i].Metadata["violations"] = append([]model.ViolationRecord(nil), m.violations...)
			m.alerts[i].Metadata["summary"] = summary.text
			break
		}
	}
	m.persistAlertsLocked(ctx)

	m.queue.Enqueue(ctx, model.PendingOperation{
		Kind:       model.OpMerge,
		Collection: alertCollection,
		DocID:      m.flightAlertID,
		Payload:    payload,
	})
}

// ClearRecentAlerts resets the dedupe window and the per-flight alert
// consolidation context.
func (m *Monitor) ClearRecentAlerts() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.recent = make(map[string]time.Time)
	m.flightAlertID = ""
	m.violations = nil
}

// Alerts returns the local alert collection, most recent first.
func (m *Monitor) Alerts() []model.AlertRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.AlertRecord(nil), m.alerts...)
}

// NotifyCredentialFailure raises a credential alert, deduped so a broken
// token does not flood the collection while sync keeps failing.
func (m *Monitor) NotifyCredentialFailure(ctx context.Context, detail string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createIfNotDuplicateLocked(ctx, "credential_invalid",
		model.AlertCredentialInvalid, model.SeverityWarning,
		"remote store rejected credentials: "+detail, nil)
}

func (m *Monitor) persistAlertsLocked(ctx context.Context) {
	if m.store == nil {
		return
	}
	if err := m.store.SaveAlerts(ctx, m.userID, m.alerts); err != nil {
		slog.Error("Safety: failed to persist alerts", "user", m.userID, "error", err)
	}
}

// alertPayload renders the create document: every field of the record
// plus a server-filled sync timestamp.
func alertPayload(a *model.AlertRecord) json.RawMessage {
	doc := map[string]any{
		"id":         a.ID,
		"user_id":    a.UserID,
		"user_name":  a.UserName,
		"license":    a.License,
		"category":   a.Category,
		"severity":   a.Severity,
		"reason":     a.Reason,
		"triggered":  a.Triggered,
		"metadata":   a.Metadata,
		"resolved":   a.Resolved,
		"created_at": model.ServerTimestamp,
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		slog.Error("Safety: failed to marshal alert payload", "alert", a.ID, "error", err)
		return nil
	}
	return payload
}

type violationSummary struct {
	headline string
	text     string
}

// buildViolationSummary renders the human-readable audit trail for the
// consolidated airspace alert.
func buildViolationSummary(violations []model.ViolationRecord) violationSummary {
	if len(violations) == 0 {
		return violationSummary{}
	}

	headline := fmt.Sprintf("airspace violation: %d zone(s) entered", len(violations))

	text := headline + "\n"
	for i := range violations {
		v := &violations[i]
		text += fmt.Sprintf("\n[%s] %s (%s)\n", v.ZoneID, v.ZoneName, v.Category)
		text += fmt.Sprintf("  entered %s at (%.5f, %.5f)\n",
			v.EnteredAt.Format(time.RFC3339), v.EntryLat, v.EntryLon)
		switch v.Status {
		case model.ViolationInProgress:
			text += "  still inside\n"
		case model.ViolationLandedInside:
			text += fmt.Sprintf("  landed inside the zone after %.0fs\n", v.DwellSeconds)
		default:
			text += fmt.Sprintf("  exited %s after %.0fs at (%.5f, %.5f)\n",
				v.ExitedAt.Format(time.RFC3339), v.DwellSeconds, v.ExitLat, v.ExitLon)
		}
		text += fmt.Sprintf("  altitude %.0f-%.0fm over %d samples\n", v.MinAlt, v.MaxAlt, v.SampleCount)
	}
	return violationSummary{headline: headline, text: text}
}
