package security

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func newCapturedAuditor(enabled bool) (*Auditor, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	logger := slog.New(slog.NewJSONHandler(buf, nil))
	return NewAuditor(logger, enabled), buf
}

func TestAuditorHashesSubject(t *testing.T) {
	auditor, buf := newCapturedAuditor(true)

	auditor.LogTokenIssued("user@example.com", "client-1", "fs:read")

	out := buf.String()
	if strings.Contains(out, "user@example.com") {
		t.Error("audit log contains raw subject, want hashed")
	}
	if !strings.Contains(out, EventTokenIssued) {
		t.Errorf("audit log missing event type %q: %s", EventTokenIssued, out)
	}
	if !strings.Contains(out, "client-1") {
		t.Error("audit log missing client id")
	}
}

func TestAuditorDisabled(t *testing.T) {
	auditor, buf := newCapturedAuditor(false)

	auditor.LogTokenIssued("user@example.com", "client-1", "fs:read")
	auditor.LogRefreshReuse("user@example.com", "client-1", "tok12345")

	if buf.Len() != 0 {
		t.Errorf("disabled auditor wrote output: %s", buf.String())
	}
}

func TestAuditorNilReceiver(t *testing.T) {
	var auditor *Auditor
	auditor.LogEvent(Event{Type: EventAuthFailure})
}

func TestLogRefreshReuseSeverity(t *testing.T) {
	auditor, buf := newCapturedAuditor(true)

	auditor.LogRefreshReuse("subject", "client-1", "tok12345")

	out := buf.String()
	if !strings.Contains(out, EventRefreshReuseDetected) {
		t.Errorf("audit log missing event type %q: %s", EventRefreshReuseDetected, out)
	}
	if !strings.Contains(out, "critical") {
		t.Error("reuse event missing critical severity")
	}
	if !strings.Contains(out, "token_family_revoked") {
		t.Error("reuse event missing revocation action")
	}
}

func TestLogPathEscape(t *testing.T) {
	auditor, buf := newCapturedAuditor(true)

	auditor.LogPathEscape("ses_1", "../../etc/passwd")

	out := buf.String()
	if !strings.Contains(out, EventPathEscapeBlocked) {
		t.Errorf("audit log missing event type %q: %s", EventPathEscapeBlocked, out)
	}
	if !strings.Contains(out, "../../etc/passwd") {
		t.Error("escape event missing offending input")
	}
}

func TestLogSessionEvents(t *testing.T) {
	auditor, buf := newCapturedAuditor(true)

	auditor.LogSessionAdopted("ses_1", 1234, 5678)
	auditor.LogSessionConflict("ses_1", 1234, 5678)

	out := buf.String()
	if !strings.Contains(out, EventSessionAdopted) {
		t.Error("audit log missing session adoption event")
	}
	if !strings.Contains(out, EventSessionConflict) {
		t.Error("audit log missing session conflict event")
	}
}

func TestHashForLogging(t *testing.T) {
	if got := hashForLogging(""); got != "<empty>" {
		t.Errorf("hashForLogging(\"\") = %q, want <empty>", got)
	}
	a := hashForLogging("alice")
	b := hashForLogging("bob")
	if a == b {
		t.Error("different inputs hashed identically")
	}
	if len(a) != 16 {
		t.Errorf("hash length = %d, want 16", len(a))
	}
}
