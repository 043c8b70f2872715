package alarm

import (
	"strings"
	"sync"
	"testing"

	"wxalarm/internal/eval"
	"wxalarm/internal/record"
)

type sentMail struct {
	recipients string
	subject    string
	body       string
}

// mockNotifier records every send.
type mockNotifier struct {
	mu    sync.Mutex
	sends []sentMail
}

func (m *mockNotifier) Send(recipients, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sends = append(m.sends, sentMail{recipients, subject, body})
	return nil
}

func (m *mockNotifier) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sends)
}

func (m *mockNotifier) last() sentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sends[len(m.sends)-1]
}

func compileRule(t *testing.T, rule string) *eval.Program {
	t.Helper()
	prog, err := eval.Compile(rule)
	if err != nil {
		t.Fatalf("compile %q: %v", rule, err)
	}
	return prog
}

func testTransition(suppressFirst bool) *TransitionConfig {
	return &TransitionConfig{
		Recipients:    []string{"ops@example.com"},
		TextSet:       "SET",
		TextClear:     "CLR",
		SuppressFirst: suppressFirst,
		SubjectPrefix: "Alarm [{_STATE}] ",
		Subject:       "{_NAME}",
		BodyPrefix:    "",
		Body:          `outTemp:\t{outTemp}\n`,
	}
}

func tempRecord(outTemp float64) record.Record {
	return record.Record{
		"dateTime": float64(1700000000),
		"usUnits":  float64(0x10),
		"outTemp":  outTemp,
	}
}

func TestHotScenario(t *testing.T) {
	n := &mockNotifier{}
	a := NewAlarm("Hot", compileRule(t, "outTemp >= 30.0"),
		testTransition(false), testTransition(false), n)

	if a.State() != StateUnknown {
		t.Fatal("alarm must start unknown")
	}

	// record 1: unknown -> set, notification with _STATE=SET
	a.Assess(tempRecord(32.0))
	if a.State() != StateSet {
		t.Fatalf("state = %v, want set", a.State())
	}
	if n.count() != 1 {
		t.Fatalf("sends = %d, want 1", n.count())
	}
	if got := n.last().subject; got != "Alarm [SET] Hot" {
		t.Errorf("subject = %q", got)
	}
	if got := n.last().body; got != "outTemp:\t32\n" {
		t.Errorf("body = %q", got)
	}

	// record 2: still set, no notification
	a.Assess(tempRecord(33.0))
	if a.State() != StateSet {
		t.Fatalf("state = %v, want set", a.State())
	}
	if n.count() != 1 {
		t.Fatalf("sends = %d after no-change record, want 1", n.count())
	}

	// record 3: set -> clear, notification with _STATE=CLR
	a.Assess(tempRecord(10.0))
	if a.State() != StateClear {
		t.Fatalf("state = %v, want clear", a.State())
	}
	if n.count() != 2 {
		t.Fatalf("sends = %d, want 2", n.count())
	}
	if got := n.last().subject; got != "Alarm [CLR] Hot" {
		t.Errorf("subject = %q", got)
	}
}

func TestFirstObservationSuppressed(t *testing.T) {
	n := &mockNotifier{}
	a := NewAlarm("Hot", compileRule(t, "outTemp >= 30.0"),
		testTransition(true), testTransition(true), n)

	// first observed state is suppressed regardless of repetition
	a.Assess(tempRecord(32.0))
	a.Assess(tempRecord(33.0))
	a.Assess(tempRecord(34.0))
	if a.State() != StateSet {
		t.Fatalf("state = %v, want set", a.State())
	}
	if n.count() != 0 {
		t.Fatalf("sends = %d, want 0 while suppressed", n.count())
	}

	// a real transition still notifies even with suppressFirst=true
	a.Assess(tempRecord(10.0))
	if a.State() != StateClear {
		t.Fatalf("state = %v, want clear", a.State())
	}
	if n.count() != 1 {
		t.Fatalf("sends = %d after real transition, want 1", n.count())
	}
}

func TestFirstObservationNotified(t *testing.T) {
	n := &mockNotifier{}
	a := NewAlarm("Hot", compileRule(t, "outTemp >= 30.0"),
		testTransition(false), nil, n)

	a.Assess(tempRecord(32.0))
	if n.count() != 1 {
		t.Fatalf("sends = %d, want 1 with suppressFirst=false", n.count())
	}
}

func TestIdempotence(t *testing.T) {
	n := &mockNotifier{}
	a := NewAlarm("Hot", compileRule(t, "outTemp >= 30.0"),
		testTransition(false), testTransition(false), n)

	for i := 0; i < 5; i++ {
		a.Assess(tempRecord(32.0))
	}
	if a.State() != StateSet {
		t.Fatalf("state = %v, want set", a.State())
	}
	if n.count() != 1 {
		t.Fatalf("sends = %d, want exactly 1", n.count())
	}
}

func TestTransitionWithoutParams(t *testing.T) {
	n := &mockNotifier{}
	a := NewAlarm("Hot", compileRule(t, "outTemp >= 30.0"),
		testTransition(false), nil, n)

	a.Assess(tempRecord(32.0)) // unknown -> set, notified
	a.Assess(tempRecord(10.0)) // set -> clear, no onClear params

	if a.State() != StateClear {
		t.Fatalf("state = %v, want clear even without params", a.State())
	}
	if n.count() != 1 {
		t.Fatalf("sends = %d, want 1 (no action on clear)", n.count())
	}
}

func TestEvalFailureLeavesStateUntouched(t *testing.T) {
	n := &mockNotifier{}
	a := NewAlarm("Battery", compileRule(t, "missingField > 5"),
		testTransition(false), testTransition(false), n)

	a.Assess(tempRecord(32.0))
	if a.State() != StateUnknown {
		t.Fatalf("state = %v, want unknown after eval failure", a.State())
	}
	if n.count() != 0 {
		t.Fatalf("sends = %d, want 0", n.count())
	}

	// once set, a later eval failure must not flip the state back
	rec := tempRecord(32.0)
	rec["missingField"] = 10.0
	a.Assess(rec)
	if a.State() != StateSet {
		t.Fatalf("state = %v, want set", a.State())
	}
	a.Assess(tempRecord(32.0)) // field gone again
	if a.State() != StateSet {
		t.Fatalf("state = %v, want set preserved across eval failure", a.State())
	}
}

func TestRecipientsJoined(t *testing.T) {
	n := &mockNotifier{}
	cfg := testTransition(false)
	cfg.Recipients = []string{"a@x.com", "b@y.com"}
	a := NewAlarm("Hot", compileRule(t, "outTemp >= 30.0"), cfg, nil, n)

	a.Assess(tempRecord(32.0))
	if n.count() != 1 {
		t.Fatalf("sends = %d, want 1", n.count())
	}
	if got := n.last().recipients; got != "a@x.com,b@y.com" {
		t.Errorf("recipients = %q", got)
	}
}

func TestNoRecipientsAbortsNotification(t *testing.T) {
	n := &mockNotifier{}
	cfg := testTransition(false)
	cfg.Recipients = nil
	a := NewAlarm("Hot", compileRule(t, "outTemp >= 30.0"), cfg, nil, n)

	a.Assess(tempRecord(32.0))
	if n.count() != 0 {
		t.Fatalf("sends = %d, want 0 without recipients", n.count())
	}
	// the state transition still happened
	if a.State() != StateSet {
		t.Fatalf("state = %v, want set", a.State())
	}
}

func TestReservedKeysOverrideRecordFields(t *testing.T) {
	n := &mockNotifier{}
	a := NewAlarm("Hot", compileRule(t, "outTemp >= 30.0"),
		testTransition(false), nil, n)

	rec := tempRecord(32.0)
	rec["_NAME"] = "spoofed"
	a.Assess(rec)

	if n.count() != 1 {
		t.Fatalf("sends = %d, want 1", n.count())
	}
	if got := n.last().subject; !strings.Contains(got, "Hot") || strings.Contains(got, "spoofed") {
		t.Errorf("subject = %q, reserved _NAME must win", got)
	}
}

func TestGarbledSubjectFallback(t *testing.T) {
	n := &mockNotifier{}
	cfg := testTransition(false)
	cfg.Subject = "{noSuchField}"
	a := NewAlarm("Hot", compileRule(t, "outTemp >= 30.0"), cfg, nil, n)

	a.Assess(tempRecord(32.0))
	if n.count() != 1 {
		t.Fatalf("sends = %d, want 1 (fallback subject)", n.count())
	}
	got := n.last().subject
	if !strings.Contains(got, "*garbled*") || !strings.Contains(got, "{noSuchField}") {
		t.Errorf("fallback subject = %q, must flag the raw template", got)
	}
}

func TestGarbledBodyFallback(t *testing.T) {
	n := &mockNotifier{}
	cfg := testTransition(false)
	cfg.Body = `value {noSuchField}`
	a := NewAlarm("Hot", compileRule(t, "outTemp >= 30.0"), cfg, nil, n)

	a.Assess(tempRecord(32.0))
	if n.count() != 1 {
		t.Fatalf("sends = %d, want 1 (fallback body)", n.count())
	}
	if got := n.last().body; !strings.Contains(got, "*garbled*") {
		t.Errorf("fallback body = %q", got)
	}
}

func TestBatteryBitmaskAlarm(t *testing.T) {
	n := &mockNotifier{}
	a := NewAlarm("Battery LOW", compileRule(t, "int(txBatteryStatus) & 0x02"),
		testTransition(false), testTransition(false), n)

	rec := tempRecord(20.0)
	rec["txBatteryStatus"] = 2.0
	a.Assess(rec)
	if a.State() != StateSet {
		t.Fatalf("state = %v, want set for bit#1", a.State())
	}

	rec["txBatteryStatus"] = 0.0
	a.Assess(rec)
	if a.State() != StateClear {
		t.Fatalf("state = %v, want clear", a.State())
	}
	if n.count() != 2 {
		t.Fatalf("sends = %d, want 2", n.count())
	}
}

func TestStateString(t *testing.T) {
	if StateUnknown.String() != "unknown" ||
		StateClear.String() != "clear" ||
		StateSet.String() != "set" {
		t.Error("bad state labels")
	}
}
