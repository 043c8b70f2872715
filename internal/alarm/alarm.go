// Package alarm implements the alarm state machine and the registry
// that assesses every configured alarm against each incoming archive
// record.
package alarm

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"wxalarm/internal/eval"
	"wxalarm/internal/format"
	"wxalarm/internal/logger"
	"wxalarm/internal/metrics"
	"wxalarm/internal/record"
)

// State is the tri-state of an alarm. It starts Unknown and only ever
// moves Unknown->{Clear,Set} or Clear<->Set.
type State int8

const (
	StateUnknown State = iota
	StateClear
	StateSet
)

func (s State) String() string {
	switch s {
	case StateClear:
		return "clear"
	case StateSet:
		return "set"
	default:
		return "unknown"
	}
}

// Reserved variables injected into every notification context. They are
// added after the record fields, so they win on collision.
const (
	VarName  = "_NAME"
	VarRule  = "_RULE"
	VarTime  = "_TIME"
	VarState = "_STATE"
)

// timeLayout renders the record timestamp for the _TIME variable.
const timeLayout = "2006-01-02 15:04:05"

// TransitionConfig holds the fully-resolved notification parameters for
// one transition direction. Immutable after startup.
type TransitionConfig struct {
	Recipients    []string
	TextSet       string
	TextClear     string
	SuppressFirst bool
	SubjectPrefix string
	Subject       string
	BodyPrefix    string
	Body          string
}

// Notifier sends one rendered notification. Delivery errors are the
// notifier's to report; callers only count them.
type Notifier interface {
	Send(recipients, subject, body string) error
}

// Alarm owns one rule, its two transition configurations, and its
// current state. The mutex guarantees at most one in-flight assessment
// touches the state, even when record dispatches overlap.
type Alarm struct {
	name     string
	rule     string
	prog     *eval.Program
	onSet    *TransitionConfig // nil: no action on clear->set
	onClear  *TransitionConfig // nil: no action on set->clear
	notifier Notifier

	mu    sync.Mutex
	state State
}

// NewAlarm creates an alarm in the Unknown state.
func NewAlarm(name string, prog *eval.Program, onSet, onClear *TransitionConfig, notifier Notifier) *Alarm {
	return &Alarm{
		name:     name,
		rule:     prog.Rule(),
		prog:     prog,
		onSet:    onSet,
		onClear:  onClear,
		notifier: notifier,
		state:    StateUnknown,
	}
}

// Name returns the alarm display identifier.
func (a *Alarm) Name() string { return a.name }

// Rule returns the rule expression text.
func (a *Alarm) Rule() string { return a.rule }

// State returns the current alarm state.
func (a *Alarm) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Assess evaluates the alarm rule against a converted record, records
// any state transition, and triggers notification when the transition
// warrants one. An evaluation failure leaves the state untouched.
func (a *Alarm) Assess(rec record.Record) {
	a.mu.Lock()
	defer a.mu.Unlock()

	log := logger.WithAlarm(a.name)

	env := a.buildContext(rec)

	result, err := a.prog.Eval(env)
	if err != nil {
		a.logEvalError(log, err)
		metrics.AssessmentsTotal.WithLabelValues("error").Inc()
		return // no new state
	}

	newState := StateClear
	if result {
		newState = StateSet
	}
	metrics.AssessmentsTotal.WithLabelValues(newState.String()).Inc()

	old := a.state
	if newState == old {
		return // no change, no re-notification
	}
	a.state = newState
	metrics.TransitionsTotal.WithLabelValues(a.name, newState.String()).Inc()
	log.Debug().
		Stringer("from", old).
		Stringer("to", newState).
		Msg("state transition")

	params := a.onClear
	if result {
		params = a.onSet
	}
	if params == nil {
		// transition recorded but no action configured
		metrics.NotificationsSuppressed.WithLabelValues("no_params").Inc()
		return
	}

	if old == StateUnknown && params.SuppressFirst {
		// monitoring just started; this is a baseline, not a transition
		metrics.NotificationsSuppressed.WithLabelValues("first_state").Inc()
		log.Debug().Stringer("state", newState).Msg("first state suppressed")
		return
	}

	a.notify(log, env, params, newState)
}

// buildContext assembles the evaluation/notification context: every
// record field, then the reserved variables.
func (a *Alarm) buildContext(rec record.Record) map[string]any {
	env := make(map[string]any, len(rec)+4)
	for k, v := range rec {
		env[k] = v
	}
	env[VarName] = a.name
	env[VarRule] = a.rule
	env[VarTime] = recordTime(rec)
	return env
}

func recordTime(rec record.Record) string {
	t, err := rec.Time()
	if err != nil {
		return ""
	}
	return t.Format(timeLayout)
}

// logEvalError applies the severity ladder: an undefined variable is
// routine, a type/value error signals a misconfigured rule, anything
// else gets full detail.
func (a *Alarm) logEvalError(log zerolog.Logger, err error) {
	var ee *eval.Error
	if !errors.As(err, &ee) {
		metrics.EvalErrors.WithLabelValues(eval.KindUnexpected.String()).Inc()
		log.Warn().Err(err).Str("rule", a.rule).Msg("rule evaluation failed")
		return
	}

	metrics.EvalErrors.WithLabelValues(ee.Kind.String()).Inc()
	switch ee.Kind {
	case eval.KindUndefinedVariable:
		log.Debug().Str("rule", a.rule).Str("variable", ee.Name).Msg("rule variable not in record")
	case eval.KindTypeValue:
		log.Warn().Err(ee.Err).Str("rule", a.rule).Msg("rule type/value error")
	default:
		log.Warn().Err(ee.Err).Str("rule", a.rule).Msg("unexpected rule evaluation error")
	}
}

// notify renders and sends the notification for a transition into
// newState using the resolved params.
func (a *Alarm) notify(log zerolog.Logger, env map[string]any, params *TransitionConfig, newState State) {
	if newState == StateSet {
		env[VarState] = params.TextSet
	} else {
		env[VarState] = params.TextClear
	}

	// Recipients render against an empty context: they must not depend
	// on record fields, and there is no safe fallback address.
	rawRcpt := strings.Join(params.Recipients, ",")
	recipients, err := format.Render(rawRcpt, map[string]any{})
	if err != nil || recipients == "" {
		metrics.NotificationsSuppressed.WithLabelValues("no_recipients").Inc()
		log.Warn().AnErr("render", err).Str("raw", rawRcpt).Msg("no usable recipients, notification dropped")
		return
	}

	raw := params.SubjectPrefix + params.Subject
	subject, err := format.Render(raw, env)
	if err != nil {
		subject = fmt.Sprintf("%s [%v] *garbled* raw='%s'", a.name, env[VarState], raw)
		metrics.RenderFallbacks.WithLabelValues("subject").Inc()
		log.Warn().Err(err).Msg("subject render failed, using fallback")
	}

	raw = params.BodyPrefix + params.Body
	body, err := format.Render(raw, env)
	if err != nil {
		body = fmt.Sprintf("*garbled* raw='%s'", raw)
		metrics.RenderFallbacks.WithLabelValues("body").Inc()
		log.Warn().Err(err).Msg("body render failed, using fallback")
	}

	// best effort: the notifier reports its own failures
	_ = a.notifier.Send(recipients, subject, body)
}

// Snapshot is the externally visible view of one alarm.
type Snapshot struct {
	Name  string `json:"name"`
	Rule  string `json:"rule"`
	State string `json:"state"`
}

func (a *Alarm) snapshot() Snapshot {
	return Snapshot{Name: a.name, Rule: a.rule, State: a.State().String()}
}
