package alarm

import (
	"strings"

	"wxalarm/internal/config"
	"wxalarm/internal/eval"
	"wxalarm/internal/logger"
)

// Group-level notification defaults.
const (
	defaultTextSet       = "SET"
	defaultTextClear     = "CLR"
	defaultSubject       = "{_NAME}"
	defaultSubjectPrefix = "Alarm [{_STATE}] "
	defaultBody          = ""
	defaultBodyPrefix    = `Alarm:\t{_NAME}\nState:\t{_STATE}\nTest:\t{_RULE}\nTime:\t{_TIME}\n`
)

// groupDefaults carries the group-level notification parameters that
// per-transition sections override.
type groupDefaults struct {
	recipients    []string
	textSet       string
	textClear     string
	notifyFirst   string // which first states notify: "", "set", "clear", "set,clear"
	subjectPrefix string
	subject       string
	bodyPrefix    string
	body          string
}

func parseDefaults(sect *config.Section) groupDefaults {
	d := groupDefaults{
		textSet:       sect.GetDefault("text_set", defaultTextSet),
		textClear:     sect.GetDefault("text_clear", defaultTextClear),
		notifyFirst:   strings.ToLower(sect.GetDefault("notify_first", "")),
		subjectPrefix: sect.GetDefault("subject_prefix", defaultSubjectPrefix),
		subject:       sect.GetDefault("subject", defaultSubject),
		bodyPrefix:    sect.GetDefault("body_prefix", defaultBodyPrefix),
		body:          sect.GetDefault("body", defaultBody),
	}
	if recipients, ok := sect.List("recipients"); ok {
		d.recipients = recipients
	}
	return d
}

// parseAlarm builds one alarm from its configuration sub-section.
// Returns nil when the definition is unusable; the alarm is skipped,
// not fatal.
func parseAlarm(name string, sect *config.Section, defaults groupDefaults, notifier Notifier) *Alarm {
	log := logger.WithAlarm(name)

	rule, ok := sect.Get("rule")
	if !ok || rule == "" {
		log.Warn().Msg("alarm has no rule, skipped")
		return nil
	}

	prog, err := eval.Compile(rule)
	if err != nil {
		log.Warn().Err(err).Msg("rule rejected, alarm skipped")
		return nil
	}

	var onSet, onClear *TransitionConfig
	if s, ok := sect.Child("on_set"); ok {
		onSet = resolveTransition(defaults, s, "set", name)
	}
	if s, ok := sect.Child("on_clear"); ok {
		onClear = resolveTransition(defaults, s, "clear", name)
	}

	return NewAlarm(name, prog, onSet, onClear, notifier)
}

// resolveTransition merges alarm-specific overrides onto the group
// defaults, producing the immutable per-transition config applied at
// runtime. The merge happens once, here; nothing is re-resolved per
// record.
func resolveTransition(defaults groupDefaults, sect *config.Section, transition, alarmName string) *TransitionConfig {
	cfg := &TransitionConfig{
		Recipients:    defaults.recipients,
		TextSet:       defaults.textSet,
		TextClear:     defaults.textClear,
		SubjectPrefix: defaults.subjectPrefix,
		Subject:       defaults.subject,
		BodyPrefix:    defaults.bodyPrefix,
		Body:          defaults.body,
	}

	if v, ok := sect.List("recipients"); ok {
		cfg.Recipients = v
	}
	if v, ok := sect.Get("text_set"); ok {
		cfg.TextSet = v
	}
	if v, ok := sect.Get("text_clear"); ok {
		cfg.TextClear = v
	}
	if v, ok := sect.Get("subject_prefix"); ok {
		cfg.SubjectPrefix = v
	}
	if v, ok := sect.Get("subject"); ok {
		cfg.Subject = v
	}
	if v, ok := sect.Get("body_prefix"); ok {
		cfg.BodyPrefix = v
	}
	if v, ok := sect.Get("body"); ok {
		cfg.Body = v
	}

	if raw, ok := sect.Get("suppress_first"); ok {
		b, err := config.ToBool(raw)
		if err != nil {
			log := logger.WithAlarm(alarmName)
			log.Warn().
				Str("suppress_first", raw).
				Msg("invalid bool suppress_first, assumed false")
			b = false
		}
		cfg.SuppressFirst = b
	} else {
		// The group notify_first list names the first states that DO
		// notify; absence of this transition means suppress.
		cfg.SuppressFirst = !strings.Contains(defaults.notifyFirst, transition)
	}

	return cfg
}
