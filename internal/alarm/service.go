package alarm

import (
	"encoding/json"
	"errors"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"wxalarm/internal/config"
	"wxalarm/internal/logger"
	"wxalarm/internal/mail"
	"wxalarm/internal/metrics"
	"wxalarm/internal/record"
	"wxalarm/internal/units"
)

// Configuration errors. Any of these disables the alarm component; the
// host keeps running without it.
var (
	ErrNoSection     = errors.New("alarms configuration group not found")
	ErrBadUnitSystem = errors.New("invalid unit_system")
	ErrNoAlarms      = errors.New("no usable alarm definitions")
)

// Service owns the configured alarms and fans each incoming record out
// to all of them on its own goroutine, so the host's record-delivery
// path never blocks on rule evaluation or mail delivery.
type Service struct {
	target   units.System
	notifier Notifier
	alarms   []*Alarm

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Option configures a Service.
type Option func(*Service)

// WithNotifier overrides the default SMTP mailer, mainly for tests.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// NewService parses the alarms configuration group and builds the
// registry. Each startup failure is logged at its own decision point
// and returned as a distinct error so the caller can run inert.
func NewService(sect *config.Section, opts ...Option) (*Service, error) {
	log := logger.WithComponent("alarms")

	if sect == nil {
		log.Error().Msg("alarms section not found, service disabled")
		return nil, ErrNoSection
	}

	sysName := sect.GetDefault("unit_system", "METRIC")
	target, err := units.FromName(sysName)
	if err != nil {
		log.Error().Str("unit_system", sysName).Msg("invalid unit_system, service disabled")
		return nil, ErrBadUnitSystem
	}

	s := &Service{
		target: target,
		stop:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.notifier == nil {
		s.notifier = mail.NewMailer(
			sect.GetDefault("server", "localhost:25"),
			sect.GetDefault("sender", ""),
		)
	}

	defaults := parseDefaults(sect)
	defined := 0
	for _, ns := range sect.Children() {
		defined++
		if a := parseAlarm(ns.Name, ns.Section, defaults, s.notifier); a != nil {
			s.alarms = append(s.alarms, a)
		}
	}
	if len(s.alarms) == 0 {
		log.Error().Int("defined", defined).Msg("no usable alarms, service disabled")
		return nil, ErrNoAlarms
	}

	log.Info().
		Int("alarms", len(s.alarms)).
		Int("skipped", defined-len(s.alarms)).
		Stringer("unit_system", target).
		Msg("alarm service configured")
	return s, nil
}

// OnNewRecord dispatches the full assess-all-alarms pass for one record
// onto its own goroutine and returns immediately. After Stop the record
// is ignored.
func (s *Service) OnNewRecord(rec record.Record) {
	select {
	case <-s.stop:
		metrics.RecordsDropped.WithLabelValues("stopped").Inc()
		log := logger.WithComponent("dispatcher")
		log.Debug().Msg("stopped, record ignored")
		return
	default:
	}

	metrics.RecordsReceived.Inc()
	s.wg.Add(1)
	go s.assessAll(rec)
}

// assessAll converts the record once and assesses every alarm against
// the converted copy. The stop signal is re-checked before each alarm
// so an in-flight pass winds down early on shutdown; assessments that
// already ran are never rolled back.
func (s *Service) assessAll(rec record.Record) {
	defer s.wg.Done()

	log := logger.WithComponent("dispatcher")
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("assessment panic recovered")
			metrics.PanicsRecovered.WithLabelValues("dispatcher").Inc()
		}
	}()

	start := time.Now()
	converted := units.ConvertRecord(rec, s.target)

	for _, a := range s.alarms {
		select {
		case <-s.stop:
			log.Debug().Msg("stopping mid-assessment")
			return
		default:
		}
		a.Assess(converted)
	}

	metrics.AssessDuration.Observe(time.Since(start).Seconds())
}

// Stop prevents new assessments and notifications from starting.
// In-flight mail delivery is not cancelled.
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		log := logger.WithComponent("alarms")
		log.Info().Msg("alarm service stopped")
	})
}

// Wait blocks until all dispatched assessment passes have finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Snapshots returns the current view of every alarm in configuration
// order.
func (s *Service) Snapshots() []Snapshot {
	out := make([]Snapshot, 0, len(s.alarms))
	for _, a := range s.alarms {
		out = append(out, a.snapshot())
	}
	return out
}

// StatusHandler serves the alarm list as JSON.
func (s *Service) StatusHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(s.Snapshots()); err != nil {
		log := logger.WithComponent("alarms")
		log.Warn().Err(err).Msg("status encode failed")
	}
}
