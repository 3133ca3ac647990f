// Package reminders places the daily and hourly appointment reminder calls.
package reminders

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/caresync/telehealth-ivr/internal/appointments"
	"github.com/caresync/telehealth-ivr/internal/ivr"
	"github.com/caresync/telehealth-ivr/internal/observability/metrics"
	"github.com/caresync/telehealth-ivr/internal/telephony"
	"github.com/caresync/telehealth-ivr/pkg/logging"
)

var tracer = otel.Tracer("caresync.internal.reminders")

// Caller dials a patient into the reminder sub-dialogue.
type Caller interface {
	PlaceReminderCall(ctx context.Context, appointmentID string, urls telephony.URLResolver) ivr.ReminderCallResult
}

// Config controls when reminders run and how fast calls are placed.
type Config struct {
	DailySpec  string
	HourlySpec string
	// CallGap is the pause between consecutive dials.
	CallGap  time.Duration
	Location *time.Location
	URLs     telephony.URLResolver
}

// Summary counts what one reminder run did.
type Summary struct {
	Kind    appointments.ReminderKind `json:"kind"`
	Found   int                       `json:"found"`
	Called  int                       `json:"called"`
	Failed  int                       `json:"failed"`
	Skipped int                       `json:"skipped"`
}

// Scheduler runs reminder batches on cron schedules in the clinic timezone.
type Scheduler struct {
	repo    appointments.Repository
	caller  Caller
	cfg     Config
	metrics *metrics.VoiceMetrics
	logger  *logging.Logger

	cron  *cron.Cron
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	rootCtx context.Context
}

func NewScheduler(repo appointments.Repository, caller Caller, cfg Config, m *metrics.VoiceMetrics, logger *logging.Logger) (*Scheduler, error) {
	if repo == nil || caller == nil {
		return nil, errors.New("reminders: repository and caller are required")
	}
	if cfg.URLs == nil {
		return nil, errors.New("reminders: webhook url resolver is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.DailySpec == "" {
		cfg.DailySpec = "0 8 * * *"
	}
	if cfg.HourlySpec == "" {
		cfg.HourlySpec = "0 * * * *"
	}

	s := &Scheduler{
		repo:    repo,
		caller:  caller,
		cfg:     cfg,
		metrics: m,
		logger:  logger,
		now:     time.Now,
		sleep:   sleepCtx,
		rootCtx: context.Background(),
	}
	s.cron = cron.New(
		cron.WithLocation(cfg.Location),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{logger})),
	)
	if _, err := s.cron.AddFunc(cfg.DailySpec, s.job(appointments.ReminderDaily)); err != nil {
		return nil, fmt.Errorf("reminders: daily schedule %q: %w", cfg.DailySpec, err)
	}
	if _, err := s.cron.AddFunc(cfg.HourlySpec, s.job(appointments.ReminderHourly)); err != nil {
		return nil, fmt.Errorf("reminders: hourly schedule %q: %w", cfg.HourlySpec, err)
	}
	return s, nil
}

// Start runs the schedules until ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.rootCtx = ctx
	s.mu.Unlock()
	s.cron.Start()
	s.logger.Info("reminder scheduler started",
		"daily", s.cfg.DailySpec, "hourly", s.cfg.HourlySpec, "timezone", s.cfg.Location.String())
	go func() {
		<-ctx.Done()
		s.cron.Stop()
	}()
}

// Stop halts the schedules and waits for a running batch to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) job(kind appointments.ReminderKind) func() {
	return func() {
		s.mu.Lock()
		ctx := s.rootCtx
		s.mu.Unlock()
		var err error
		if kind == appointments.ReminderDaily {
			_, err = s.RunDaily(ctx)
		} else {
			_, err = s.RunHourly(ctx)
		}
		if err != nil {
			s.logger.Error("reminder run failed", "kind", kind, "error", err)
		}
	}
}

// RunDaily calls every confirmed appointment of today that has not had its
// daily reminder.
func (s *Scheduler) RunDaily(ctx context.Context) (Summary, error) {
	today := appointments.Day(s.now().In(s.cfg.Location))
	return s.run(ctx, appointments.ReminderDaily, today, nil)
}

// RunHourly calls today's confirmed appointments whose slot starts in the
// next clock hour. At 11 PM the target hour wraps to midnight of the same
// day.
func (s *Scheduler) RunHourly(ctx context.Context) (Summary, error) {
	now := s.now().In(s.cfg.Location)
	target := (now.Hour() + 1) % 24
	return s.run(ctx, appointments.ReminderHourly, appointments.Day(now), func(a appointments.Appointment) bool {
		hour, err := ivr.ParseTimeLabel(a.Time)
		return err == nil && hour == target
	})
}

func (s *Scheduler) run(ctx context.Context, kind appointments.ReminderKind, day time.Time, keep func(appointments.Appointment) bool) (Summary, error) {
	ctx, span := tracer.Start(ctx, "reminders.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("caresync.reminder_kind", string(kind)),
		attribute.String("caresync.date", day.Format("2006-01-02")),
	)

	sum := Summary{Kind: kind}
	due, err := s.repo.ListForReminder(ctx, day, kind)
	if err != nil {
		span.RecordError(err)
		return sum, fmt.Errorf("reminders: list %s: %w", kind, err)
	}
	var batch []appointments.Appointment
	for _, a := range due {
		if keep == nil || keep(a) {
			batch = append(batch, a)
		}
	}
	sum.Found = len(batch)
	s.logger.Info("reminder run", "kind", kind, "date", day.Format("2006-01-02"), "due", len(batch))

	for i, a := range batch {
		res := s.caller.PlaceReminderCall(ctx, a.ID, s.cfg.URLs)
		if errors.Is(res.Err, ivr.ErrNoPhone) {
			sum.Skipped++
			continue
		}
		s.metrics.ObserveReminderCall(string(kind), res.Success)
		if res.Success {
			sum.Called++
			if err := s.repo.MarkReminderSent(ctx, a.ID, kind, s.now()); err != nil {
				s.logger.Error("mark reminder sent failed", "appointment_id", a.ID, "kind", kind, "error", err)
			}
		} else {
			sum.Failed++
			s.logger.Warn("reminder call failed", "appointment_id", a.ID, "kind", kind, "error", res.Error)
		}

		if i < len(batch)-1 && s.cfg.CallGap > 0 {
			if err := s.sleep(ctx, s.cfg.CallGap); err != nil {
				return sum, fmt.Errorf("reminders: %s run interrupted: %w", kind, err)
			}
		}
	}
	span.SetAttributes(
		attribute.Int("caresync.reminders_called", sum.Called),
		attribute.Int("caresync.reminders_failed", sum.Failed),
	)
	return sum, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// cronLogger routes cron's own messages through the service logger.
type cronLogger struct {
	logger *logging.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
