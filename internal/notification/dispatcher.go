// internal/notification/dispatcher.go
package notification

import (
	"context"
	"errors"
	"time"

	"endorsement-workers/internal/common/config"
	apperrors "endorsement-workers/internal/common/errors"
	"endorsement-workers/internal/common/logger"
	"endorsement-workers/internal/common/metrics"
	"endorsement-workers/internal/common/observability"
	"endorsement-workers/internal/common/retry"
	"endorsement-workers/internal/endorsement"

	"go.opentelemetry.io/otel/attribute"
)

// Mailer delivers a message to one email address.
type Mailer interface {
	Send(ctx context.Context, to string, msg Message) (string, error)
}

// Alerter delivers an internal reviewer alert.
type Alerter interface {
	Alert(ctx context.Context, endorsementID string, msg Message) (string, error)
}

const (
	resultSent        = "sent"
	resultRescheduled = "rescheduled"
	resultFailed      = "failed"
	resultSkipped     = "skipped"
)

// Options tunes polling and delivery.
type Options struct {
	PollInterval time.Duration
	BatchSize    int
	Lease        time.Duration
	MaxAttempts  int
	// Send retries a single delivery in process.
	Send retry.Policy
	// Reschedule spaces out outbox attempts after a delivery gives up.
	Reschedule retry.Policy
}

// OptionsFromConfig fills zero values with defaults.
func OptionsFromConfig(cfg config.DispatcherConfig) Options {
	opts := Options{
		PollInterval: cfg.PollInterval,
		BatchSize:    cfg.BatchSize,
		Lease:        cfg.Lease,
		MaxAttempts:  cfg.MaxAttempts,
		Send: retry.Policy{
			MaxAttempts: cfg.SendRetries,
			BaseDelay:   cfg.BaseDelay,
			MaxDelay:    10 * time.Second,
		},
		Reschedule: retry.Policy{
			BaseDelay: 30 * time.Second,
			MaxDelay:  cfg.MaxDelay,
		},
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 20
	}
	if opts.Lease <= 0 {
		opts.Lease = 2 * time.Minute
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 8
	}
	if opts.Send.MaxAttempts <= 0 {
		opts.Send.MaxAttempts = retry.DefaultPolicy.MaxAttempts
	}
	if opts.Send.BaseDelay <= 0 {
		opts.Send.BaseDelay = retry.DefaultPolicy.BaseDelay
	}
	if opts.Reschedule.MaxDelay <= 0 {
		opts.Reschedule.MaxDelay = 10 * time.Minute
	}
	return opts
}

// Dispatcher drains the notification outbox. It runs apart from the calls
// that enqueue jobs, so a delivery failure never reaches the caller of the
// transition that produced it.
type Dispatcher struct {
	outbox    endorsement.Outbox
	templates *Templates
	mailer    Mailer
	alerter   Alerter
	opts      Options
	now       func() time.Time
	logger    logger.Logger
	obs       *observability.Observability
}

func NewDispatcher(outbox endorsement.Outbox, templates *Templates, mailer Mailer, alerter Alerter, opts Options, log logger.Logger, obs *observability.Observability) *Dispatcher {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Dispatcher{
		outbox:    outbox,
		templates: templates,
		mailer:    mailer,
		alerter:   alerter,
		opts:      opts,
		now:       time.Now,
		logger:    log.WithFields(map[string]interface{}{"component": "notification-dispatcher"}),
		obs:       obs,
	}
}

// Run polls the outbox until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.Info("Notification dispatcher started", map[string]interface{}{
		"pollInterval": d.opts.PollInterval.String(),
		"batchSize":    d.opts.BatchSize,
	})

	ticker := time.NewTicker(d.opts.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := d.DispatchOnce(ctx); err != nil && ctx.Err() == nil {
			d.logger.Error("Notification dispatch cycle failed", map[string]interface{}{"error": err.Error()})
		}

		select {
		case <-ctx.Done():
			d.logger.Info("Notification dispatcher stopped", nil)
			return
		case <-ticker.C:
		}
	}
}

// DispatchOnce claims one batch of due jobs and delivers each. It returns the
// number of jobs claimed.
func (d *Dispatcher) DispatchOnce(ctx context.Context) (int, error) {
	jobs, err := d.outbox.ClaimJobs(ctx, d.now().UTC(), d.opts.BatchSize, d.opts.Lease)
	if err != nil {
		return 0, apperrors.NewDatabaseError("claim notification jobs", err)
	}
	for _, job := range jobs {
		if ctx.Err() != nil {
			// Unprocessed leases expire and the jobs are claimed again.
			return len(jobs), ctx.Err()
		}
		d.deliver(ctx, job)
	}
	return len(jobs), nil
}

func (d *Dispatcher) deliver(ctx context.Context, job *endorsement.NotificationJob) {
	start := time.Now()
	kind := string(job.Kind)

	ctx, span := observability.StartSpan(ctx, "notification.dispatch",
		attribute.String("notification.kind", kind),
		attribute.String("notification.job_id", job.ID),
		attribute.String("endorsement.id", job.EndorsementID),
	)

	result, err := d.attempt(ctx, job)
	observability.EndSpan(span, err)

	metrics.NotificationsDispatched.WithLabelValues(kind, result).Inc()
	metrics.NotificationDispatchDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	d.obs.RecordDispatch(ctx, kind, result)
}

func (d *Dispatcher) attempt(ctx context.Context, job *endorsement.NotificationJob) (string, error) {
	fields := map[string]interface{}{
		"jobId":         job.ID,
		"kind":          string(job.Kind),
		"endorsementId": job.EndorsementID,
		"attempt":       job.Attempts + 1,
	}

	if job.Kind == endorsement.KindReviewRequested && d.alerter == nil {
		d.logger.Debug("Reviewer alerts disabled, skipping", fields)
		return resultSkipped, d.complete(ctx, job, fields)
	}

	msg, err := d.templates.Render(job)
	if err != nil {
		return d.giveUp(ctx, job, Permanent(err), fields)
	}

	var messageID string
	err = retry.Do(ctx, d.opts.Send, func(ctx context.Context) error {
		var sendErr error
		messageID, sendErr = d.send(ctx, job, msg)
		return sendErr
	}, func(err error) bool {
		return !IsPermanent(err) && retry.IsTransient(err)
	}, func(attempt int, err error, next time.Duration) {
		d.logger.Warn("Notification send failed, retrying", mergeFields(fields, map[string]interface{}{
			"sendAttempt": attempt,
			"retryIn":     next.String(),
			"error":       err.Error(),
		}))
	})
	if err != nil {
		if IsPermanent(err) {
			return d.giveUp(ctx, job, err, fields)
		}
		return d.reschedule(ctx, job, err, fields)
	}

	d.logger.Info("Notification sent", mergeFields(fields, map[string]interface{}{"messageId": messageID}))
	return resultSent, d.complete(ctx, job, fields)
}

func (d *Dispatcher) send(ctx context.Context, job *endorsement.NotificationJob, msg Message) (string, error) {
	if job.Kind == endorsement.KindReviewRequested {
		return d.alerter.Alert(ctx, job.EndorsementID, msg)
	}
	if d.mailer == nil {
		return "", Permanent(errors.New("email delivery disabled"))
	}
	return d.mailer.Send(ctx, job.Recipient, msg)
}

func (d *Dispatcher) complete(ctx context.Context, job *endorsement.NotificationJob, fields map[string]interface{}) error {
	if err := d.outbox.CompleteJob(ctx, job.ID, d.now().UTC()); err != nil {
		d.logger.Error("Failed to mark notification sent", mergeFields(fields, map[string]interface{}{"error": err.Error()}))
		return err
	}
	return nil
}

func (d *Dispatcher) reschedule(ctx context.Context, job *endorsement.NotificationJob, cause error, fields map[string]interface{}) (string, error) {
	attempts := job.Attempts + 1
	if attempts >= d.opts.MaxAttempts {
		return d.giveUp(ctx, job, cause, fields)
	}

	next := d.now().UTC().Add(d.opts.Reschedule.Backoff(attempts))
	dispatchErr := apperrors.NewDispatchFailureError(string(job.Kind), cause)
	d.logger.Warn("Notification delivery failed, rescheduled", mergeFields(fields, map[string]interface{}{
		"errorCode":     string(dispatchErr.Code),
		"error":         cause.Error(),
		"nextAttemptAt": next.Format(time.RFC3339),
	}))

	if err := d.outbox.RescheduleJob(ctx, job.ID, attempts, next, cause.Error()); err != nil {
		d.logger.Error("Failed to reschedule notification", mergeFields(fields, map[string]interface{}{"error": err.Error()}))
	}
	return resultRescheduled, dispatchErr
}

func (d *Dispatcher) giveUp(ctx context.Context, job *endorsement.NotificationJob, cause error, fields map[string]interface{}) (string, error) {
	attempts := job.Attempts + 1
	dispatchErr := apperrors.NewDispatchFailureError(string(job.Kind), cause)
	d.logger.Error("Notification delivery abandoned", mergeFields(fields, map[string]interface{}{
		"errorCode": string(dispatchErr.Code),
		"error":     cause.Error(),
		"permanent": IsPermanent(cause),
	}))

	if err := d.outbox.FailJob(ctx, job.ID, attempts, cause.Error()); err != nil {
		d.logger.Error("Failed to mark notification failed", mergeFields(fields, map[string]interface{}{"error": err.Error()}))
	}
	return resultFailed, dispatchErr
}

func mergeFields(base, extra map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
