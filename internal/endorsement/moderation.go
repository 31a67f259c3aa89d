// internal/endorsement/moderation.go
package endorsement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"endorsement-workers/internal/common/logger"
	"endorsement-workers/internal/common/metrics"
	"endorsement-workers/internal/common/observability"

	"go.opentelemetry.io/otel/attribute"
)

// Action is a reviewer decision. The set is closed: Approve, Reject,
// Feature and Unfeature.
type Action interface {
	Name() string
	isAction()
}

type Approve struct{}

type Reject struct {
	Reason string
}

type Feature struct{}

type Unfeature struct{}

func (Approve) Name() string   { return "approve" }
func (Reject) Name() string    { return "reject" }
func (Feature) Name() string   { return "feature" }
func (Unfeature) Name() string { return "unfeature" }

func (Approve) isAction()   {}
func (Reject) isAction()    {}
func (Feature) isAction()   {}
func (Unfeature) isAction() {}

// ParseAction resolves an action name received at the boundary.
func ParseAction(name, reason string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "approve":
		return Approve{}, nil
	case "reject":
		return Reject{Reason: reason}, nil
	case "feature":
		return Feature{}, nil
	case "unfeature":
		return Unfeature{}, nil
	default:
		return nil, NewValidationError("action", fmt.Sprintf("unknown action %q", name))
	}
}

// Reviewer is the authenticated caller of a moderation action. How the
// caller was authenticated is decided outside this package.
type Reviewer struct {
	ID string
}

// Engine applies reviewer actions as guarded transitions.
type Engine struct {
	store     Store
	now       func() time.Time
	logger    logger.Logger
	obs       *observability.Observability
	listeners []TransitionListener
}

func NewEngine(store Store, now func() time.Time, log logger.Logger, listeners ...TransitionListener) *Engine {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Engine{store: store, now: now, logger: log, listeners: listeners}
}

// AddListener registers a hook run after every committed moderation
// transition. Listener failures are logged and never undo the transition.
func (e *Engine) AddListener(l TransitionListener) {
	e.listeners = append(e.listeners, l)
}

// SetObservability routes transition outcomes to the OpenTelemetry meter.
func (e *Engine) SetObservability(obs *observability.Observability) {
	e.obs = obs
}

// Apply performs action on endorsement id on behalf of reviewer. Approve and
// Reject enqueue exactly one notification with the transition; Feature and
// Unfeature enqueue none. When the record's state does not permit the
// action, including after losing a race, a *TransitionError with the current
// state is returned and nothing is written.
func (e *Engine) Apply(ctx context.Context, reviewer Reviewer, id string, action Action) (result *Endorsement, err error) {
	if strings.TrimSpace(reviewer.ID) == "" {
		return nil, ErrUnauthorizedReviewer
	}
	if strings.TrimSpace(id) == "" {
		return nil, NewValidationError("endorsementId", "is required")
	}
	if action == nil {
		return nil, NewValidationError("action", "is required")
	}

	ctx, span := observability.StartSpan(ctx, "endorsement.moderate",
		attribute.String("endorsement.id", id),
		attribute.String("endorsement.action", action.Name()),
	)
	defer func() { observability.EndSpan(span, err) }()

	now := e.now().UTC()
	m := Mutation{Actor: reviewer.ID, At: now}
	var notify JobBuilder

	switch a := action.(type) {
	case Approve:
		m.Kind = MutationApprove
		notify = approvalJob(now)
	case Reject:
		reason := strings.TrimSpace(a.Reason)
		if reason == "" {
			return nil, NewValidationError("reason", "a rejection reason is required")
		}
		m.Kind = MutationReject
		m.Reason = reason
		notify = rejectionJob(now)
	case Feature:
		m.Kind = MutationFeature
	case Unfeature:
		m.Kind = MutationUnfeature
	default:
		return nil, NewValidationError("action", fmt.Sprintf("unsupported action %T", action))
	}

	updated, err := e.store.Apply(ctx, id, m, notify)
	if err != nil {
		var stale *StaleError
		if errors.As(err, &stale) {
			metrics.LifecycleConflicts.WithLabelValues(string(m.Kind)).Inc()
			e.obs.RecordTransition(ctx, string(m.Kind), "rejected")
			e.logger.Warn("Moderation action not permitted in current state", map[string]interface{}{
				"endorsementId":   id,
				"action":          action.Name(),
				"reviewerId":      reviewer.ID,
				"currentStatus":   string(stale.Current.Status),
				"currentFeatured": stale.Current.Featured,
			})
			return nil, &TransitionError{Action: action.Name(), Current: stale.Current.Status, Featured: stale.Current.Featured}
		}
		return nil, err
	}

	metrics.LifecycleTransitions.WithLabelValues(string(m.Kind)).Inc()
	e.obs.RecordTransition(ctx, string(m.Kind), "committed")
	e.logger.Info("Moderation action applied", map[string]interface{}{
		"endorsementId": id,
		"action":        action.Name(),
		"reviewerId":    reviewer.ID,
		"status":        string(updated.Status),
		"featured":      updated.Featured,
	})

	e.notifyListeners(ctx, updated, m.Kind)
	return updated, nil
}

func (e *Engine) notifyListeners(ctx context.Context, updated *Endorsement, kind MutationKind) {
	for _, l := range e.listeners {
		if err := l.OnTransition(ctx, updated.Clone(), kind); err != nil {
			e.logger.Warn("Transition listener failed", map[string]interface{}{
				"endorsementId": updated.ID,
				"transition":    string(kind),
				"error":         err.Error(),
			})
		}
	}
}
