package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/TripPipe/internal/models"
	"github.com/BTreeMap/TripPipe/internal/normalize"
)

// DefaultCallTimeout bounds every call to an external collaborator.
const DefaultCallTimeout = 10 * time.Second

// Opts holds configuration for a Controller.
type Opts struct {
	CallTimeout time.Duration
}

// Option defines a configuration option for a Controller.
type Option func(*Opts)

// WithCallTimeout sets the timeout applied to resolver, preference and booking calls.
func WithCallTimeout(d time.Duration) Option {
	return func(o *Opts) {
		o.CallTimeout = d
	}
}

// Controller applies turns to conversation states. It holds no per-session data
// and is safe for concurrent use as long as each state is owned by one caller.
type Controller struct {
	deps        Dependencies
	callTimeout time.Duration
}

// NewController creates a Controller. A resolver and a preference store are
// required; the normalizer defaults to one using the wall clock.
func NewController(deps Dependencies, opts ...Option) (*Controller, error) {
	if deps.Resolver == nil {
		return nil, fmt.Errorf("location resolver is required")
	}
	if deps.Preferences == nil {
		return nil, fmt.Errorf("preference store is required")
	}
	if deps.Normalizer == nil {
		deps.Normalizer = normalize.New()
	}

	cfg := Opts{CallTimeout: DefaultCallTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}

	slog.Debug("Controller created", "callTimeout", cfg.CallTimeout,
		"flights", deps.Flights != nil, "cars", deps.Cars != nil, "ledger", deps.Ledger != nil)
	return &Controller{deps: deps, callTimeout: cfg.CallTimeout}, nil
}

// HandleTurn applies one turn to st and returns the directives to render. st is
// mutated in place.
func (c *Controller) HandleTurn(ctx context.Context, st *models.ConversationState, turn models.Turn) []models.Directive {
	slog.Debug("Controller.HandleTurn", "session", st.SessionID, "intent", turn.Intent,
		"entities", len(turn.Entities), "flow", st.ActiveFlow, "stage", st.Stage, "pending", st.PendingField)

	if out, handled := c.answerOffer(ctx, st, turn); handled {
		return out
	}
	if out, handled := c.intercept(ctx, st, turn); handled {
		return out
	}
	return c.route(ctx, st, turn)
}

// route dispatches a turn that no interruption claimed.
func (c *Controller) route(ctx context.Context, st *models.ConversationState, turn models.Turn) []models.Directive {
	if kind := requestedFlow(turn); kind != models.FlowNone {
		switch st.ActiveFlow {
		case models.FlowNone:
			return c.startFlow(ctx, st, kind, turn)
		case kind:
			// Repeating the booking intent is just more information.
		default:
			slog.Debug("Controller.route: flow already active", "active", st.ActiveFlow, "requested", kind)
			out := []models.Directive{models.Notify(models.NoticeFlowInProgress, map[string]string{
				"flow":      string(st.ActiveFlow),
				"requested": string(kind),
			})}
			return append(out, c.reprompt(st)...)
		}
	}

	if st.ActiveFlow == models.FlowNone {
		return []models.Directive{models.Notify(models.NoticeGreeting, nil)}
	}
	if st.Ambiguity != nil {
		return c.resolveAmbiguity(ctx, st, turn)
	}
	if st.Suggestion != nil {
		return c.answerSuggestion(ctx, st, turn)
	}

	switch st.Stage {
	case models.StageReviewing, models.StageSearching:
		return c.review(ctx, st, turn)
	case models.StageCorrecting:
		return c.correct(ctx, st, turn)
	case models.StageSelecting:
		return c.selectOption(st, turn)
	case models.StageAwaitingFinalConfirm:
		return c.finalConfirm(ctx, st, turn)
	default:
		return c.collect(ctx, st, turn)
	}
}

func requestedFlow(turn models.Turn) models.FlowKind {
	for _, in := range turn.Intents() {
		switch in {
		case models.IntentBookFlight:
			return models.FlowFlight
		case models.IntentBookHotel:
			return models.FlowHotel
		case models.IntentBookCar:
			return models.FlowCar
		}
	}
	return models.FlowNone
}

func (c *Controller) startFlow(ctx context.Context, st *models.ConversationState, kind models.FlowKind, turn models.Turn) []models.Directive {
	slog.Info("Controller.startFlow", "session", st.SessionID, "flow", kind)
	st.Reset()
	st.ActiveFlow = kind
	st.Stage = models.StageCollecting
	recompute(st)
	return c.collect(ctx, st, turn)
}

// collect handles a turn while fields are still being gathered.
func (c *Controller) collect(ctx context.Context, st *models.ConversationState, turn models.Turn) []models.Directive {
	st.Stage = models.StageCollecting
	pending := st.PendingField

	if !c.answerAddMore(st, turn) && models.IsOptionalField(pending) && turn.HasIntent(models.IntentDeny) {
		c.write(st, pending, models.DeclinedValue())
	}

	out := c.applyEntities(ctx, st, turn, collectMode)
	return append(out, c.advance(ctx, st)...)
}

// advance recomputes the pending field and asks for it, or completes the flow
// once nothing is missing. Nothing is emitted while a context is open.
func (c *Controller) advance(ctx context.Context, st *models.ConversationState) []models.Directive {
	recompute(st)
	if st.HasOpenContext() {
		return nil
	}
	if st.PendingField != "" {
		st.Stage = models.StageCollecting
		return []models.Directive{models.PromptField(st.PendingField)}
	}
	return c.complete(ctx, st)
}

func (c *Controller) complete(ctx context.Context, st *models.ConversationState) []models.Directive {
	switch st.ActiveFlow {
	case models.FlowFlight:
		st.Stage = models.StageReviewing
		return []models.Directive{models.ShowSummary(Summary(st))}
	case models.FlowCar:
		return c.searchCars(ctx, st)
	case models.FlowHotel:
		return c.finishHotel(ctx, st)
	default:
		err := &models.FlowStateError{Op: "complete", Detail: "no active flow"}
		slog.Error("Controller.complete", "session", st.SessionID, "error", err)
		return []models.Directive{errorDirective(err)}
	}
}

// reprompt re-asks whatever the conversation is currently waiting for.
func (c *Controller) reprompt(st *models.ConversationState) []models.Directive {
	switch {
	case st.ActiveFlow == models.FlowNone:
		return nil
	case st.CancellationPending:
		return []models.Directive{confirmCancelNotice(st)}
	case st.Ambiguity != nil:
		return []models.Directive{ambiguityOptions(st.Ambiguity)}
	case st.Suggestion != nil:
		return []models.Directive{suggestionNotice(st.Suggestion)}
	}

	switch st.Stage {
	case models.StageReviewing, models.StageSearching:
		return []models.Directive{models.ShowSummary(Summary(st))}
	case models.StageCorrecting:
		return []models.Directive{models.Notify(models.NoticeAskCorrection, nil)}
	case models.StageSelecting:
		return []models.Directive{flightOptions(st.Results)}
	case models.StageAwaitingFinalConfirm:
		return []models.Directive{confirmSelectionNotice(st.Selected)}
	}
	if st.PendingField == "" {
		return nil
	}
	return []models.Directive{models.PromptField(st.PendingField)}
}

// OptionsDirective re-renders the current flight options, for notices raised
// outside a turn.
func (c *Controller) OptionsDirective(st *models.ConversationState) models.Directive {
	return flightOptions(st.Results)
}

func (c *Controller) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.callTimeout)
}

// errorDirective maps a typed error onto a report_error directive.
func errorDirective(err error) models.Directive {
	var (
		ve *models.ValidationError
		se *models.ServiceError
		fe *models.FlowStateError
	)
	switch {
	case errors.As(err, &ve):
		return models.ReportError(models.ErrorKindValidation, ve.Field, ve.Reason, map[string]string{"value": ve.Value})
	case errors.As(err, &se):
		return models.ReportError(models.ErrorKindService, "", models.ReasonUnavailable, map[string]string{"op": se.Op})
	case errors.As(err, &fe):
		return models.ReportError(models.ErrorKindFlowState, "", "", map[string]string{"op": fe.Op})
	default:
		return models.ReportError(models.ErrorKindFlowState, "", "", map[string]string{"detail": err.Error()})
	}
}

// hasErrorDirective reports whether any directive reports an error.
func hasErrorDirective(out []models.Directive) bool {
	for _, d := range out {
		if d.Kind == models.DirectiveReportError {
			return true
		}
	}
	return false
}
