package flow

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/TripPipe/internal/models"
	"github.com/BTreeMap/TripPipe/internal/normalize"
)

type turnHandler func(c *Controller, ctx context.Context, st *models.ConversationState, turn models.Turn) []models.Directive

// interruption is one row of the interruption table.
type interruption struct {
	name    string
	matches func(st *models.ConversationState, turn models.Turn) bool
	handle  turnHandler
}

// interruptions is evaluated top to bottom before normal routing; the first
// matching row handles the turn.
var interruptions = []interruption{
	{
		name:    "cancellation_pending",
		matches: func(st *models.ConversationState, _ models.Turn) bool { return st.CancellationPending },
		handle:  (*Controller).answerCancellation,
	},
	{
		name:    "bot_challenge",
		matches: intentIs(models.IntentBotChallenge),
		handle:  (*Controller).botChallenge,
	},
	{
		name:    "cancel",
		matches: intentIs(models.IntentStop, models.IntentCancel),
		handle:  (*Controller).requestCancellation,
	},
	{
		name:    "help",
		matches: intentIs(models.IntentHelp),
		handle:  sideAction(models.IntentHelp, (*Controller).showHelp),
	},
	{
		name:    "delete_preference",
		matches: intentIs(models.IntentDeletePreference),
		handle:  sideAction(models.IntentDeletePreference, (*Controller).deletePreference),
	},
	{
		name:    "store_preference",
		matches: intentIs(models.IntentStorePreference),
		handle:  sideAction(models.IntentStorePreference, (*Controller).storePreference),
	},
	{
		name:    "fallback",
		matches: intentIs(models.IntentOutOfScope, models.IntentFallback),
		handle:  sideAction(models.IntentOutOfScope, (*Controller).fallback),
	},
	{
		name:    "unexpected_yes_no",
		matches: unexpectedYesNo,
		handle:  sideAction(models.IntentAffirm, (*Controller).rephrase),
	},
}

// Intents handled by the table. Everything else in a multi-intent turn is
// routed normally after the side action.
var sideIntents = map[models.Intent]bool{
	models.IntentBotChallenge:     true,
	models.IntentHelp:             true,
	models.IntentDeletePreference: true,
	models.IntentStorePreference:  true,
	models.IntentOutOfScope:       true,
	models.IntentFallback:         true,
}

func intentIs(intents ...models.Intent) func(*models.ConversationState, models.Turn) bool {
	return func(_ *models.ConversationState, turn models.Turn) bool {
		for _, in := range intents {
			if turn.HasIntent(in) {
				return true
			}
		}
		return false
	}
}

// intercept runs the interruption table.
func (c *Controller) intercept(ctx context.Context, st *models.ConversationState, turn models.Turn) ([]models.Directive, bool) {
	for _, row := range interruptions {
		if row.matches(st, turn) {
			slog.Debug("Controller.intercept", "session", st.SessionID, "trigger", row.name, "flow", st.ActiveFlow)
			return row.handle(c, ctx, st, turn), true
		}
	}
	return nil, false
}

// sideAction suspends the active flow around action, resumes it, then handles
// whatever else the turn carried.
func sideAction(reason models.Intent, action turnHandler) turnHandler {
	return func(c *Controller, ctx context.Context, st *models.ConversationState, turn models.Turn) []models.Directive {
		suspended := suspend(st, reason)
		out := action(c, ctx, st, turn)
		if suspended {
			if err := resume(st); err != nil {
				out = append(out, errorDirective(err))
			}
		}
		return append(out, c.continueAfter(ctx, st, turn)...)
	}
}

// continueAfter routes the non-side part of a multi-intent turn, or re-asks the
// pending question when there is none.
func (c *Controller) continueAfter(ctx context.Context, st *models.ConversationState, turn models.Turn) []models.Directive {
	rest, ok := remainder(turn)
	if !ok {
		return c.reprompt(st)
	}
	slog.Debug("Controller.continueAfter: routing remainder", "session", st.SessionID, "intent", rest.Intent, "entities", len(rest.Entities))
	return c.route(ctx, st, rest)
}

// remainder strips side intents, bare yes/no and preference entities from turn.
// It reports false when nothing is left to route.
func remainder(turn models.Turn) (models.Turn, bool) {
	var kept []string
	for _, in := range turn.Intents() {
		switch {
		case sideIntents[in], in == models.IntentAffirm, in == models.IntentDeny:
		default:
			kept = append(kept, string(in))
		}
	}
	var entities []models.Entity
	for _, e := range turn.Entities {
		if e.Type != models.EntityPreferenceKey && e.Type != models.EntitySeatPreference {
			entities = append(entities, e)
		}
	}
	if len(kept) == 0 && len(entities) == 0 {
		return turn, false
	}
	if len(kept) == 0 {
		kept = []string{string(models.IntentInform)}
	}
	rest := turn
	rest.Intent = strings.Join(kept, "+")
	rest.Entities = entities
	return rest, true
}

// suspend pushes the active flow onto the interruption stack. It reports false
// when there is no flow to suspend.
func suspend(st *models.ConversationState, reason models.Intent) bool {
	if st.ActiveFlow == models.FlowNone {
		return false
	}
	st.InterruptionStack = append(st.InterruptionStack, models.SuspendedFlow{
		Flow:         st.ActiveFlow,
		Collected:    st.Collected,
		PendingField: st.PendingField,
		Stage:        st.Stage,
		Reason:       reason,
		SuspendedAt:  time.Now(),
	})
	slog.Debug("Controller: flow suspended", "session", st.SessionID, "reason", reason, "depth", len(st.InterruptionStack))
	return true
}

// resume pops the top of the interruption stack and restores the flow position.
// An empty stack is a FlowStateError; the pending field is recomputed either way.
func resume(st *models.ConversationState) error {
	n := len(st.InterruptionStack)
	if n == 0 {
		err := &models.FlowStateError{Op: "resume", Detail: "interruption stack is empty"}
		slog.Error("Controller: resume failed", "session", st.SessionID, "error", err)
		recompute(st)
		return err
	}
	top := st.InterruptionStack[n-1]
	st.InterruptionStack = st.InterruptionStack[:n-1]

	st.ActiveFlow = top.Flow
	st.Stage = top.Stage
	if top.Collected != nil {
		st.Collected = top.Collected
	}
	recompute(st)
	if st.PendingField != top.PendingField {
		slog.Warn("Controller: pending field moved while suspended", "session", st.SessionID,
			"before", top.PendingField, "after", st.PendingField)
	}
	slog.Debug("Controller: flow resumed", "session", st.SessionID, "reason", top.Reason, "pending", st.PendingField)
	return nil
}

func (c *Controller) answerCancellation(ctx context.Context, st *models.ConversationState, turn models.Turn) []models.Directive {
	switch {
	case turn.HasIntent(models.IntentAffirm):
		flow := st.ActiveFlow
		st.Reset()
		slog.Info("Controller: flow cancelled", "session", st.SessionID, "flow", flow)
		return []models.Directive{models.Notify(models.NoticeCancelled, map[string]string{"flow": string(flow)})}

	case turn.HasIntent(models.IntentDeny):
		st.CancellationPending = false
		out := []models.Directive{models.Notify(models.NoticeCancelAborted, nil)}
		if err := resume(st); err != nil {
			out = append(out, errorDirective(err))
		}
		if st.Stage == models.StageCollecting && len(st.Collected) > 0 {
			out = append(out, models.ShowSummary(Summary(st)))
		}
		return append(out, c.reprompt(st)...)

	default:
		return []models.Directive{confirmCancelNotice(st)}
	}
}

func (c *Controller) botChallenge(ctx context.Context, st *models.ConversationState, turn models.Turn) []models.Directive {
	out := []models.Directive{models.Notify(models.NoticeBotChallenge, nil)}
	return append(out, c.continueAfter(ctx, st, turn)...)
}

func (c *Controller) requestCancellation(ctx context.Context, st *models.ConversationState, turn models.Turn) []models.Directive {
	if st.ActiveFlow == models.FlowNone {
		return []models.Directive{models.Notify(models.NoticeNothingToCancel, nil)}
	}
	suspend(st, models.IntentCancel)
	st.CancellationPending = true
	return []models.Directive{confirmCancelNotice(st)}
}

func confirmCancelNotice(st *models.ConversationState) models.Directive {
	return models.Notify(models.NoticeConfirmCancel, map[string]string{"flow": string(st.ActiveFlow)})
}

func (c *Controller) showHelp(ctx context.Context, st *models.ConversationState, turn models.Turn) []models.Directive {
	params := map[string]string{}
	if st.ActiveFlow != models.FlowNone {
		params["flow"] = string(st.ActiveFlow)
	}
	if st.PendingField != "" {
		params["field"] = string(st.PendingField)
	}
	return []models.Directive{models.Notify(models.NoticeHelp, params)}
}

func (c *Controller) fallback(ctx context.Context, st *models.ConversationState, turn models.Turn) []models.Directive {
	return []models.Directive{models.Notify(models.NoticeFallback, nil)}
}

func (c *Controller) rephrase(ctx context.Context, st *models.ConversationState, turn models.Turn) []models.Directive {
	return []models.Directive{models.Notify(models.NoticeRephrase, nil)}
}

// preferenceKey reads which preference a turn refers to. Seat is the default.
func preferenceKey(turn models.Turn) string {
	for _, e := range turn.EntitiesOf(models.EntityPreferenceKey) {
		if strings.Contains(normalize.FoldText(e.Value), "airline") {
			return models.PreferenceAirline
		}
	}
	return models.PreferenceSeat
}

func (c *Controller) deletePreference(ctx context.Context, st *models.ConversationState, turn models.Turn) []models.Directive {
	key := preferenceKey(turn)
	pctx, cancel := c.callContext(ctx)
	defer cancel()

	removed, err := c.deps.Preferences.DeletePreference(pctx, st.UserID, key)
	if err != nil {
		slog.Error("Controller.deletePreference failed", "user", st.UserID, "key", key, "error", err)
		return []models.Directive{errorDirective(&models.ServiceError{Op: "preferences.delete", Err: err})}
	}
	if !removed {
		return []models.Directive{models.Notify(models.NoticePreferenceMissing, map[string]string{"key": key})}
	}
	slog.Info("Controller.deletePreference", "user", st.UserID, "key", key)
	return []models.Directive{models.Notify(models.NoticePreferenceDeleted, map[string]string{"key": key})}
}

func (c *Controller) storePreference(ctx context.Context, st *models.ConversationState, turn models.Turn) []models.Directive {
	key, value := "", ""
	if seats := turn.EntitiesOf(models.EntitySeatPreference); len(seats) > 0 {
		seat, err := normalize.SeatPreference(seats[0].Value)
		if err != nil {
			return []models.Directive{models.ReportError(models.ErrorKindValidation, "", models.ReasonInvalidPreference,
				map[string]string{"value": seats[0].Value})}
		}
		key, value = models.PreferenceSeat, seat
	} else if airlines := turn.EntitiesOf(models.EntityAirline); len(airlines) > 0 && strings.TrimSpace(airlines[0].Value) != "" {
		key, value = models.PreferenceAirline, normalize.Airline(airlines[0].Value)
	}
	if key == "" {
		return []models.Directive{models.ReportError(models.ErrorKindValidation, "", models.ReasonInvalidPreference, nil)}
	}

	pctx, cancel := c.callContext(ctx)
	defer cancel()
	if err := c.deps.Preferences.SetPreference(pctx, st.UserID, key, value); err != nil {
		slog.Error("Controller.storePreference failed", "user", st.UserID, "key", key, "error", err)
		return []models.Directive{errorDirective(&models.ServiceError{Op: "preferences.set", Err: err})}
	}
	slog.Info("Controller.storePreference", "user", st.UserID, "key", key, "value", value)
	return []models.Directive{models.Notify(models.NoticePreferenceSaved, map[string]string{"key": key, "value": value})}
}

// unexpectedYesNo matches a bare affirm or deny the current position does not
// ask for.
func unexpectedYesNo(st *models.ConversationState, turn models.Turn) bool {
	affirm, deny := turn.HasIntent(models.IntentAffirm), turn.HasIntent(models.IntentDeny)
	if !affirm && !deny {
		return false
	}
	if requestedFlow(turn) != models.FlowNone || len(turn.Entities) > 0 {
		return false
	}
	return !yesNoExpected(st, deny)
}

func yesNoExpected(st *models.ConversationState, deny bool) bool {
	switch {
	case st.ActiveFlow == models.FlowNone:
		return false
	case st.Suggestion != nil:
		return true
	case st.Ambiguity != nil:
		return false
	}
	switch st.Stage {
	case models.StageReviewing, models.StageSearching, models.StageAwaitingFinalConfirm:
		return true
	case models.StageSelecting, models.StageCorrecting:
		return false
	}
	if st.PendingField == models.FieldAddMoreDestinations {
		return true
	}
	return deny && models.IsOptionalField(st.PendingField)
}
