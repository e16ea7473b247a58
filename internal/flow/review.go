package flow

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/BTreeMap/TripPipe/internal/models"
	"github.com/BTreeMap/TripPipe/internal/normalize"
)

// review handles the turn after the summary was shown: yes searches, no asks
// for a correction, and new information is taken as the correction itself.
func (c *Controller) review(ctx context.Context, st *models.ConversationState, turn models.Turn) []models.Directive {
	switch {
	case turn.HasIntent(models.IntentAffirm), turn.HasIntent(models.IntentConfirmBooking):
		return c.search(ctx, st)
	case len(fieldEntities(turn)) > 0:
		return c.correct(ctx, st, turn)
	case turn.HasIntent(models.IntentDeny):
		st.Stage = models.StageCorrecting
		slog.Debug("Controller.review: user wants a correction", "session", st.SessionID)
		return []models.Directive{models.Notify(models.NoticeAskCorrection, nil)}
	default:
		return []models.Directive{models.ShowSummary(Summary(st))}
	}
}

// correct applies one correction utterance. Invalidated fields are asked again
// before the summary is shown anew.
func (c *Controller) correct(ctx context.Context, st *models.ConversationState, turn models.Turn) []models.Directive {
	st.Stage = models.StageCorrecting

	if len(fieldEntities(turn)) == 0 {
		slog.Debug("Controller.correct: nothing to apply", "session", st.SessionID, "intent", turn.Intent)
		st.Stage = models.StageReviewing
		return []models.Directive{
			models.ReportError(models.ErrorKindValidation, "", models.ReasonNoCorrection, nil),
			models.ShowSummary(Summary(st)),
		}
	}

	mode := applyMode{correcting: true, stopIndex: -1}
	if st.ActiveFlow == models.FlowFlight && st.Collected[models.FieldTripType].Text == models.TripMultiCity {
		idx, oerr := correctionStop(st, turn)
		if oerr != nil {
			slog.Debug("Controller.correct: bad ordinal", "session", st.SessionID, "error", oerr)
			return []models.Directive{oerr.directive()}
		}
		mode.stopIndex = idx
	}

	out := c.applyEntities(ctx, st, turn, mode)
	if st.HasOpenContext() {
		return out
	}
	if hasErrorDirective(out) {
		return append(out, models.Notify(models.NoticeAskCorrection, nil))
	}
	slog.Info("Controller.correct: applied", "session", st.SessionID, "fields", len(st.Collected))
	return append(out, c.advance(ctx, st)...)
}

type ordinalError struct {
	raw    string
	stops  int
	reason string
}

func (e *ordinalError) Error() string {
	return "ordinal " + strconv.Quote(e.raw) + ": " + e.reason
}

func (e *ordinalError) directive() models.Directive {
	return models.ReportError(models.ErrorKindValidation, models.FieldDestinations, e.reason, map[string]string{
		"ordinal": e.raw,
		"stops":   strconv.Itoa(e.stops),
	})
}

// correctionStop picks the itinerary slot a multi-city correction targets: the
// ordinal when one is given, otherwise the last stop.
func correctionStop(st *models.ConversationState, turn models.Turn) (int, *ordinalError) {
	items := st.Itinerary()
	raw := ""
	for _, e := range turn.EntitiesOf(models.EntityCity) {
		if e.Ordinal != "" {
			raw = e.Ordinal
			break
		}
	}
	if raw == "" {
		if ords := turn.EntitiesOf(models.EntityOrdinal); len(ords) > 0 {
			raw = ords[0].Value
		}
	}
	if raw == "" {
		if len(items) == 0 {
			return -1, nil
		}
		return len(items) - 1, nil
	}

	pos, err := normalize.ParseOrdinal(raw)
	if err != nil {
		return 0, &ordinalError{raw: raw, stops: len(items), reason: models.ReasonInvalidSelection}
	}
	idx, err := normalize.OrdinalIndex(pos, len(items))
	if err != nil {
		return 0, &ordinalError{raw: raw, stops: len(items), reason: models.ReasonOrdinalOutOfRange}
	}
	return idx, nil
}
