package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/BTreeMap/TripPipe/internal/location"
	"github.com/BTreeMap/TripPipe/internal/models"
	"github.com/BTreeMap/TripPipe/internal/normalize"
)

// resolveLocation runs raw through the resolver. An exact match is written to
// field; several candidate codes or a typo suggestion open a context and return
// an AmbiguityError so the caller stops writing locations for this turn.
func (c *Controller) resolveLocation(ctx context.Context, st *models.ConversationState, field models.FieldName, index int, raw string) ([]models.Directive, error) {
	if raw == "" {
		return nil, models.NewValidationError(field, models.ReasonEmptyValue, raw)
	}

	rctx, cancel := c.callContext(ctx)
	defer cancel()
	res, err := c.deps.Resolver.Resolve(rctx, raw)
	if err != nil {
		slog.Error("Controller.resolveLocation: resolver failed", "session", st.SessionID, "text", raw, "error", err)
		return nil, &models.ServiceError{Op: "location.resolve", Err: err}
	}
	slog.Debug("Controller.resolveLocation", "session", st.SessionID, "text", raw, "kind", res.Kind, "field", field)

	// Car pickups need a city, not an airport.
	pickup := field == models.FieldPickupLocation

	switch res.Kind {
	case location.KindExact:
		loc := res.Exact()
		if pickup {
			loc = models.Location{Name: res.CityName}
		}
		return nil, c.commitLocation(st, field, index, loc)

	case location.KindAmbiguous:
		if pickup {
			return nil, c.commitLocation(st, field, index, models.Location{Name: res.CityName})
		}
		st.Ambiguity = &models.AmbiguousLocationContext{
			OriginalText: raw,
			Candidates:   res.Candidates,
			TargetField:  field,
			TargetIndex:  index,
		}
		return []models.Directive{ambiguityOptions(st.Ambiguity)},
			&models.AmbiguityError{Field: field, Text: raw, Candidates: res.Candidates}

	case location.KindSuggestion:
		st.Suggestion = &models.SuggestedCorrection{
			TypedText:     raw,
			SuggestedText: res.Suggestion,
			TargetField:   field,
			TargetIndex:   index,
		}
		return []models.Directive{suggestionNotice(st.Suggestion)},
			&models.AmbiguityError{Field: field, Text: raw, Suggestion: res.Suggestion}

	default:
		if pickup {
			return nil, c.commitLocation(st, field, index, models.Location{Name: normalize.Title(raw)})
		}
		return nil, models.NewValidationError(field, models.ReasonUnknownLocation, raw)
	}
}

// commitLocation validates a resolved location against its neighbours and writes it.
func (c *Controller) commitLocation(st *models.ConversationState, field models.FieldName, index int, loc models.Location) error {
	switch field {
	case models.FieldDepartureCity:
		if d, ok := st.Get(models.FieldDestinationCity); ok && sameCity(d.Location(), loc) {
			return models.NewValidationError(field, models.ReasonSameAsDeparture, loc.Name)
		}
		if items := st.Itinerary(); len(items) > 0 && sameCity(items[0], loc) {
			return models.NewValidationError(field, models.ReasonSameAsDeparture, loc.Name)
		}
	case models.FieldDestinationCity:
		if d, ok := st.Get(models.FieldDepartureCity); ok && sameCity(d.Location(), loc) {
			return models.NewValidationError(field, models.ReasonSameAsDeparture, loc.Name)
		}
	case models.FieldNextDestination, models.FieldDestinations:
		return placeStop(st, index, loc)
	}
	c.write(st, field, models.LocationValue(loc))
	return nil
}

// resolveAmbiguity accepts only a code from the presented candidates.
func (c *Controller) resolveAmbiguity(ctx context.Context, st *models.ConversationState, turn models.Turn) []models.Directive {
	amb := st.Ambiguity
	loc, ok := selectedCandidate(turn, amb.Candidates)
	if !ok {
		slog.Debug("Controller.resolveAmbiguity: no valid code", "session", st.SessionID, "candidates", len(amb.Candidates))
		return []models.Directive{
			models.ReportError(models.ErrorKindValidation, amb.TargetField, models.ReasonInvalidSelection,
				map[string]string{"text": amb.OriginalText}),
			ambiguityOptions(amb),
		}
	}

	st.Ambiguity = nil
	slog.Info("Controller.resolveAmbiguity: selected", "session", st.SessionID, "field", amb.TargetField, "code", loc.Code)
	var out []models.Directive
	if err := c.commitLocation(st, amb.TargetField, amb.TargetIndex, loc); err != nil {
		out = append(out, errorDirective(err))
	}
	return append(out, c.advance(ctx, st)...)
}

func selectedCandidate(turn models.Turn, candidates []models.Location) (models.Location, bool) {
	for _, e := range turn.Entities {
		code := strings.ToUpper(strings.TrimSpace(e.Value))
		for _, cand := range candidates {
			if cand.Code == code {
				return cand, true
			}
		}
	}
	return models.Location{}, false
}

// answerSuggestion handles the yes/no to "did you mean ...?". A new city entity
// replaces the suggestion with a fresh attempt.
func (c *Controller) answerSuggestion(ctx context.Context, st *models.ConversationState, turn models.Turn) []models.Directive {
	sug := st.Suggestion
	switch {
	case turn.HasIntent(models.IntentAffirm):
		st.Suggestion = nil
		out, err := c.resolveLocation(ctx, st, sug.TargetField, sug.TargetIndex, sug.SuggestedText)
		if err != nil {
			var amb *models.AmbiguityError
			if errors.As(err, &amb) {
				return out
			}
			out = append(out, errorDirective(err))
		}
		if st.Stage == models.StageCorrecting && hasErrorDirective(out) {
			return append(out, models.Notify(models.NoticeAskCorrection, nil))
		}
		return append(out, c.advance(ctx, st)...)

	case turn.HasIntent(models.IntentDeny):
		st.Suggestion = nil
		recompute(st)
		return []models.Directive{models.PromptField(sug.TargetField)}

	case len(turn.EntitiesOf(models.EntityCity)) > 0:
		st.Suggestion = nil
		return c.route(ctx, st, turn)

	default:
		return []models.Directive{models.Notify(models.NoticeRephrase, nil), suggestionNotice(sug)}
	}
}

func ambiguityOptions(amb *models.AmbiguousLocationContext) models.Directive {
	opts := make([]models.Option, 0, len(amb.Candidates))
	for _, cand := range amb.Candidates {
		opts = append(opts, models.Option{Label: fmt.Sprintf("%s (%s)", cand.Name, cand.Code), Payload: cand.Code})
	}
	params := map[string]string{
		"text":  amb.OriginalText,
		"field": string(amb.TargetField),
	}
	if amb.TargetIndex >= 0 {
		params["index"] = strconv.Itoa(amb.TargetIndex)
	}
	return models.ShowOptions(models.NoticeAmbiguousLocation, opts, params)
}

func suggestionNotice(sug *models.SuggestedCorrection) models.Directive {
	return models.Notify(models.NoticeSuggestion, map[string]string{
		"typed":      sug.TypedText,
		"suggestion": sug.SuggestedText,
		"field":      string(sug.TargetField),
	})
}
