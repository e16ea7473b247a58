package flow

import (
	"log/slog"

	"github.com/BTreeMap/TripPipe/internal/models"
	"github.com/BTreeMap/TripPipe/internal/normalize"
)

// answerAddMore records a yes or no to "add another destination?". It reports
// whether the turn answered the question.
func (c *Controller) answerAddMore(st *models.ConversationState, turn models.Turn) bool {
	if st.PendingField != models.FieldAddMoreDestinations {
		return false
	}
	switch {
	case turn.HasIntent(models.IntentAffirm):
		c.write(st, models.FieldAddMoreDestinations, models.FlagValue(true))
	case turn.HasIntent(models.IntentDeny):
		c.write(st, models.FieldAddMoreDestinations, models.FlagValue(false))
	default:
		return false
	}
	return true
}

// placeStop appends loc to the itinerary (index < 0 or past the end) or replaces
// the stop at index. A stop may not repeat the stop before it.
func placeStop(st *models.ConversationState, index int, loc models.Location) error {
	items := append([]models.Location(nil), st.Itinerary()...)
	appending := index < 0 || index >= len(items)
	if appending {
		index = len(items)
	}

	var prev *models.Location
	if index > 0 {
		prev = &items[index-1]
	} else if d, ok := st.Get(models.FieldDepartureCity); ok {
		dep := d.Location()
		prev = &dep
	}
	if prev != nil && sameCity(*prev, loc) {
		reason := models.ReasonSameAsPreviousStop
		if index == 0 {
			reason = models.ReasonSameAsDeparture
		}
		return models.NewValidationError(models.FieldNextDestination, reason, loc.Name)
	}
	if !appending && index+1 < len(items) && sameCity(items[index+1], loc) {
		return models.NewValidationError(models.FieldNextDestination, models.ReasonSameAsPreviousStop, loc.Name)
	}

	if appending {
		items = append(items, loc)
		// Every new stop is followed by "another one?".
		delete(st.Collected, models.FieldAddMoreDestinations)
	} else {
		items[index] = loc
	}
	st.Collected[models.FieldDestinations] = models.Value{Items: items}
	slog.Debug("Controller: itinerary updated", "session", st.SessionID, "stops", len(items), "index", index)
	return nil
}

func sameCity(a, b models.Location) bool {
	return normalize.FoldText(a.Name) == normalize.FoldText(b.Name)
}
