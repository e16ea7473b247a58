package nlu

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/BTreeMap/TripPipe/internal/models"
)

// Parser turns one user utterance into an intent label and entities.
type Parser interface {
	Parse(ctx context.Context, text string) (models.Turn, error)
}

// completer is the part of Client the parser needs.
type completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Compile-time check that OpenAIParser implements Parser.
var _ Parser = (*OpenAIParser)(nil)

// OpenAIParser asks a chat model to label utterances.
type OpenAIParser struct {
	client completer
	now    func() time.Time
}

// NewOpenAIParser creates a parser on top of client.
func NewOpenAIParser(client *Client) *OpenAIParser {
	return &OpenAIParser{client: client, now: time.Now}
}

var knownIntents = []models.Intent{
	models.IntentBookFlight, models.IntentBookHotel, models.IntentBookCar,
	models.IntentInform, models.IntentCorrect, models.IntentAffirm, models.IntentDeny,
	models.IntentStop, models.IntentCancel, models.IntentHelp, models.IntentOutOfScope,
	models.IntentBotChallenge, models.IntentDeletePreference, models.IntentStorePreference,
	models.IntentSelectAirport, models.IntentSelectFlight, models.IntentConfirmBooking,
	models.IntentGreet,
}

var knownEntities = map[models.EntityType]bool{
	models.EntityTripType: true, models.EntityCity: true, models.EntityDate: true,
	models.EntityNumber: true, models.EntityTravelClass: true, models.EntityAirline: true,
	models.EntityFrequentFlyerNumber: true, models.EntityHotel: true, models.EntityCarType: true,
	models.EntityIATACode: true, models.EntityFlightID: true, models.EntityOrdinal: true,
	models.EntitySeatPreference: true, models.EntityPreferenceKey: true,
}

var knownRoles = []string{
	models.RoleDeparture, models.RoleDestination, models.RoleDestinationSubsequent,
	models.RoleReturn, models.RoleCheckIn, models.RoleCheckOut, models.RolePickup,
	models.RoleDropoff, models.RolePassengers, models.RoleGuests,
}

func systemPrompt(today time.Time) string {
	intents := make([]string, 0, len(knownIntents))
	for _, in := range knownIntents {
		intents = append(intents, string(in))
	}
	entities := make([]string, 0, len(knownEntities))
	for typ := range knownEntities {
		entities = append(entities, string(typ))
	}
	sort.Strings(entities)

	var b strings.Builder
	b.WriteString("You label messages sent to a travel booking assistant.\n")
	fmt.Fprintf(&b, "Today is %s.\n", today.Format("2006-01-02 (Monday)"))
	b.WriteString("Reply with one JSON object and nothing else:\n")
	b.WriteString(`{"intent": "<label>", "entities": [{"type": "<type>", "value": "<text>", "role": "<role>", "ordinal": "<ordinal>"}]}` + "\n")
	fmt.Fprintf(&b, "Intent labels: %s. Join several labels with '+', for example help+inform.\n", strings.Join(intents, ", "))
	fmt.Fprintf(&b, "Entity types: %s.\n", strings.Join(entities, ", "))
	fmt.Fprintf(&b, "Roles (optional): %s.\n", strings.Join(knownRoles, ", "))
	b.WriteString("Write dates as YYYY-MM-DD. Copy city names as written, including typos.\n")
	b.WriteString("Use ordinal only for phrases like \"the second one\". Use out_of_scope for unrelated requests.")
	return b.String()
}

// Parse labels text. An unreadable model reply yields the nlu_fallback intent.
func (p *OpenAIParser) Parse(ctx context.Context, text string) (models.Turn, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Turn{}, models.ErrEmptyIntent
	}
	raw, err := p.client.Complete(ctx, systemPrompt(p.now()), text)
	if err != nil {
		slog.Error("OpenAIParser.Parse: completion failed", "error", err)
		return models.Turn{}, &models.ServiceError{Op: "nlu.parse", Err: err}
	}
	turn, err := ParseTurnJSON(raw)
	if err != nil {
		slog.Warn("OpenAIParser.Parse: unreadable reply, using fallback", "error", err)
		return models.Turn{Intent: string(models.IntentFallback)}, nil
	}
	slog.Debug("OpenAIParser.Parse", "intent", turn.Intent, "entities", len(turn.Entities))
	return turn, nil
}

type labelled struct {
	Intent   string          `json:"intent"`
	Entities []models.Entity `json:"entities"`
}

// ParseTurnJSON reads a model reply into a turn. Code fences and text around the
// object are tolerated; entities of unknown types are dropped.
func ParseTurnJSON(raw string) (models.Turn, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end < start {
		return models.Turn{}, fmt.Errorf("no JSON object in reply")
	}
	var l labelled
	if err := json.Unmarshal([]byte(raw[start:end+1]), &l); err != nil {
		return models.Turn{}, fmt.Errorf("decode reply: %w", err)
	}

	turn := models.Turn{Intent: strings.ToLower(strings.TrimSpace(l.Intent))}
	if len(turn.Intents()) == 0 {
		turn.Intent = string(models.IntentFallback)
	}
	for _, e := range l.Entities {
		e.Type = models.EntityType(strings.ToLower(strings.TrimSpace(string(e.Type))))
		e.Value = strings.TrimSpace(e.Value)
		if !knownEntities[e.Type] || e.Value == "" {
			slog.Debug("ParseTurnJSON: dropping entity", "type", e.Type, "value", e.Value)
			continue
		}
		turn.Entities = append(turn.Entities, e)
	}
	return turn, nil
}
