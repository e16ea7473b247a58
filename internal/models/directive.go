package models

// DirectiveKind tells the rendering layer what to do with a directive.
type DirectiveKind string

const (
	DirectivePromptField  DirectiveKind = "prompt_field"
	DirectiveShowSummary  DirectiveKind = "show_summary"
	DirectiveShowOptions  DirectiveKind = "show_options"
	DirectiveReportError  DirectiveKind = "report_error"
	DirectiveCompleteFlow DirectiveKind = "complete_flow"
	// DirectiveNotify carries a side-action notice (help text, cancellation question, ...).
	DirectiveNotify DirectiveKind = "notify"
)

// ErrorKind classifies a reported error.
type ErrorKind string

const (
	ErrorKindValidation ErrorKind = "validation"
	ErrorKindService    ErrorKind = "service"
	ErrorKindFlowState  ErrorKind = "flow_state"
)

// NoticeKind identifies a notice template for the renderer.
type NoticeKind string

const (
	NoticeHelp              NoticeKind = "help"
	NoticeFallback          NoticeKind = "fallback"
	NoticeRephrase          NoticeKind = "rephrase"
	NoticeBotChallenge      NoticeKind = "bot_challenge"
	NoticeConfirmCancel     NoticeKind = "confirm_cancel"
	NoticeCancelled         NoticeKind = "cancelled"
	NoticeCancelAborted     NoticeKind = "cancel_aborted"
	NoticeNothingToCancel   NoticeKind = "nothing_to_cancel"
	NoticePreferenceDeleted NoticeKind = "preference_deleted"
	NoticePreferenceMissing NoticeKind = "preference_missing"
	NoticePreferenceSaved   NoticeKind = "preference_saved"
	NoticeSuggestion        NoticeKind = "suggestion"
	NoticeAmbiguousLocation NoticeKind = "ambiguous_location"
	NoticeSearching         NoticeKind = "searching"
	NoticeNoResults         NoticeKind = "no_results"
	NoticeConfirmSelection  NoticeKind = "confirm_selection"
	NoticeSelectionReleased NoticeKind = "selection_released"
	NoticeBookingConfirmed  NoticeKind = "booking_confirmed"
	NoticeUpsell            NoticeKind = "upsell"
	NoticeOfferDeclined     NoticeKind = "offer_declined"
	NoticeGreeting          NoticeKind = "greeting"
	NoticeAskCorrection     NoticeKind = "ask_correction"
	NoticeFlightOptions     NoticeKind = "flight_options"
	NoticeFlowInProgress    NoticeKind = "flow_in_progress"
)

// Validation reasons reported alongside ErrorKindValidation.
const (
	ReasonInvalidNumber        = "invalid_number"
	ReasonNonPositive          = "non_positive"
	ReasonInvalidDate          = "invalid_date"
	ReasonPastDate             = "past_date"
	ReasonEndNotAfterStart     = "end_not_after_start"
	ReasonSameAsDeparture      = "same_as_departure"
	ReasonSameAsPreviousStop   = "same_as_previous_stop"
	ReasonUnknownLocation      = "unknown_location"
	ReasonInvalidTripType      = "invalid_trip_type"
	ReasonInvalidTravelClass   = "invalid_travel_class"
	ReasonInvalidCarCategory   = "invalid_car_category"
	ReasonInvalidFrequentFlyer = "invalid_frequent_flyer_number"
	ReasonOrdinalOutOfRange    = "ordinal_out_of_range"
	ReasonInvalidSelection     = "invalid_selection"
	ReasonNoCorrection         = "no_correction"
	ReasonNoActiveFlow         = "no_active_flow"
	ReasonInvalidPreference    = "invalid_preference"
	ReasonEmptyValue           = "empty_value"
	// ReasonUnavailable accompanies ErrorKindService.
	ReasonUnavailable = "unavailable"
)

// Option is one selectable choice in a show_options directive.
type Option struct {
	Label   string `json:"label"`
	Payload string `json:"payload"`
}

// Directive is one instruction to the rendering collaborator.
type Directive struct {
	Kind    DirectiveKind     `json:"kind"`
	Field   FieldName         `json:"field,omitempty"`
	Text    string            `json:"text,omitempty"`
	Options []Option          `json:"options,omitempty"`
	Error   ErrorKind         `json:"error,omitempty"`
	Notice  NoticeKind        `json:"notice,omitempty"`
	Params  map[string]string `json:"params,omitempty"`
	Request *BookingRequest   `json:"request,omitempty"`
}

// PromptField asks the user for a field.
func PromptField(f FieldName) Directive {
	return Directive{Kind: DirectivePromptField, Field: f}
}

// ShowSummary shows a rendered summary sentence.
func ShowSummary(text string) Directive {
	return Directive{Kind: DirectiveShowSummary, Text: text}
}

// ShowOptions presents a choice list. notice names the question being asked.
func ShowOptions(notice NoticeKind, opts []Option, params map[string]string) Directive {
	return Directive{Kind: DirectiveShowOptions, Notice: notice, Options: opts, Params: params}
}

// ReportError reports a rejected input or a failed call.
func ReportError(kind ErrorKind, field FieldName, reason string, params map[string]string) Directive {
	d := Directive{Kind: DirectiveReportError, Error: kind, Field: field, Params: params}
	if reason != "" {
		if d.Params == nil {
			d.Params = make(map[string]string)
		}
		d.Params["reason"] = reason
	}
	return d
}

// CompleteFlow hands a finished request to the caller.
func CompleteFlow(req BookingRequest) Directive {
	return Directive{Kind: DirectiveCompleteFlow, Request: &req}
}

// Notify emits a side-action notice.
func Notify(notice NoticeKind, params map[string]string) Directive {
	return Directive{Kind: DirectiveNotify, Notice: notice, Params: params}
}
