package testutil

import (
	"context"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/BTreeMap/TripPipe/internal/models"
	"github.com/BTreeMap/TripPipe/internal/store"
)

func TestAssertHTTPStatus(t *testing.T) {
	tests := []struct {
		name       string
		expected   int
		actual     int
		shouldFail bool
	}{
		{name: "matching status codes", expected: 200, actual: 200},
		{name: "different status codes", expected: 200, actual: 404, shouldFail: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockT := &mockTestingT{}
			AssertHTTPStatus(mockT, tt.expected, tt.actual, "test context")

			if tt.shouldFail != mockT.failed {
				t.Errorf("failed = %v, want %v", mockT.failed, tt.shouldFail)
			}
			if !mockT.helper {
				t.Error("expected Helper to be called")
			}
		})
	}
}

func TestAssertJSONResponse(t *testing.T) {
	tests := []struct {
		name           string
		jsonBody       string
		expectedStatus string
		shouldFail     bool
	}{
		{name: "valid JSON with matching status", jsonBody: `{"status":"ok","result":"test"}`, expectedStatus: "ok"},
		{name: "valid JSON with different status", jsonBody: `{"status":"error"}`, expectedStatus: "ok", shouldFail: true},
		{name: "invalid JSON", jsonBody: `{"status":}`, expectedStatus: "ok", shouldFail: true},
		{name: "missing status field", jsonBody: `{"result":"test"}`, expectedStatus: "ok", shouldFail: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockT := &mockTestingT{}
			rr := httptest.NewRecorder()
			rr.Body.WriteString(tt.jsonBody)

			var response map[string]interface{}
			func() {
				defer func() { recover() }()
				response = AssertJSONResponse(mockT, rr, tt.expectedStatus)
			}()

			if tt.shouldFail != mockT.failed {
				t.Errorf("failed = %v (%s), want %v", mockT.failed, mockT.errorMsg, tt.shouldFail)
			}
			if !tt.shouldFail && response == nil {
				t.Error("Expected response map to be returned")
			}
		})
	}
}

func TestDecodeResult(t *testing.T) {
	rr := httptest.NewRecorder()
	rr.Body.Write(MustMarshalJSON(t, models.Success(models.TurnResult{SessionID: "s1", Stage: models.StageReviewing})))

	var res models.TurnResult
	env := DecodeResult(t, rr, &res)
	if env.Status != string(models.APIStatusOK) {
		t.Errorf("status = %q", env.Status)
	}
	if res.SessionID != "s1" || res.Stage != models.StageReviewing {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestCreateHTTPRequest(t *testing.T) {
	tests := []struct {
		name   string
		method string
		url    string
		body   interface{}
	}{
		{name: "GET request with no body", method: "GET", url: "/healthz"},
		{name: "POST request with map body", method: "POST", url: "/sessions", body: map[string]string{"user_id": "u1"}},
		{name: "PUT request with struct body", method: "PUT", url: "/users/u1/preferences/seat", body: models.PreferenceRequest{Value: "aisle"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := CreateHTTPRequest(t, tt.method, tt.url, tt.body)
			if req.Method != tt.method {
				t.Errorf("Expected method %s, got %s", tt.method, req.Method)
			}
			if req.URL.Path != tt.url {
				t.Errorf("Expected URL %s, got %s", tt.url, req.URL.Path)
			}
			if req.Header.Get("Content-Type") != "application/json" {
				t.Errorf("missing JSON content type")
			}
		})
	}
}

func TestCreateJSONRequest(t *testing.T) {
	req := CreateJSONRequest(t, "POST", "/sessions/s1/turns", `{"intent":"book_flight"}`)
	if req.Method != "POST" || req.URL.Path != "/sessions/s1/turns" {
		t.Errorf("unexpected request %s %s", req.Method, req.URL.Path)
	}
	if req.ContentLength != int64(len(`{"intent":"book_flight"}`)) {
		t.Errorf("ContentLength = %d", req.ContentLength)
	}
}

func TestSeedPreferences(t *testing.T) {
	st := store.NewInMemoryStore()
	SeedPreferences(t, st, "u1", map[string]string{"seat_preference": "aisle", "airline": "FlyHigh"})

	prefs, err := st.ListPreferences(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ListPreferences: %v", err)
	}
	if len(prefs) != 2 {
		t.Errorf("expected 2 preferences, got %d", len(prefs))
	}

	mockT := &mockTestingT{}
	func() {
		defer func() { recover() }()
		SeedPreferences(mockT, st, "", map[string]string{"seat_preference": "aisle"})
	}()
	if !mockT.failed {
		t.Error("expected seeding with an empty user id to fail")
	}
}

func TestAssertDirectiveKinds(t *testing.T) {
	directives := []models.Directive{
		models.Notify(models.NoticeSearching, nil),
		{Kind: models.DirectiveShowOptions},
	}

	mockT := &mockTestingT{}
	AssertDirectiveKinds(mockT, directives, models.DirectiveNotify, models.DirectiveShowOptions)
	if mockT.failed {
		t.Errorf("expected match, got %s", mockT.errorMsg)
	}

	mockT = &mockTestingT{}
	AssertDirectiveKinds(mockT, directives, models.DirectiveShowOptions, models.DirectiveNotify)
	if !mockT.failed {
		t.Error("expected order mismatch to fail")
	}

	mockT = &mockTestingT{}
	AssertDirectiveKinds(mockT, directives, models.DirectiveNotify)
	if !mockT.failed {
		t.Error("expected length mismatch to fail")
	}
}

func TestMustMarshalJSON(t *testing.T) {
	result := MustMarshalJSON(t, map[string]interface{}{"key1": "value1", "key2": 123})
	if len(result) == 0 {
		t.Error("Expected non-empty JSON data")
	}
}

func TestMustUnmarshalJSON(t *testing.T) {
	var target map[string]interface{}
	MustUnmarshalJSON(t, []byte(`{"key":"value","number":123}`), &target)

	if target["key"] != "value" {
		t.Errorf("Expected key to be 'value', got %v", target["key"])
	}
	if target["number"].(float64) != 123 {
		t.Errorf("Expected number to be 123, got %v", target["number"])
	}
}

// mockTestingT records failures instead of stopping the test.
type mockTestingT struct {
	failed   bool
	errorMsg string
	helper   bool
}

func (m *mockTestingT) Helper() {
	m.helper = true
}

func (m *mockTestingT) Errorf(format string, args ...interface{}) {
	m.failed = true
	m.errorMsg = fmt.Sprintf(format, args...)
}

func (m *mockTestingT) Error(args ...interface{}) {
	m.failed = true
	m.errorMsg = fmt.Sprint(args...)
}

func (m *mockTestingT) Fatalf(format string, args ...interface{}) {
	m.failed = true
	m.errorMsg = fmt.Sprintf(format, args...)
	panic("test failed")
}
