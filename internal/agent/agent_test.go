package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/dnajar2/calling-crm-s-and-l/internal/llm"
	"github.com/dnajar2/calling-crm-s-and-l/internal/store"
)

type stubEmbedder struct {
	vec []float64
	err error
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	return s.vec, s.err
}

type stubLLM struct {
	reply string
	err   error
}

func (s *stubLLM) Complete(ctx context.Context, system string, messages []llm.Message) (string, error) {
	return s.reply, s.err
}

func setupDispatcher(t *testing.T) (*Dispatcher, *store.User, *store.Calendar, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "agent-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	st, err := store.Open(tmpDir)
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("Failed to open store: %v", err)
	}
	u, err := st.CreateUser("Dana", "dana@example.com")
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	cal, err := st.CreateCalendar(u.ID, "Main", "America/New_York")
	if err != nil {
		t.Fatalf("CreateCalendar failed: %v", err)
	}

	d := NewDispatcher(st, &stubEmbedder{vec: []float64{1, 0, 0}})
	cleanup := func() {
		st.Close()
		os.RemoveAll(tmpDir)
	}
	return d, u, cal, cleanup
}

func TestParseResponse(t *testing.T) {
	cases := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{
			"plain object",
			`{"thought": "ok", "actions": [{"type": "ask_clarification", "question": "when?"}]}`,
			false,
		},
		{
			"fenced",
			"```json\n{\"thought\": \"ok\", \"actions\": [{\"type\": \"ask_clarification\", \"question\": \"when?\"}]}\n```",
			false,
		},
		{
			"fenced without language",
			"```\n{\"thought\": \"ok\", \"actions\": [{\"type\": \"search_notes\", \"query\": \"latex\"}]}\n```",
			false,
		},
		{"prose", "Sure! Here's my plan.", true},
		{"empty actions", `{"thought": "ok", "actions": []}`, true},
		{"missing thought", `{"actions": [{"type": "ask_clarification", "question": "q"}]}`, true},
		{"extra key", `{"thought": "ok", "actions": [{"type": "ask_clarification", "question": "q"}], "mood": "good"}`, true},
		{"unknown action type", `{"thought": "ok", "actions": [{"type": "delete_everything"}]}`, true},
		{"untyped action", `{"thought": "ok", "actions": [{"question": "q"}]}`, true},
	}
	for _, tc := range cases {
		resp, err := ParseResponse(tc.input)
		if tc.wantErr {
			if err == nil {
				t.Errorf("%s: expected error, got %+v", tc.name, resp)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: unexpected error: %v", tc.name, err)
			continue
		}
		if resp.Thought == "" || len(resp.Actions) == 0 {
			t.Errorf("%s: incomplete response %+v", tc.name, resp)
		}
	}
}

func TestParseResponseActionFields(t *testing.T) {
	resp, err := ParseResponse(`{"thought": "book it", "actions": [
		{"type": "find_or_create_client", "name": "Jane", "email": "jane@example.com"},
		{"type": "create_event", "client_id": "c1", "title": "Consult",
		 "start_time": "2026-10-05T14:00:00Z", "end_time": "2026-10-05T14:30:00Z"}
	]}`)
	if err != nil {
		t.Fatalf("ParseResponse failed: %v", err)
	}
	if len(resp.Actions) != 2 {
		t.Fatalf("got %d actions, want 2", len(resp.Actions))
	}
	find, ok := resp.Actions[0].(FindOrCreateClientAction)
	if !ok {
		t.Fatalf("action 0 is %T, want FindOrCreateClientAction", resp.Actions[0])
	}
	if find.Name != "Jane" || find.Email != "jane@example.com" {
		t.Errorf("action 0 fields wrong: %+v", find)
	}
	create, ok := resp.Actions[1].(CreateEventAction)
	if !ok {
		t.Fatalf("action 1 is %T, want CreateEventAction", resp.Actions[1])
	}
	if create.ClientID != "c1" || create.Title != "Consult" {
		t.Errorf("action 1 fields wrong: %+v", create)
	}
}

func TestResponseMarshalRoundTrip(t *testing.T) {
	resp := &Response{
		Thought: "ask",
		Actions: []Action{AskClarificationAction{Question: "when works?"}},
	}
	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	parsed, err := ParseResponse(string(data))
	if err != nil {
		t.Fatalf("re-parse failed: %v\n%s", err, data)
	}
	if parsed.Thought != resp.Thought {
		t.Errorf("thought changed across round trip")
	}
	q, ok := parsed.Actions[0].(AskClarificationAction)
	if !ok || q.Question != "when works?" {
		t.Errorf("action changed across round trip: %+v", parsed.Actions[0])
	}
}

func TestDispatchValidatesRequiredFields(t *testing.T) {
	d, u, _, cleanup := setupDispatcher(t)
	defer cleanup()
	ctx := context.Background()

	cases := []struct {
		tool  string
		input map[string]any
	}{
		{ToolListAvailability, map[string]any{}},
		{ToolSearchNotes, map[string]any{}},
		{ToolCreateEvent, map[string]any{"client_id": "c", "title": "t", "start_time": "2026-10-05T14:00:00Z"}},
		{ToolFindOrCreateClient, map[string]any{"email": "x@y.com"}},
		{ToolAskClarification, map[string]any{}},
	}
	for _, tc := range cases {
		result := d.Dispatch(ctx, u.ID, tc.tool, tc.input)
		if _, failed := result["error"]; !failed {
			t.Errorf("%s with missing fields: got %v, want error", tc.tool, result)
		}
	}

	if result := d.Dispatch(ctx, u.ID, "no_such_tool", map[string]any{}); result["error"] == nil {
		t.Errorf("unknown tool accepted: %v", result)
	}
}

func TestDispatchListAvailability(t *testing.T) {
	d, u, cal, cleanup := setupDispatcher(t)
	defer cleanup()
	ctx := context.Background()

	// A far-future date avoids the past-slot filter.
	result := d.Dispatch(ctx, u.ID, ToolListAvailability, map[string]any{
		"start_date":  "2030-06-03",
		"calendar_id": cal.ID,
	})
	if result["error"] != nil {
		t.Fatalf("list_availability failed: %v", result["error"])
	}
	if result["date"] != "2030-06-03" {
		t.Errorf("date %v, want 2030-06-03", result["date"])
	}
	slots, ok := result["slots"].([]string)
	if !ok {
		t.Fatalf("slots is %T, want []string", result["slots"])
	}
	if len(slots) != 16 {
		t.Errorf("got %d slots, want 16", len(slots))
	}
}

func TestDispatchBookingFlow(t *testing.T) {
	d, u, _, cleanup := setupDispatcher(t)
	defer cleanup()
	ctx := context.Background()

	clientResult := d.Dispatch(ctx, u.ID, ToolFindOrCreateClient, map[string]any{
		"name":  "jane doe",
		"phone": "(555) 123-4567",
	})
	if clientResult["error"] != nil {
		t.Fatalf("find_or_create_client failed: %v", clientResult["error"])
	}
	if clientResult["phone"] != "+15551234567" {
		t.Errorf("phone %v, want normalized E.164", clientResult["phone"])
	}
	clientID := clientResult["id"].(string)

	booking := d.Dispatch(ctx, u.ID, ToolCreateEvent, map[string]any{
		"client_id":  clientID,
		"title":      "Consultation",
		"start_time": "2030-06-03T14:00:00Z",
		"end_time":   "2030-06-03T14:30:00Z",
	})
	if booking["error"] != nil {
		t.Fatalf("create_event failed: %v", booking["error"])
	}
	client, ok := booking["client"].(map[string]any)
	if !ok || client["id"] != clientID {
		t.Errorf("booking result missing resolved client: %v", booking)
	}

	// Same slot again surfaces the availability conflict as a message.
	dup := d.Dispatch(ctx, u.ID, ToolCreateEvent, map[string]any{
		"client_id":  clientID,
		"title":      "Conflict",
		"start_time": "2030-06-03T14:00:00Z",
		"end_time":   "2030-06-03T14:30:00Z",
	})
	msg, _ := dup["error"].(string)
	if !strings.Contains(msg, "no longer available") {
		t.Errorf("duplicate booking error %q, want availability message", msg)
	}
}

func TestDispatchTenantScoped(t *testing.T) {
	d, u, cal, cleanup := setupDispatcher(t)
	defer cleanup()
	ctx := context.Background()

	intruder, err := d.Store.CreateUser("Mallory", "mallory@example.com")
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	result := d.Dispatch(ctx, intruder.ID, ToolListAvailability, map[string]any{
		"start_date":  "2030-06-03",
		"calendar_id": cal.ID,
	})
	msg, _ := result["error"].(string)
	if msg != "not found" {
		t.Errorf("cross-tenant calendar access: got %v, want not found", result)
	}

	c, err := d.Store.Resolve(u.ID, "Jane", "jane@example.com", "")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	booking := d.Dispatch(ctx, intruder.ID, ToolCreateEvent, map[string]any{
		"client_id":  c.ID,
		"title":      "Steal",
		"start_time": "2030-06-03T14:00:00Z",
		"end_time":   "2030-06-03T14:30:00Z",
	})
	if booking["error"] == nil {
		t.Errorf("cross-tenant client booking succeeded: %v", booking)
	}
}

func TestDispatchSearchNotesDegrades(t *testing.T) {
	d, u, _, cleanup := setupDispatcher(t)
	defer cleanup()
	ctx := context.Background()

	d.Embedder = &stubEmbedder{err: fmt.Errorf("connection refused")}
	result := d.Dispatch(ctx, u.ID, ToolSearchNotes, map[string]any{"query": "latex allergy"})
	if result["error"] == nil {
		t.Errorf("search with dead embedder: got %v, want error result", result)
	}
}

func TestChatReturnsParsedPlan(t *testing.T) {
	d, u, _, cleanup := setupDispatcher(t)
	defer cleanup()

	a := &Assistant{
		Dispatcher: d,
		LLM: &stubLLM{reply: "```json\n" +
			`{"thought": "needs a time", "actions": [{"type": "list_availability", "start_date": "2030-06-03"}]}` +
			"\n```"},
	}
	resp := a.Chat(context.Background(), u.ID, "got anything Wednesday?")
	if resp.Thought != "needs a time" {
		t.Errorf("thought %q", resp.Thought)
	}
	la, ok := resp.Actions[0].(ListAvailabilityAction)
	if !ok || la.StartDate != "2030-06-03" {
		t.Errorf("action %+v, want list_availability for 2030-06-03", resp.Actions[0])
	}
}

func TestChatFallsBackOnProviderError(t *testing.T) {
	d, u, _, cleanup := setupDispatcher(t)
	defer cleanup()

	var fallbacks int
	a := &Assistant{
		Dispatcher: d,
		LLM:        &stubLLM{err: fmt.Errorf("upstream timeout")},
		OnFallback: func() { fallbacks++ },
	}
	resp := a.Chat(context.Background(), u.ID, "book jane tomorrow at 2")
	assertFallback(t, resp)
	if fallbacks != 1 {
		t.Errorf("fallback hook fired %d times, want 1", fallbacks)
	}
}

func TestChatFallsBackOnGarbageReply(t *testing.T) {
	d, u, _, cleanup := setupDispatcher(t)
	defer cleanup()

	for _, reply := range []string{
		"Sure, I'd be happy to help!",
		`{"thought": "ok"}`,
		`{"thought": "ok", "actions": [{"type": "launch_rocket"}]}`,
		"```json\nnot json\n```",
	} {
		a := &Assistant{Dispatcher: d, LLM: &stubLLM{reply: reply}}
		assertFallback(t, a.Chat(context.Background(), u.ID, "hi"))
	}
}

func TestChatSurvivesDeadEmbedder(t *testing.T) {
	d, u, _, cleanup := setupDispatcher(t)
	defer cleanup()
	d.Embedder = &stubEmbedder{err: fmt.Errorf("connection refused")}

	a := &Assistant{
		Dispatcher: d,
		LLM: &stubLLM{reply: `{"thought": "no context needed", "actions": [
			{"type": "ask_clarification", "question": "what day?"}]}`},
	}
	resp := a.Chat(context.Background(), u.ID, "book something")
	if q, ok := resp.Actions[0].(AskClarificationAction); !ok || q.Question != "what day?" {
		t.Errorf("retrieval failure leaked into chat result: %+v", resp)
	}
}

func assertFallback(t *testing.T, resp *Response) {
	t.Helper()
	if resp == nil {
		t.Fatal("nil response")
	}
	if resp.Thought == "" {
		t.Error("fallback thought is empty")
	}
	if len(resp.Actions) != 1 {
		t.Fatalf("fallback has %d actions, want 1", len(resp.Actions))
	}
	q, ok := resp.Actions[0].(AskClarificationAction)
	if !ok {
		t.Fatalf("fallback action is %T, want AskClarificationAction", resp.Actions[0])
	}
	if q.Question != "I encountered an error. Please try again." {
		t.Errorf("fallback question %q", q.Question)
	}
}

func TestCatalogShapes(t *testing.T) {
	catalog := Catalog()
	if len(catalog) != 5 {
		t.Fatalf("catalog has %d tools, want 5", len(catalog))
	}
	required := map[string][]string{
		ToolListAvailability:   {"start_date"},
		ToolSearchNotes:        {"query"},
		ToolCreateEvent:        {"client_id", "title", "start_time", "end_time"},
		ToolFindOrCreateClient: {"name"},
		ToolAskClarification:   {"question"},
	}
	for _, tool := range catalog {
		want, known := required[tool.Name]
		if !known {
			t.Errorf("unexpected tool %q", tool.Name)
			continue
		}
		if len(tool.InputSchema.Required) != len(want) {
			t.Errorf("%s requires %v, want %v", tool.Name, tool.InputSchema.Required, want)
			continue
		}
		for i, field := range want {
			if tool.InputSchema.Required[i] != field {
				t.Errorf("%s required[%d] = %q, want %q", tool.Name, i, tool.InputSchema.Required[i], field)
			}
			if _, ok := tool.InputSchema.Properties[field]; !ok {
				t.Errorf("%s required field %q has no property entry", tool.Name, field)
			}
		}
	}
}
