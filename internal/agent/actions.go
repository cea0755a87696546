package agent

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Action is one entry of an assistant response's actions list. The concrete
// types form a closed set matching the tool catalog, so routing on an Action
// is exhaustive at compile time.
type Action interface {
	ActionType() string
}

type ListAvailabilityAction struct {
	StartDate  string `json:"start_date"`
	EndDate    string `json:"end_date,omitempty"`
	CalendarID string `json:"calendar_id,omitempty"`
}

type SearchNotesAction struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

type CreateEventAction struct {
	ClientID    string `json:"client_id"`
	Title       string `json:"title"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	Description string `json:"description,omitempty"`
	CalendarID  string `json:"calendar_id,omitempty"`
}

type FindOrCreateClientAction struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type AskClarificationAction struct {
	Question string `json:"question"`
}

func (ListAvailabilityAction) ActionType() string   { return ToolListAvailability }
func (SearchNotesAction) ActionType() string        { return ToolSearchNotes }
func (CreateEventAction) ActionType() string        { return ToolCreateEvent }
func (FindOrCreateClientAction) ActionType() string { return ToolFindOrCreateClient }
func (AskClarificationAction) ActionType() string   { return ToolAskClarification }

// Response is the assistant's reply: a thought plus a non-empty ordered list
// of actions. This is the only shape a consumer ever receives.
type Response struct {
	Thought string
	Actions []Action
}

// MarshalJSON emits the two-key wire shape, re-attaching each action's type
// discriminator.
func (r *Response) MarshalJSON() ([]byte, error) {
	actions := make([]map[string]any, 0, len(r.Actions))
	for _, a := range r.Actions {
		raw, err := json.Marshal(a)
		if err != nil {
			return nil, err
		}
		m := map[string]any{}
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		m["type"] = a.ActionType()
		actions = append(actions, m)
	}
	return json.Marshal(map[string]any{
		"thought": r.Thought,
		"actions": actions,
	})
}

// ParseResponse decodes a model reply into a Response. It tolerates a fenced
// code block around the JSON but nothing else: the remainder must be a single
// object with exactly the keys "thought" and "actions", actions non-empty and
// every entry carrying a known type.
func ParseResponse(text string) (*Response, error) {
	text = stripFences(text)

	var keys map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &keys); err != nil {
		return nil, fmt.Errorf("not a JSON object: %w", err)
	}
	if len(keys) != 2 || keys["thought"] == nil || keys["actions"] == nil {
		return nil, fmt.Errorf("expected exactly the keys thought and actions")
	}

	var resp Response
	if err := json.Unmarshal(keys["thought"], &resp.Thought); err != nil {
		return nil, fmt.Errorf("thought is not a string: %w", err)
	}

	var rawActions []json.RawMessage
	if err := json.Unmarshal(keys["actions"], &rawActions); err != nil {
		return nil, fmt.Errorf("actions is not a list: %w", err)
	}
	if len(rawActions) == 0 {
		return nil, fmt.Errorf("actions is empty")
	}

	for i, raw := range rawActions {
		action, err := parseAction(raw)
		if err != nil {
			return nil, fmt.Errorf("action %d: %w", i, err)
		}
		resp.Actions = append(resp.Actions, action)
	}
	return &resp, nil
}

func parseAction(raw json.RawMessage) (Action, error) {
	var tagged struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &tagged); err != nil {
		return nil, fmt.Errorf("not an object: %w", err)
	}

	var (
		action Action
		err    error
	)
	switch tagged.Type {
	case ToolListAvailability:
		var a ListAvailabilityAction
		err = json.Unmarshal(raw, &a)
		action = a
	case ToolSearchNotes:
		var a SearchNotesAction
		err = json.Unmarshal(raw, &a)
		action = a
	case ToolCreateEvent:
		var a CreateEventAction
		err = json.Unmarshal(raw, &a)
		action = a
	case ToolFindOrCreateClient:
		var a FindOrCreateClientAction
		err = json.Unmarshal(raw, &a)
		action = a
	case ToolAskClarification:
		var a AskClarificationAction
		err = json.Unmarshal(raw, &a)
		action = a
	case "":
		return nil, fmt.Errorf("missing type")
	default:
		return nil, fmt.Errorf("unknown type %q", tagged.Type)
	}
	if err != nil {
		return nil, err
	}
	return action, nil
}

// stripFences removes one leading/trailing markdown code fence pair, with or
// without a language tag. Anything else passes through untouched.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	rest := text[3:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[nl+1:]
	}
	if end := strings.LastIndex(rest, "```"); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}
