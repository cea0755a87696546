package agent

// Tool names. The catalog is closed: the dispatcher and the assistant's
// response parser accept these five and nothing else.
const (
	ToolListAvailability   = "list_availability"
	ToolSearchNotes        = "search_notes"
	ToolCreateEvent        = "create_event"
	ToolFindOrCreateClient = "find_or_create_client"
	ToolAskClarification   = "ask_clarification"
)

// Property describes one input field of a tool.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// InputSchema is a JSON-Schema-shaped object description.
type InputSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required"`
}

// Tool is one catalog entry.
type Tool struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema InputSchema `json:"input_schema"`
}

// Catalog returns the static tool catalog.
func Catalog() []Tool {
	return []Tool{
		{
			Name:        ToolListAvailability,
			Description: "List open appointment slots for a date or date range.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"start_date":  {Type: "string", Description: "First date to check, YYYY-MM-DD"},
					"end_date":    {Type: "string", Description: "Last date to check, YYYY-MM-DD; defaults to start_date"},
					"calendar_id": {Type: "string", Description: "Calendar to check; defaults to the user's first calendar"},
				},
				Required: []string{"start_date"},
			},
		},
		{
			Name:        ToolSearchNotes,
			Description: "Search the user's notes by meaning, not keywords.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"query": {Type: "string", Description: "What to look for"},
					"limit": {Type: "integer", Description: "Maximum results, default 5"},
				},
				Required: []string{"query"},
			},
		},
		{
			Name:        ToolCreateEvent,
			Description: "Book an appointment for an existing client.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"client_id":   {Type: "string", Description: "Client the appointment is for"},
					"title":       {Type: "string", Description: "Short appointment title"},
					"start_time":  {Type: "string", Description: "Start instant, RFC 3339"},
					"end_time":    {Type: "string", Description: "End instant, RFC 3339"},
					"description": {Type: "string", Description: "Optional longer notes"},
					"calendar_id": {Type: "string", Description: "Calendar to book on; defaults to the user's first calendar"},
				},
				Required: []string{"client_id", "title", "start_time", "end_time"},
			},
		},
		{
			Name:        ToolFindOrCreateClient,
			Description: "Look up a client by email or phone, creating them if new. Contact details may be spoken-form; they are normalized.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"name":  {Type: "string", Description: "Client's name"},
					"email": {Type: "string", Description: "Email address, any form"},
					"phone": {Type: "string", Description: "Phone number, any form"},
				},
				Required: []string{"name"},
			},
		},
		{
			Name:        ToolAskClarification,
			Description: "Ask the user a clarifying question instead of acting.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"question": {Type: "string", Description: "The question to ask"},
				},
				Required: []string{"question"},
			},
		},
	}
}

// CatalogTool returns the catalog entry for a tool name.
func CatalogTool(name string) (Tool, bool) {
	for _, t := range Catalog() {
		if t.Name == name {
			return t, true
		}
	}
	return Tool{}, false
}
