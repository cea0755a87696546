package agent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/dnajar2/calling-crm-s-and-l/internal/availability"
	"github.com/dnajar2/calling-crm-s-and-l/internal/store"
)

// maxRangeDays caps a list_availability date range.
const maxRangeDays = 31

// Embedder turns text into a vector for semantic note search.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Dispatcher routes tool calls to their handlers. Every call is scoped to the
// invoking user, and no handler failure escapes as an error: the result is
// either the tool's output or a tagged {"error": message} object the caller
// can present.
type Dispatcher struct {
	Store    *store.Store
	Slots    *availability.Generator
	Embedder Embedder
}

// NewDispatcher wires a dispatcher over the store and embedding provider.
func NewDispatcher(st *store.Store, embedder Embedder) *Dispatcher {
	return &Dispatcher{
		Store:    st,
		Slots:    &availability.Generator{Store: st},
		Embedder: embedder,
	}
}

// Dispatch validates the input against the tool's schema and runs the
// handler. Unknown tools and missing required fields return a tagged error
// without invoking anything.
func (d *Dispatcher) Dispatch(ctx context.Context, userID, tool string, input map[string]any) map[string]any {
	schema, ok := CatalogTool(tool)
	if !ok {
		return errResult(fmt.Sprintf("unknown tool %q", tool))
	}
	for _, field := range schema.InputSchema.Required {
		if _, present := input[field]; !present {
			return errResult(fmt.Sprintf("missing required field %q", field))
		}
	}

	switch tool {
	case ToolListAvailability:
		return d.listAvailability(userID, input)
	case ToolSearchNotes:
		return d.searchNotes(ctx, userID, input)
	case ToolCreateEvent:
		return d.createEvent(userID, input)
	case ToolFindOrCreateClient:
		return d.findOrCreateClient(userID, input)
	case ToolAskClarification:
		return map[string]any{"question": strField(input, "question")}
	}
	return errResult(fmt.Sprintf("unknown tool %q", tool))
}

func (d *Dispatcher) listAvailability(userID string, input map[string]any) map[string]any {
	startDate, err := time.Parse("2006-01-02", strField(input, "start_date"))
	if err != nil {
		return errResult("start_date must be YYYY-MM-DD")
	}
	endDate := startDate
	if raw := strField(input, "end_date"); raw != "" {
		endDate, err = time.Parse("2006-01-02", raw)
		if err != nil {
			return errResult("end_date must be YYYY-MM-DD")
		}
	}
	if endDate.Before(startDate) {
		return errResult("end_date is before start_date")
	}
	if endDate.Sub(startDate) > maxRangeDays*24*time.Hour {
		return errResult(fmt.Sprintf("date range exceeds %d days", maxRangeDays))
	}

	cal, errMsg := d.resolveCalendar(userID, strField(input, "calendar_id"))
	if errMsg != "" {
		return errResult(errMsg)
	}

	var days []map[string]any
	for day := startDate; !day.After(endDate); day = day.AddDate(0, 0, 1) {
		slots, err := d.Slots.ForDate(userID, cal.ID, day)
		if err != nil {
			return errResult(storeErrMessage(err))
		}
		starts := make([]string, 0, len(slots))
		for _, s := range slots {
			starts = append(starts, s.Start.Format(time.RFC3339))
		}
		days = append(days, map[string]any{
			"date":  day.Format("2006-01-02"),
			"slots": starts,
		})
	}
	if len(days) == 1 {
		return days[0]
	}
	return map[string]any{"days": days}
}

func (d *Dispatcher) searchNotes(ctx context.Context, userID string, input map[string]any) map[string]any {
	query := strField(input, "query")
	if query == "" {
		return errResult("query is empty")
	}
	limit := intField(input, "limit")
	if limit <= 0 {
		limit = 5
	}

	vec, err := d.Embedder.Embed(ctx, query)
	if err != nil {
		return errResult(fmt.Sprintf("embedding unavailable: %v", err))
	}
	matches, err := d.Store.SearchNotes(userID, vec, limit)
	if err != nil {
		return errResult(storeErrMessage(err))
	}

	results := make([]map[string]any, 0, len(matches))
	for _, m := range matches {
		results = append(results, map[string]any{
			"content":    m.Note.Content,
			"similarity": m.Similarity,
		})
	}
	return map[string]any{"results": results}
}

func (d *Dispatcher) createEvent(userID string, input map[string]any) map[string]any {
	start, err := time.Parse(time.RFC3339, strField(input, "start_time"))
	if err != nil {
		return errResult("start_time must be RFC 3339")
	}
	end, err := time.Parse(time.RFC3339, strField(input, "end_time"))
	if err != nil {
		return errResult("end_time must be RFC 3339")
	}

	cal, errMsg := d.resolveCalendar(userID, strField(input, "calendar_id"))
	if errMsg != "" {
		return errResult(errMsg)
	}

	ev, err := d.Store.CreateEvent(userID, cal.ID, strField(input, "client_id"),
		strField(input, "title"), strField(input, "description"), start, end)
	if err != nil {
		return errResult(storeErrMessage(err))
	}
	cl, err := d.Store.GetClient(userID, ev.ClientID)
	if err != nil {
		return errResult(storeErrMessage(err))
	}
	return BookingResult(ev, cl)
}

func (d *Dispatcher) findOrCreateClient(userID string, input map[string]any) map[string]any {
	cl, err := d.Store.Resolve(userID, strField(input, "name"),
		strField(input, "email"), strField(input, "phone"))
	if err != nil {
		return errResult(storeErrMessage(err))
	}
	return map[string]any{
		"id":    cl.ID,
		"name":  cl.Name,
		"email": cl.Email,
		"phone": cl.Phone,
	}
}

func (d *Dispatcher) resolveCalendar(userID, calendarID string) (*store.Calendar, string) {
	if calendarID != "" {
		cal, err := d.Store.GetCalendar(userID, calendarID)
		if err != nil {
			return nil, storeErrMessage(err)
		}
		return cal, ""
	}
	cal, err := d.Store.FirstCalendar(userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, "no calendar exists yet"
	}
	if err != nil {
		return nil, storeErrMessage(err)
	}
	return cal, ""
}

// BookingResult is the booking response shape shared by the tool handler and
// the HTTP API: the event plus the resolved client's contact fields.
func BookingResult(ev *store.Event, cl *store.Client) map[string]any {
	return map[string]any{
		"id":          ev.ID,
		"calendar_id": ev.CalendarID,
		"title":       ev.Title,
		"description": ev.Description,
		"start_time":  ev.StartTime.Format(time.RFC3339),
		"end_time":    ev.EndTime.Format(time.RFC3339),
		"created_at":  ev.CreatedAt.Format(time.RFC3339),
		"client": map[string]any{
			"id":    cl.ID,
			"name":  cl.Name,
			"email": cl.Email,
			"phone": cl.Phone,
		},
	}
}

func errResult(msg string) map[string]any {
	return map[string]any{"error": msg}
}

// storeErrMessage turns a store error into a caller-facing message.
func storeErrMessage(err error) string {
	switch {
	case errors.Is(err, store.ErrOverlap):
		return "that time is no longer available"
	case errors.Is(err, store.ErrNotFound):
		return "not found"
	case store.IsValidation(err):
		return err.Error()
	default:
		log.Printf("[agent] tool failure: %v", err)
		return "internal error"
	}
}

func strField(input map[string]any, key string) string {
	if v, ok := input[key].(string); ok {
		return v
	}
	return ""
}

func intField(input map[string]any, key string) int {
	switch v := input[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}
