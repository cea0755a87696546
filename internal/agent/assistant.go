// Package agent is the assistant pipeline: a fixed tool catalog, a dispatcher
// that runs tool calls under tenant scope, and a single-pass orchestrator
// that grounds one model completion in retrieved notes and parses its JSON
// reply.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/dnajar2/calling-crm-s-and-l/internal/llm"
	"github.com/dnajar2/calling-crm-s-and-l/internal/logging"
)

// Completer issues one chat completion.
type Completer interface {
	Complete(ctx context.Context, system string, messages []llm.Message) (string, error)
}

// Assistant answers one user query with one model completion. There is no
// tool loop: the model's reply is a plan of actions, and executing them is
// the caller's business.
type Assistant struct {
	Dispatcher *Dispatcher
	LLM        Completer

	// OnFallback is called when a chat degrades to the canonical
	// clarification response. Optional; used for metrics.
	OnFallback func()
}

const fallbackQuestion = "I encountered an error. Please try again."

// Chat runs the pipeline: retrieve notes, build the system prompt, complete
// once, parse. Any failure anywhere degrades to the canonical clarification
// response; this method never returns an error.
func (a *Assistant) Chat(ctx context.Context, userID, query string) *Response {
	notesContext := a.retrieveContext(ctx, userID, query)

	system := a.systemPrompt(notesContext)
	reply, err := a.LLM.Complete(ctx, system, []llm.Message{
		{Role: "user", Content: query},
	})
	if err != nil {
		log.Printf("[agent] completion failed: %v", err)
		return a.fallback(fmt.Sprintf("completion failed: %v", err))
	}
	logging.Debug("agent", "model reply: %s", logging.Truncate(reply, 500))

	resp, err := ParseResponse(reply)
	if err != nil {
		log.Printf("[agent] unparseable reply: %v", err)
		return a.fallback(fmt.Sprintf("unparseable reply: %v", err))
	}
	return resp
}

// retrieveContext pulls up to three relevant notes through the dispatcher.
// Failure means no context, nothing more.
func (a *Assistant) retrieveContext(ctx context.Context, userID, query string) string {
	result := a.Dispatcher.Dispatch(ctx, userID, ToolSearchNotes, map[string]any{
		"query": query,
		"limit": 3,
	})
	if msg, failed := result["error"]; failed {
		log.Printf("[agent] note retrieval skipped: %v", msg)
		return ""
	}
	matches, _ := result["results"].([]map[string]any)
	var parts []string
	for _, m := range matches {
		if content, _ := m["content"].(string); content != "" {
			parts = append(parts, "- "+content)
		}
	}
	return strings.Join(parts, "\n")
}

func (a *Assistant) systemPrompt(notesContext string) string {
	catalog, _ := json.MarshalIndent(Catalog(), "", "  ")

	var b strings.Builder
	b.WriteString(`You are a scheduling assistant for a solo service provider.
Decide what to do about the user's message and respond with a single JSON object.

The object must have exactly two top-level keys:
- "thought": a string explaining your reasoning
- "actions": a non-empty ordered list of action objects

Each action object has a "type" field naming one of the tools below, plus
that tool's input fields. Use ask_clarification when you need information
you do not have. Respond with the JSON object only, no other text.

Available tools:
`)
	b.Write(catalog)
	if notesContext != "" {
		b.WriteString("\n\nRELEVANT CONTEXT:\n")
		b.WriteString(notesContext)
	}
	return b.String()
}

func (a *Assistant) fallback(description string) *Response {
	if a.OnFallback != nil {
		a.OnFallback()
	}
	return &Response{
		Thought: description,
		Actions: []Action{AskClarificationAction{Question: fallbackQuestion}},
	}
}
