// crm-mcp exposes the booking tools over MCP stdio so a desktop assistant
// can drive the CRM directly. It acts as the single operator named by
// CRM_USER_EMAIL.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/dnajar2/calling-crm-s-and-l/internal/agent"
	"github.com/dnajar2/calling-crm-s-and-l/internal/config"
	"github.com/dnajar2/calling-crm-s-and-l/internal/embedding"
	"github.com/dnajar2/calling-crm-s-and-l/internal/notify"
	"github.com/dnajar2/calling-crm-s-and-l/internal/store"
)

func main() {
	godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[mcp] config: %v", err)
	}
	if cfg.UserEmail == "" {
		log.Fatalf("[mcp] CRM_USER_EMAIL is required")
	}

	st, err := store.Open(cfg.DataDir)
	if err != nil {
		log.Fatalf("[mcp] open store: %v", err)
	}
	defer st.Close()
	st.SetNotifier(notify.Noop{})

	user, err := st.GetUserByEmail(cfg.UserEmail)
	if err != nil {
		log.Fatalf("[mcp] resolve user %s: %v", cfg.UserEmail, err)
	}

	dispatcher := agent.NewDispatcher(st, embedding.NewClient(cfg.Ollama.BaseURL, cfg.Ollama.Model))

	s := server.NewMCPServer(
		"crm-mcp",
		"1.0.0",
		server.WithToolCapabilities(true),
	)
	for _, t := range agent.Catalog() {
		s.AddTool(mcpTool(t), handler(dispatcher, user.ID, t.Name))
	}

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}

// mcpTool translates a catalog entry into the MCP tool definition, keeping
// the catalog as the single source of schema.
func mcpTool(t agent.Tool) mcp.Tool {
	opts := []mcp.ToolOption{mcp.WithDescription(t.Description)}

	names := make([]string, 0, len(t.InputSchema.Properties))
	for name := range t.InputSchema.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	required := make(map[string]bool, len(t.InputSchema.Required))
	for _, name := range t.InputSchema.Required {
		required[name] = true
	}

	for _, name := range names {
		prop := t.InputSchema.Properties[name]
		var propOpts []mcp.PropertyOption
		if required[name] {
			propOpts = append(propOpts, mcp.Required())
		}
		propOpts = append(propOpts, mcp.Description(prop.Description))
		switch prop.Type {
		case "integer":
			opts = append(opts, mcp.WithNumber(name, propOpts...))
		default:
			opts = append(opts, mcp.WithString(name, propOpts...))
		}
	}
	return mcp.NewTool(t.Name, opts...)
}

func handler(d *agent.Dispatcher, userID, tool string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := req.Params.Arguments.(map[string]any)
		result := d.Dispatch(ctx, userID, tool, args)
		if msg, ok := result["error"].(string); ok {
			return mcp.NewToolResultError(msg), nil
		}
		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
		}
		return mcp.NewToolResultText(string(out)), nil
	}
}
