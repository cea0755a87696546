package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/dnajar2/calling-crm-s-and-l/internal/agent"
	"github.com/dnajar2/calling-crm-s-and-l/internal/api"
	"github.com/dnajar2/calling-crm-s-and-l/internal/config"
	"github.com/dnajar2/calling-crm-s-and-l/internal/embedding"
	"github.com/dnajar2/calling-crm-s-and-l/internal/llm"
	"github.com/dnajar2/calling-crm-s-and-l/internal/notify"
	"github.com/dnajar2/calling-crm-s-and-l/internal/store"
)

func main() {
	godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[server] config: %v", err)
	}
	if cfg.APIToken == "" {
		log.Fatalf("[server] CRM_API_TOKEN is required")
	}
	if cfg.UserEmail == "" {
		log.Fatalf("[server] CRM_USER_EMAIL is required")
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		log.Fatalf("[server] create data dir: %v", err)
	}
	st, err := store.Open(cfg.DataDir)
	if err != nil {
		log.Fatalf("[server] open store: %v", err)
	}
	defer st.Close()

	st.SetNotifier(notify.New(
		notify.SMSConfig{
			AccountSID: cfg.Twilio.AccountSID,
			AuthToken:  cfg.Twilio.AuthToken,
			From:       cfg.Twilio.From,
		},
		notify.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		},
	))

	user, err := ensureUser(st, cfg.UserEmail)
	if err != nil {
		log.Fatalf("[server] bootstrap user: %v", err)
	}

	embedder := embedding.NewClient(cfg.Ollama.BaseURL, cfg.Ollama.Model)
	model := llm.NewClient(cfg.Anthropic.BaseURL, cfg.Anthropic.APIKey, cfg.Anthropic.Model)
	assistant := &agent.Assistant{
		Dispatcher: agent.NewDispatcher(st, embedder),
		LLM:        model,
	}

	srv := api.NewServer(st, &api.StaticTokenAuth{
		Token:  cfg.APIToken,
		UserID: user.ID,
		Store:  st,
	}, assistant)

	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: srv.Handler(),
	}

	go func() {
		log.Printf("[server] listening on %s", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[server] listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Println("[server] shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("[server] shutdown: %v", err)
	}
}

// ensureUser resolves the operator account, creating it and a default
// calendar on first run.
func ensureUser(st *store.Store, email string) (*store.User, error) {
	user, err := st.GetUserByEmail(email)
	if errors.Is(err, store.ErrNotFound) {
		user, err = st.CreateUser(email, email)
		if err != nil {
			return nil, err
		}
		log.Printf("[server] created user %s", user.Email)
	} else if err != nil {
		return nil, err
	}

	if _, err := st.FirstCalendar(user.ID); errors.Is(err, store.ErrNotFound) {
		cal, err := st.CreateCalendar(user.ID, "Main", "")
		if err != nil {
			return nil, err
		}
		log.Printf("[server] created default calendar %s (booking token %s)", cal.ID, cal.PublicToken)
	} else if err != nil {
		return nil, err
	}
	return user, nil
}
