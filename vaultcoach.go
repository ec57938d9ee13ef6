// Package vaultcoach wires the pole vault training backend together: the
// document store, the tool executor and chat engine, billing and the HTTP
// routes that expose them.
package vaultcoach

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/ghiac/vaultcoach/billing"
	"github.com/ghiac/vaultcoach/config"
	"github.com/ghiac/vaultcoach/engine"
	"github.com/ghiac/vaultcoach/llmutils"
	"github.com/ghiac/vaultcoach/log"
	"github.com/ghiac/vaultcoach/model"
	"github.com/ghiac/vaultcoach/store"
	"github.com/ghiac/vaultcoach/visualize"
)

// App is the main entry point: it owns the store and the services built on it
type App struct {
	config   *config.Config
	store    store.Store
	engine   *engine.Engine
	billing  *billing.Service
	ownStore bool
}

// Options allows configuring App behavior
type Options struct {
	// Store replaces the backend selected by the store config. The caller
	// keeps ownership and closes it.
	Store store.Store
	// LLMClient replaces the OpenAI client built from the LLM config
	LLMClient llmutils.LLMClient
	// PaymentProvider replaces the Stripe provider built from the billing config
	PaymentProvider billing.PaymentProvider
	// Usage observes model and tool usage (defaults to UsageLogger)
	Usage engine.UsageObserver
}

// New creates an App from configuration
func New(cfg *config.Config) (*App, error) {
	return NewWithOptions(cfg, nil)
}

// NewWithOptions creates an App with custom options
func NewWithOptions(cfg *config.Config, opts *Options) (*App, error) {
	if opts == nil {
		opts = &Options{}
	}

	app := &App{config: cfg, store: opts.Store}
	if app.store == nil {
		st, err := store.New(cfg.Store)
		if err != nil {
			return nil, fmt.Errorf("failed to open store: %w", err)
		}
		app.store = st
		app.ownStore = true
	}

	executor, err := engine.NewExecutor(app.store)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to create executor: %w", err)
	}
	eng, err := engine.New(executor, engine.ChatConfig{
		Timeout:           cfg.Chat.Timeout,
		MaxToolIterations: cfg.Chat.MaxToolIters,
		HistoryLimit:      cfg.Chat.HistoryLimit,
	})
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	llmConfig := engine.LLMConfig{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
	}
	if opts.LLMClient != nil {
		eng.UseLLMClient(opts.LLMClient, llmConfig)
	} else {
		eng.UseLLMConfig(llmConfig)
	}
	if cfg.Chat.PersistToolCalls {
		eng.UseToolCallStore(app.store)
	}
	if opts.Usage != nil {
		eng.UseUsageObserver(opts.Usage)
	} else {
		eng.UseUsageObserver(UsageLogger())
	}
	app.engine = eng

	provider := opts.PaymentProvider
	if provider == nil && cfg.Billing.StripeSecretKey != "" {
		provider = billing.NewStripeProvider(cfg.Billing.StripeSecretKey, cfg.Billing.StripeWebhookSecret, nil)
	}
	app.billing = billing.NewService(cfg.Billing, provider, app.store, app.store)

	log.Log.Infof("[App] ✅ Ready | Store: %s | Tools: %d", cfg.Store.Driver, len(eng.Tools()))
	return app, nil
}

// Close releases the store when the App opened it
func (a *App) Close() error {
	if a.ownStore && a.store != nil {
		return a.store.Close()
	}
	return nil
}

// GetEngine returns the chat engine
func (a *App) GetEngine() *engine.Engine {
	return a.engine
}

// GetExecutor returns the tool executor
func (a *App) GetExecutor() *engine.Executor {
	return a.engine.Executor
}

// GetStore returns the document store
func (a *App) GetStore() store.Store {
	return a.store
}

// GetBilling returns the billing service
func (a *App) GetBilling() *billing.Service {
	return a.billing
}

// Chat answers one user message through the tool-calling loop
func (a *App) Chat(ctx context.Context, userID string, req model.ChatRequest) (*model.ChatResponse, error) {
	return a.engine.Chat(ctx, userID, req)
}

// Greeting returns the opening message for a user
func (a *App) Greeting(ctx context.Context, userID string) string {
	return a.engine.Greeting(ctx, userID)
}

// ProgressionChart renders the user's progression at a target height as HTML
func (a *App) ProgressionChart(ctx context.Context, userID string, args model.Args) (string, error) {
	result, err := a.engine.Executor.Execute(ctx, userID, "get_height_progression", args)
	if err != nil {
		return "", model.WrapError(model.CodeInternal, "Failed to load your progression", err)
	}
	progression, ok := result.(*engine.HeightProgression)
	if !ok {
		msg := "Invalid progression request"
		if m, isMap := result.(map[string]interface{}); isMap {
			if s, isString := m["error"].(string); isString {
				msg = s
			}
		}
		return "", model.NewError(model.CodeInvalidArgument, msg)
	}

	html, err := visualize.NewProgressionChart(progression).HTML()
	if err != nil {
		return "", model.WrapError(model.CodeInternal, "Failed to render the chart", err)
	}
	return html, nil
}

// ImportSessions reads a JSON array of session documents and stores them
// for userID. Documents without an id get a new one. It returns the number
// of sessions stored.
func (a *App) ImportSessions(ctx context.Context, userID string, r io.Reader) (int, error) {
	if userID == "" {
		return 0, errors.New("user id is required")
	}
	var docs []map[string]interface{}
	if err := json.NewDecoder(r).Decode(&docs); err != nil {
		return 0, fmt.Errorf("failed to decode sessions: %w", err)
	}

	for i, raw := range docs {
		id, _ := raw["id"].(string)
		if id == "" {
			id = uuid.NewString()
		}
		session := model.NormalizeSession(id, raw)
		if err := a.store.PutSession(ctx, userID, session); err != nil {
			return i, fmt.Errorf("failed to store session %s: %w", id, err)
		}
	}
	log.Log.Infof("[App] ✅ Imported %d sessions | User: %s", len(docs), userID)
	return len(docs), nil
}

// UsageLogger returns an observer that logs every model and tool action
func UsageLogger() engine.UsageObserver {
	return engine.UsageFunc(func(ctx context.Context, event engine.UsageEvent) {
		if event.Err != nil {
			log.Log.Warnf("[Usage] ⚠️  %s %s failed | User: %s | %s | Error: %v",
				event.Kind, event.Name, event.UserID, event.Duration, event.Err)
			return
		}
		log.Log.Debugf("[Usage] 📊 %s %s | User: %s | Tokens: %d in / %d out | %s",
			event.Kind, event.Name, event.UserID, event.InputTokens, event.OutputTokens, event.Duration)
	})
}

// Version returns the current version of the service
func Version() string {
	return "0.1.0"
}
