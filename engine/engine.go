package engine

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"

	"github.com/ghiac/vaultcoach/llmutils"
	"github.com/ghiac/vaultcoach/log"
	"github.com/ghiac/vaultcoach/model"
)

//go:embed prompt.md
var basePrompt string

const (
	// DefaultMaxToolIterations caps the tool rounds of one chat turn
	DefaultMaxToolIterations = 5
	// DefaultHistoryLimit is how many history entries are sent to the model
	DefaultHistoryLimit = 10

	// FallbackMessage replaces an empty final answer
	FallbackMessage = "I found some results for you."
	// FallbackGreeting is used whenever greeting generation fails
	FallbackGreeting = "Hi! I'm your vault coach. Ask me about your sessions, your jumps or how close you are to your next height."
)

// LLMConfig holds configuration for the chat model
type LLMConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	HTTPClient  *http.Client // Optional: custom HTTP client (e.g., for proxy support)
}

// ChatConfig holds the limits of one chat turn
type ChatConfig struct {
	Timeout           time.Duration
	MaxToolIterations int
	HistoryLimit      int
}

// Engine runs the chat loop: it sends the conversation and the tool catalog
// to the model, executes the tools the model asks for and returns the final
// answer together with the structured results of those tools.
type Engine struct {
	Executor *Executor

	llmClient llmutils.LLMClient
	llmConfig LLMConfig
	chat      ChatConfig
	tools     []openai.Tool

	journal *ToolJournal
	usage   UsageObserver
}

// New creates an engine over an executor. The model client is configured
// separately with UseLLMConfig or UseLLMClient; without one, Chat fails with
// failed-precondition and Greeting returns the fallback.
func New(executor *Executor, chat ChatConfig) (*Engine, error) {
	if executor == nil {
		return nil, fmt.Errorf("executor is nil")
	}
	tools, err := openAITools(executor.Tools)
	if err != nil {
		return nil, err
	}
	if chat.MaxToolIterations <= 0 {
		chat.MaxToolIterations = DefaultMaxToolIterations
	}
	if chat.HistoryLimit <= 0 {
		chat.HistoryLimit = DefaultHistoryLimit
	}
	return &Engine{Executor: executor, chat: chat, tools: tools}, nil
}

// UseLLMConfig configures an OpenAI-compatible client for the engine.
// An empty API key leaves the engine without a model.
func (e *Engine) UseLLMConfig(config LLMConfig) {
	e.llmConfig = config
	if config.APIKey == "" {
		log.Log.Warnf("[Engine] ⚠️  No LLM API key configured; chat is disabled")
		e.llmClient = nil
		return
	}
	e.llmClient = llmutils.NewOpenAIClient(llmutils.ClientConfig{
		APIKey:     config.APIKey,
		BaseURL:    config.BaseURL,
		Timeout:    e.chat.Timeout,
		HTTPClient: config.HTTPClient,
	})
	log.Log.Infof("[Engine] ✅ LLM configured | Model: %s", config.Model)
}

// UseLLMClient sets the model client directly (llminterface.Client, test doubles)
func (e *Engine) UseLLMClient(client llmutils.LLMClient, config LLMConfig) {
	e.llmClient = client
	e.llmConfig = config
}

// UseToolCallStore keeps a journal of tool calls when the store supports it
func (e *Engine) UseToolCallStore(s interface{}) {
	e.journal = NewToolJournal(s)
}

// UseUsageObserver sets the observer told about model and tool usage
func (e *Engine) UseUsageObserver(obs UsageObserver) {
	e.usage = obs
}

// Tools returns the tool definitions sent to the model
func (e *Engine) Tools() []openai.Tool {
	return e.tools
}

// openAITools converts the active catalog tools into model function definitions
func openAITools(registry *model.ToolRegistry) ([]openai.Tool, error) {
	active := registry.GetActiveTools()
	tools := make([]openai.Tool, 0, len(active))
	for _, t := range active {
		schema, err := t.SchemaJSON()
		if err != nil {
			return nil, fmt.Errorf("tool %s: invalid schema: %w", t.Name, err)
		}
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  schema,
			},
		})
	}
	return tools, nil
}

// Chat answers one user message
func (e *Engine) Chat(ctx context.Context, userID string, req model.ChatRequest) (*model.ChatResponse, error) {
	report(ctx, userID, PhaseReceived, 0, "")

	if userID == "" {
		return nil, model.NewError(model.CodeUnauthenticated, "You must be signed in to use the assistant")
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, model.NewError(model.CodeInvalidArgument, "Message is required")
	}
	if utf8.RuneCountInString(message) > model.MaxMessageLength {
		return nil, model.NewError(model.CodeInvalidArgument,
			fmt.Sprintf("Message must be at most %d characters", model.MaxMessageLength))
	}
	if e.llmClient == nil {
		return nil, model.NewError(model.CodeFailedPrecondition, "The AI assistant is not configured")
	}

	if e.chat.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.chat.Timeout)
		defer cancel()
	}
	ctx = model.WithUserID(ctx, userID)

	resp, err := e.runChat(ctx, userID, message, req.ConversationHistory)
	if err != nil {
		report(ctx, userID, PhaseFailed, 0, err.Error())
		log.Log.Errorf("[Engine] ❌ Chat failed | User: %s | Error: %v", userID, err)
		return nil, err
	}
	return resp, nil
}

func (e *Engine) runChat(ctx context.Context, userID, message string, history []model.ChatMessage) (*model.ChatResponse, error) {
	stats, err := e.Executor.userStats(ctx, userID, TimeframeAll)
	if err != nil {
		return nil, model.WrapError(model.CodeInternal, "Failed to load your training data", err)
	}

	conv := newConversation(SystemPrompt(stats), history, e.chat.HistoryLimit, message)

	out := &model.ChatResponse{}

	resp, err := e.complete(ctx, userID, conv, 0)
	if err != nil {
		return nil, err
	}

	for iter := 1; iter <= e.chat.MaxToolIterations && hasToolCalls(resp); iter++ {
		msg := resp.Choices[0].Message
		requested := callNames(msg.ToolCalls)
		report(ctx, userID, PhaseToolsRequested, iter, requested)
		log.Log.Infof("[Engine] 🔧 Tool round %d/%d | User: %s | Tools: %s",
			iter, e.chat.MaxToolIterations, userID, requested)

		results, err := e.executeToolCalls(ctx, userID, iter, msg.ToolCalls)
		if err != nil {
			return nil, model.WrapError(model.CodeInternal, "Failed to look up your training data", err)
		}

		conv.addToolRound(msg, results)
		for i, tc := range msg.ToolCalls {
			collectResult(out, tc.Function.Name, results[i].value)
		}

		resp, err = e.complete(ctx, userID, conv, iter)
		if err != nil {
			return nil, err
		}
	}

	if hasToolCalls(resp) {
		log.Log.Warnf("[Engine] ⚠️  Tool round limit (%d) reached | User: %s", e.chat.MaxToolIterations, userID)
	}

	out.Message = StripMarkdown(llmutils.MessageText(resp.Choices[0].Message))
	if out.Message == "" {
		out.Message = FallbackMessage
	}
	report(ctx, userID, PhaseAnswered, 0, "")
	return out, nil
}

// complete makes one model call
func (e *Engine) complete(ctx context.Context, userID string, conv conversation, iter int) (openai.ChatCompletionResponse, error) {
	report(ctx, userID, PhaseAskingModel, iter, e.llmConfig.Model)

	start := time.Now()
	resp, err := e.llmClient.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       e.llmConfig.Model,
		Messages:    conv,
		Tools:       e.tools,
		Temperature: e.llmConfig.Temperature,
		MaxTokens:   e.llmConfig.MaxTokens,
	})
	e.observe(ctx, UsageEvent{
		UserID:       userID,
		Kind:         UsageModelCall,
		Name:         e.llmConfig.Model,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		Duration:     time.Since(start),
		Err:          err,
	})
	if err != nil {
		return resp, classifyLLMError(err)
	}
	if len(resp.Choices) == 0 {
		return resp, model.NewError(model.CodeInternal, "The AI assistant returned no answer")
	}
	return resp, nil
}

func hasToolCalls(resp openai.ChatCompletionResponse) bool {
	return len(resp.Choices) > 0 && len(resp.Choices[0].Message.ToolCalls) > 0
}

type toolResult struct {
	value   interface{}
	content string
}

// executeToolCalls runs the calls of one model turn concurrently. Tools are
// read-only, so results only need to keep call order.
func (e *Engine) executeToolCalls(ctx context.Context, userID string, iter int, calls []openai.ToolCall) ([]toolResult, error) {
	results := make([]toolResult, len(calls))

	g, gctx := errgroup.WithContext(ctx)
	for i, tc := range calls {
		g.Go(func() error {
			name := tc.Function.Name
			report(gctx, userID, PhaseRunningTool, iter, e.Executor.DisplayName(name))

			journalID := e.journal.Record(gctx, userID, tc)
			start := time.Now()
			value, err := e.Executor.Execute(gctx, userID, name, model.ParseArgs(tc.Function.Arguments))
			e.observe(gctx, UsageEvent{
				UserID:   userID,
				Kind:     UsageToolCall,
				Name:     name,
				Duration: time.Since(start),
				Err:      err,
			})
			if err != nil {
				return err
			}

			content, err := json.Marshal(value)
			if err != nil {
				return fmt.Errorf("tool %s: failed to encode result: %w", name, err)
			}
			e.journal.Complete(gctx, journalID, string(content))
			results[i] = toolResult{value: value, content: string(content)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// collectResult files a tool result under the response field the client
// renders it with. Later rounds overwrite earlier ones.
func collectResult(out *model.ChatResponse, name string, value interface{}) {
	if isErrorResult(value) {
		return
	}
	switch name {
	case ToolSearchSessions:
		out.SessionResults = value
	case ToolSearchJumps:
		out.JumpResults = value
	case ToolGetUserStats:
		out.Stats = value
	case ToolNavigateTo:
		if nav, ok := value.(map[string]interface{}); ok {
			out.Navigation = nav
		}
	}
}

func isErrorResult(value interface{}) bool {
	m, ok := value.(map[string]interface{})
	if !ok {
		return false
	}
	_, hasErr := m["error"]
	return hasErr
}

// SystemPrompt combines the static instructions with the athlete's stats
func SystemPrompt(stats *UserStats) string {
	if stats == nil {
		return basePrompt
	}
	return strings.TrimSpace(basePrompt) + "\n\n" + stats.PromptBlock()
}

// Greeting returns a short personalised opening line. It never fails: any
// problem yields FallbackGreeting.
func (e *Engine) Greeting(ctx context.Context, userID string) string {
	if e.llmClient == nil || userID == "" {
		return FallbackGreeting
	}
	if e.chat.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.chat.Timeout)
		defer cancel()
	}
	ctx = model.WithUserID(ctx, userID)

	stats, err := e.Executor.userStats(ctx, userID, TimeframeAll)
	if err != nil {
		log.Log.Warnf("[Engine] ⚠️  Greeting stats failed | User: %s | Error: %v", userID, err)
		return FallbackGreeting
	}

	greeting, err := llmutils.GenerateGreeting(ctx, e.llmClient, stats.PromptBlock(), llmutils.GreetingConfig{
		Model: e.llmConfig.Model,
	})
	if err != nil {
		log.Log.Warnf("[Engine] ⚠️  Greeting generation failed | User: %s | Error: %v", userID, formatLLMError(err))
		return FallbackGreeting
	}
	if greeting = StripMarkdown(greeting); greeting == "" {
		return FallbackGreeting
	}
	return greeting
}

// llmStatusCode extracts the HTTP status of a model API failure, or 0
func llmStatusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

// formatLLMError formats OpenAI API errors with detailed information
func formatLLMError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Message != "" {
			return fmt.Errorf("LLM request failed: error, status code: %d, message: %s", apiErr.HTTPStatusCode, apiErr.Message)
		}
		return fmt.Errorf("LLM request failed: error, status code: %d", apiErr.HTTPStatusCode)
	}

	return fmt.Errorf("LLM request failed: %w", err)
}

// classifyLLMError maps a model failure to a request error. Rate limiting is
// reported as resource-exhausted, everything else as internal.
func classifyLLMError(err error) error {
	if llmStatusCode(err) == http.StatusTooManyRequests {
		return model.WrapError(model.CodeResourceExhausted,
			"The AI assistant is busy right now. Please try again in a moment.", formatLLMError(err))
	}
	return model.WrapError(model.CodeInternal, "The AI assistant failed to respond", formatLLMError(err))
}
