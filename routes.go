package vaultcoach

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ghiac/vaultcoach/billing"
	"github.com/ghiac/vaultcoach/documents"
	"github.com/ghiac/vaultcoach/model"
	"github.com/ghiac/vaultcoach/server"
)

type toolCallLister interface {
	ListToolCalls(ctx context.Context, userID string) ([]*model.ToolCall, error)
}

// RegisterRoutes registers HTTP routes on the given gin.Engine
// Routes: /health, /docs, /api/tools, /api/chat*, /api/progression/chart, /api/tool-calls, /api/billing/*
func (a *App) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", a.handleHealth)
	router.GET("/docs", a.handleDocs)

	api := router.Group("/api")
	api.GET("/tools", a.handleTools)
	api.GET("/billing/coupon", a.handleCouponAvailability)
	api.POST("/billing/webhook", a.handleWebhook)

	authed := api.Group("", server.Auth(a.config.Auth))
	authed.POST("/chat", a.handleChat)
	authed.POST("/chat/greeting", a.handleGreeting)
	authed.GET("/progression/chart", a.handleProgressionChart)
	authed.GET("/tool-calls", a.handleToolCalls)
	authed.POST("/billing/checkout", a.handleCheckout)
	authed.POST("/billing/portal", a.handlePortal)
}

// handleHealth handles health check requests
func (a *App) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"store":   a.config.Store.Driver,
		"tools":   len(a.engine.Tools()),
		"version": Version(),
	})
}

// handleTools lists the active tool catalog
func (a *App) handleTools(c *gin.Context) {
	tools := a.engine.Executor.Tools.GetActiveTools()
	c.JSON(http.StatusOK, gin.H{"tools": tools})
}

// handleDocs renders the tool catalog reference
func (a *App) handleDocs(c *gin.Context) {
	doc := documents.NewCatalogDocument(a.engine.Executor.Tools.GetTools())
	html, err := doc.GenerateHTML()
	if err != nil {
		server.RespondError(c, model.WrapError(model.CodeInternal, "Failed to generate documentation", err))
		return
	}
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.String(http.StatusOK, string(html))
}

func (a *App) handleChat(c *gin.Context) {
	var req model.ChatRequest
	if !server.BindJSON(c, &req) {
		return
	}
	resp, err := a.engine.Chat(c.Request.Context(), server.UserID(c), req)
	if err != nil {
		server.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a *App) handleGreeting(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": a.engine.Greeting(c.Request.Context(), server.UserID(c))})
}

// handleProgressionChart renders the progression chart for ?targetHeight=&tolerance=&timeframe=
func (a *App) handleProgressionChart(c *gin.Context) {
	args := model.Args{}
	if target := c.Query("targetHeight"); target != "" {
		args["targetHeight"] = target
	}
	if raw := c.Query("tolerance"); raw != "" {
		tolerance, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			server.RespondError(c, model.NewError(model.CodeInvalidArgument, "tolerance must be a number"))
			return
		}
		args["tolerance"] = tolerance
	}
	if timeframe := c.Query("timeframe"); timeframe != "" {
		args["timeframe"] = timeframe
	}

	html, err := a.ProgressionChart(c.Request.Context(), server.UserID(c), args)
	if err != nil {
		server.RespondError(c, err)
		return
	}
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.String(http.StatusOK, html)
}

// handleToolCalls lists the tool calls recorded for the caller
func (a *App) handleToolCalls(c *gin.Context) {
	lister, ok := a.store.(toolCallLister)
	if !ok {
		server.RespondError(c, model.NewError(model.CodeFailedPrecondition, "Tool call history is not available"))
		return
	}
	calls, err := lister.ListToolCalls(c.Request.Context(), server.UserID(c))
	if err != nil {
		server.RespondError(c, model.WrapError(model.CodeInternal, "Failed to load tool calls", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"toolCalls": calls})
}

func (a *App) handleCheckout(c *gin.Context) {
	var req billing.CheckoutRequest
	if !server.BindJSON(c, &req) {
		return
	}
	resp, err := a.billing.CreateCheckout(c.Request.Context(), server.UserID(c), req)
	if err != nil {
		server.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// handlePortal opens the billing portal. An empty body targets the caller.
func (a *App) handlePortal(c *gin.Context) {
	var req struct {
		UserID string `json:"userId"`
	}
	if c.Request.ContentLength != 0 && !server.BindJSON(c, &req) {
		return
	}
	callerID := server.UserID(c)
	if req.UserID == "" {
		req.UserID = callerID
	}
	resp, err := a.billing.CustomerPortal(c.Request.Context(), callerID, req.UserID)
	if err != nil {
		server.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a *App) handleCouponAvailability(c *gin.Context) {
	resp, err := a.billing.CheckCouponAvailability(c.Request.Context())
	if err != nil {
		server.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// handleWebhook verifies and applies a Stripe event
func (a *App) handleWebhook(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil {
		server.RespondError(c, model.WrapError(model.CodeInvalidArgument, "Failed to read the request body", err))
		return
	}
	if err := a.billing.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature")); err != nil {
		server.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
