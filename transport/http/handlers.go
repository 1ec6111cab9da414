package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/evmauth/core"
	"github.com/layer-3/evmauth/service"
)

// ErrUnknownTool is returned when a call names a tool that is not registered
var ErrUnknownTool = errors.New("unknown tool")

// ToolInfo describes a registered tool
type ToolInfo struct {
	Name           string         `json:"name"`
	Description    string         `json:"description,omitempty"`
	Tier           string         `json:"tier"`
	RequiredTokens []core.TokenID `json:"requiredTokens"`
}

type tool struct {
	info    ToolInfo
	handler service.ToolHandler
}

// ToolServer dispatches tool calls, gating each one by the token policy
type ToolServer struct {
	gate   *service.Gate
	policy core.Policy
	logger *slog.Logger

	mu    sync.RWMutex
	tools map[string]*tool
}

// NewToolServer creates a dispatcher. A nil gate leaves every tool unprotected
func NewToolServer(gate *service.Gate, policy core.Policy, logger *slog.Logger) *ToolServer {
	if policy == nil {
		policy = core.DefaultPolicy()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ToolServer{
		gate:   gate,
		policy: policy,
		logger: logger,
		tools:  make(map[string]*tool),
	}
}

// Register adds a tool. Tools the policy assigns tokens to are wrapped by the gate
func (s *ToolServer) Register(name, description string, h service.ToolHandler) error {
	if name == "" || h == nil {
		return fmt.Errorf("tool name and handler are required")
	}

	ids := s.policy.Required(name)
	tier := "Free"
	if s.policy.IsProtected(name) {
		tier = core.TierName(ids[0])
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tools[name]; ok {
		return fmt.Errorf("tool %q is already registered", name)
	}
	s.tools[name] = &tool{
		info: ToolInfo{
			Name:           name,
			Description:    description,
			Tier:           tier,
			RequiredTokens: append([]core.TokenID{}, ids...),
		},
		handler: s.gate.Protect(ids, withoutAuthArguments(h)),
	}
	return nil
}

// withoutAuthArguments hides the proof and wallet fields from the tool handler
func withoutAuthArguments(h service.ToolHandler) service.ToolHandler {
	return func(ctx context.Context, req *core.Request) (*core.Result, error) {
		if req == nil {
			return h(ctx, req)
		}
		clean := *req
		clean.Proof = nil
		if req.Params != nil {
			params := *req.Params
			params.Proof = nil
			params.Wallet = nil
			params.Arguments = req.UserArguments()
			clean.Params = &params
		}
		return h(ctx, &clean)
	}
}

// Call runs the tool named by req.Params.Name
func (s *ToolServer) Call(ctx context.Context, req *core.Request) (*core.Result, error) {
	name := ""
	if req != nil && req.Params != nil {
		name = req.Params.Name
	}

	s.mu.RLock()
	t, ok := s.tools[name]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
	return t.handler(ctx, req)
}

// Unregistered lists the policy methods no tool has been registered for
func (s *ToolServer) Unregistered() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var missing []string
	for _, name := range s.policy.Methods() {
		if _, ok := s.tools[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// InvalidateWallet drops the cached ownership results of wallet
func (s *ToolServer) InvalidateWallet(wallet string) (int, error) {
	addr, err := core.ParseAddress(wallet)
	if err != nil {
		return 0, err
	}
	if s.gate == nil {
		return 0, nil
	}
	return s.gate.Oracle().Invalidate(addr), nil
}

// Tools lists the registered tools sorted by name
func (s *ToolServer) Tools() []ToolInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ToolInfo, 0, len(s.tools))
	for _, t := range s.tools {
		out = append(out, t.info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ToolHandlers contains HTTP handlers for tool endpoints
type ToolHandlers struct {
	server *ToolServer
}

// NewToolHandlers creates new tool handlers
func NewToolHandlers(server *ToolServer) *ToolHandlers {
	return &ToolHandlers{server: server}
}

// Call handles a tool call. The body is the call envelope; the tool name comes
// from the path
func (h *ToolHandlers) Call(c *gin.Context) {
	var req core.Request
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
	}
	if req.Params == nil {
		req.Params = &core.Params{}
	}
	req.Params.Name = c.Param("name")

	result, err := h.server.Call(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, ErrUnknownTool) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Unknown tool"})
			return
		}
		h.server.logger.Error("tool call failed", "tool", req.Params.Name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Tool call failed"})
		return
	}

	c.JSON(http.StatusOK, result)
}

// List returns the registered tools with their access tier
func (h *ToolHandlers) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tools": h.server.Tools()})
}

// InvalidateCache drops cached ownership results for the wallet in the path,
// for use after a token transfer
func (h *ToolHandlers) InvalidateCache(c *gin.Context) {
	removed, err := h.server.InvalidateWallet(c.Param("wallet"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid wallet address"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}
