package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/skyalgo/pkg/model"
	"github.com/m-mizutani/skyalgo/pkg/usecase/session"
	"github.com/m-mizutani/skyalgo/pkg/utils/logging"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// HistoryService is the part of the session controller exposed as tools
type HistoryService interface {
	History(ctx context.Context) ([]*model.HistoryEntry, error)
	Entry(ctx context.Context, id model.HistoryEntryID) (*model.HistoryEntry, error)
	ShareLink(ctx context.Context, id model.HistoryEntryID) (string, error)
	DecodeShareLink(value string) (*model.HistoryEntry, error)
}

type listHistoryParams struct {
	Limit int `json:"limit,omitempty" jsonschema:"Maximum number of entries to return, newest first. 0 returns all."`
}

type entryParams struct {
	ID string `json:"id" jsonschema:"History entry ID"`
}

type decodeParams struct {
	Value string `json:"value" jsonschema:"Share link URL or the value of its view parameter"`
}

// historySummary is one line of list_history output
type historySummary struct {
	ID         model.HistoryEntryID `json:"id"`
	Timestamp  string               `json:"timestamp"`
	MarketBias model.MarketBias     `json:"marketBias,omitempty"`
	EntryZone  string               `json:"entryZone,omitempty"`
	StopLoss   string               `json:"stopLoss,omitempty"`
	Confidence string               `json:"confidence,omitempty"`
}

type handler struct {
	svc HistoryService
}

// NewServer builds an MCP server with list_history, show_history, share_history and
// decode_share_link tools.
func NewServer(svc HistoryService, version string) *mcp.Server {
	h := &handler{svc: svc}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "skyalgo",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_history",
		Description: "List recorded trading analyses, newest first, with bias and entry levels",
	}, h.listHistory)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "show_history",
		Description: "Show the full trading analysis report of a history entry",
	}, h.showHistory)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "share_history",
		Description: "Create a read-only share link for a history entry",
	}, h.shareHistory)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "decode_share_link",
		Description: "Decode a share link back into the trading analysis it carries",
	}, h.decodeShareLink)

	return server
}

// Serve runs server over stdio until the client disconnects or ctx is cancelled
func Serve(ctx context.Context, server *mcp.Server) error {
	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return goerr.Wrap(err, "mcp server failed")
	}
	return nil
}

// NewHTTPHandler serves server over the streamable HTTP transport
func NewHTTPHandler(server *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
		return server
	}, nil)
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func jsonResult(v any) (*mcp.CallToolResult, any, error) {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to marshal tool result")
	}
	return textResult(string(raw)), nil, nil
}

// errorResult reports a domain failure to the model instead of failing the protocol call
func errorResult(ctx context.Context, tool string, err error) (*mcp.CallToolResult, any, error) {
	logging.From(ctx).Warn("mcp tool failed", "tool", tool, "error", err)
	result := textResult(session.UserMessage(err))
	result.IsError = true
	return result, nil, nil
}

func (h *handler) listHistory(ctx context.Context, _ *mcp.CallToolRequest, params *listHistoryParams) (*mcp.CallToolResult, any, error) {
	history, err := h.svc.History(ctx)
	if err != nil {
		return errorResult(ctx, "list_history", err)
	}

	if params != nil && params.Limit > 0 && params.Limit < len(history) {
		history = history[:params.Limit]
	}

	summaries := make([]historySummary, 0, len(history))
	for _, entry := range history {
		s := historySummary{
			ID:        entry.ID,
			Timestamp: entry.Timestamp,
		}
		if d := entry.FinalTradingDecision; d != nil {
			s.MarketBias = d.MarketBias
			s.EntryZone = d.EntryZone
			s.StopLoss = d.StopLoss
			s.Confidence = d.Confidence
		}
		summaries = append(summaries, s)
	}

	return jsonResult(summaries)
}

func (h *handler) showHistory(ctx context.Context, _ *mcp.CallToolRequest, params *entryParams) (*mcp.CallToolResult, any, error) {
	entry, err := h.svc.Entry(ctx, model.HistoryEntryID(params.ID))
	if err != nil {
		return errorResult(ctx, "show_history", err)
	}
	return jsonResult(entry)
}

func (h *handler) shareHistory(ctx context.Context, _ *mcp.CallToolRequest, params *entryParams) (*mcp.CallToolResult, any, error) {
	link, err := h.svc.ShareLink(ctx, model.HistoryEntryID(params.ID))
	if err != nil {
		return errorResult(ctx, "share_history", err)
	}
	return textResult(link), nil, nil
}

func (h *handler) decodeShareLink(ctx context.Context, _ *mcp.CallToolRequest, params *decodeParams) (*mcp.CallToolResult, any, error) {
	value := strings.TrimSpace(params.Value)
	if strings.Contains(value, "?") {
		v, err := session.ShareValueFromURL(value)
		if err != nil {
			return errorResult(ctx, "decode_share_link", err)
		}
		value = v
	}

	entry, err := h.svc.DecodeShareLink(value)
	if err != nil {
		return errorResult(ctx, "decode_share_link", err)
	}
	return jsonResult(entry)
}
