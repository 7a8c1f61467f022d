// Package mcp exposes the TOON conversion core to MCP clients as tools,
// speaking JSON-RPC 2.0 over line-delimited stdio.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/pario-ai/toongate/pkg/convert"
	"github.com/pario-ai/toongate/pkg/logging"
	"github.com/pario-ai/toongate/pkg/models"
)

const maxLineSize = 1024 * 1024

// Cache memoizes toon_convert results across calls. *memory.Cache satisfies it.
type Cache interface {
	HashData(payload any) (string, bool)
	Get(key string) (models.ConversionResult, bool)
	Set(key string, value models.ConversionResult) bool
	Stats() models.CacheStats
}

// Summarizer reports ledger totals per path since a point in time.
type Summarizer interface {
	Summary(ctx context.Context, since time.Time) ([]models.ConversionSummary, error)
}

// Deps are the collaborators behind the tools. Cache and Ledger may be nil,
// in which case their tools report that they are not configured. A zero
// Pricing.Per1K takes models.DefaultPer1K.
type Deps struct {
	Converter           *convert.Converter
	Cache               Cache
	Ledger              Summarizer
	Pricing             models.Pricing
	Optimization        models.OptimizationOptions
	ConfidenceThreshold float64
	Logger              *zap.Logger
	Clock               func() time.Time
}

// Server is a minimal MCP server that communicates over stdio using JSON-RPC 2.0.
type Server struct {
	deps    Deps
	logger  *zap.Logger
	now     func() time.Time
	version string
}

// New creates a new MCP Server.
func New(deps Deps, version string) *Server {
	if deps.Converter == nil {
		deps.Converter = convert.New(nil)
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	return &Server{
		deps:    deps,
		logger:  logging.OrNop(deps.Logger).Named("mcp"),
		now:     now,
		version: version,
	}
}

// Run reads JSON-RPC requests from r line-by-line and writes responses to w.
// It blocks until r is closed or ctx is cancelled.
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, maxLineSize), maxLineSize)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.writeResponse(w, failure(nil, CodeParseError, "parse error"))
			continue
		}

		if resp := s.dispatch(ctx, &req); resp != nil {
			s.writeResponse(w, resp)
		}
	}
	return scanner.Err()
}

func (s *Server) dispatch(ctx context.Context, req *Request) *Response {
	if req.JSONRPC != jsonrpcVersion {
		return failure(req.ID, CodeInvalidRequest, "jsonrpc must be \"2.0\"")
	}
	switch req.Method {
	case "initialize":
		return result(req.ID, InitializeResult{
			ProtocolVersion: ProtocolVersion,
			ServerInfo:      ServerInfo{Name: "toongate", Version: s.version},
			Capabilities:    map[string]any{"tools": map[string]any{}},
		})
	case "notifications/initialized":
		return nil
	case "ping":
		return result(req.ID, map[string]any{})
	case "tools/list":
		return result(req.ID, ToolsListResult{Tools: allTools})
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	default:
		return failure(req.ID, CodeMethodNotFound, fmt.Sprintf("unknown method: %s", req.Method))
	}
}

func (s *Server) handleToolsCall(ctx context.Context, req *Request) *Response {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return failure(req.ID, CodeInvalidParams, "invalid params")
	}

	handler, ok := toolHandlers[params.Name]
	if !ok {
		return result(req.ID, errorResult(fmt.Sprintf("unknown tool: %s", params.Name)))
	}

	start := s.now()
	res := handler(ctx, s, params.Arguments)
	s.logger.Debug("tool call",
		zap.String("tool", params.Name),
		zap.Bool("is_error", res.IsError),
		zap.Duration("duration", s.now().Sub(start)),
	)
	return result(req.ID, res)
}

func (s *Server) writeResponse(w io.Writer, resp *Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("marshal response", zap.Error(err))
		return
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		s.logger.Warn("write response", zap.Error(err))
	}
}
