// Package mcp exposes the event cache as Model Context Protocol tools over
// a line-delimited JSON-RPC 2.0 stream.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/tazhate/taskcal/internal/service"
)

// Version is reported in the initialize handshake.
var Version = "1.0.0"

type Server struct {
	co     *service.Coordinator
	months *service.MonthCache
	log    logrus.FieldLogger

	// afterMutation runs after every tool call that changed the cache.
	afterMutation func(ctx context.Context)
}

func NewServer(co *service.Coordinator, months *service.MonthCache, log logrus.FieldLogger) *Server {
	return &Server{co: co, months: months, log: log}
}

// OnMutation registers fn to run after a tool changed the cache, e.g. to
// persist it.
func (s *Server) OnMutation(fn func(ctx context.Context)) {
	s.afterMutation = fn
}

// Run serves requests read from in until EOF or ctx is done.
func (s *Server) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	reader := bufio.NewReader(in)
	enc := json.NewEncoder(out)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("read request: %w", err)
		}
		eof := errors.Is(err, io.EOF)

		line = strings.TrimSpace(line)
		if line != "" {
			var resp *Response
			var req Request
			if jerr := json.Unmarshal([]byte(line), &req); jerr != nil {
				s.log.WithError(jerr).Warn("malformed request")
				resp = errorResponse(nil, codeParseError, "Parse error")
			} else {
				resp = s.handleRequest(ctx, req)
			}
			if resp != nil {
				if werr := enc.Encode(resp); werr != nil {
					return fmt.Errorf("write response: %w", werr)
				}
			}
		}

		if eof {
			return nil
		}
	}
}

// handleRequest returns nil for notifications, which get no reply.
func (s *Server) handleRequest(ctx context.Context, req Request) *Response {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "initialized", "notifications/initialized", "notifications/cancelled":
		return nil
	case "ping":
		return &Response{JSONRPC: "2.0", ID: req.ID, Result: map[string]interface{}{}}
	case "tools/list":
		return &Response{JSONRPC: "2.0", ID: req.ID, Result: ToolsListResult{Tools: tools}}
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	default:
		if req.ID == nil {
			return nil
		}
		return errorResponse(req.ID, codeMethodNotFound, "Method not found")
	}
}

func (s *Server) handleInitialize(req Request) *Response {
	result := InitializeResult{
		ProtocolVersion: protocolVersion,
		Capabilities: map[string]interface{}{
			"tools": map[string]interface{}{},
		},
		ServerInfo: ServerInfo{Name: "taskcal-mcp", Version: Version},
	}
	return &Response{JSONRPC: "2.0", ID: req.ID, Result: result}
}

func (s *Server) handleToolsCall(ctx context.Context, req Request) *Response {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, codeInvalidParams, "Invalid params")
	}
	if len(params.Arguments) == 0 {
		params.Arguments = json.RawMessage("{}")
	}

	log := s.log.WithField("tool", params.Name)

	var text string
	var isError bool

	h, ok := handlers[params.Name]
	if !ok {
		text, isError = "Unknown tool: "+params.Name, true
	} else {
		v, mutated, err := h(ctx, s, params.Arguments)
		switch {
		case err != nil:
			log.WithError(err).Debug("tool failed")
			text, isError = "Error: "+err.Error(), true
		default:
			text = render(v)
		}
		if mutated && s.afterMutation != nil {
			s.afterMutation(ctx)
		}
	}

	return &Response{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: ToolCallResult{
			Content: []ContentBlock{{Type: "text", Text: text}},
			IsError: isError,
		},
	}
}

func render(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
