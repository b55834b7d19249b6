// Package mcp serves the skill service as Model Context Protocol tools so
// that agents can search for and load skills at runtime. It supports the
// stdio and SSE transports.
package mcp

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/jingkaihe/skillgarden/pkg/logger"
	"github.com/jingkaihe/skillgarden/pkg/service"
	"github.com/jingkaihe/skillgarden/pkg/version"
)

// ServerName is announced to MCP clients during initialization
const ServerName = "skillgarden"

// Transports
const (
	TransportStdio = "stdio"
	TransportSSE   = "sse"
)

const instructions = `Skill Garden is a knowledge base of SKILL.md documents: practical, maintained
instructions for frameworks, libraries and workflows.

Search for skills before working with a technology you want expert, current knowledge of.
Start broad and narrow down. Higher install counts mean more widely used skills. The
content field holds the full instructions; read and follow them.`

// Config selects the transport and, for SSE, where to listen
type Config struct {
	Transport string
	Host      string
	Port      int
}

// Server exposes a SkillServiceInterface as MCP tools
type Server struct {
	mcp     *server.MCPServer
	service service.SkillServiceInterface
	config  Config
	tools   []mcp.Tool
}

// NewServer creates an MCP server with every skill tool registered
func NewServer(svc service.SkillServiceInterface, cfg Config) (*Server, error) {
	if cfg.Transport == "" {
		cfg.Transport = TransportStdio
	}
	if cfg.Transport != TransportStdio && cfg.Transport != TransportSSE {
		return nil, errors.Errorf("unsupported MCP transport %q", cfg.Transport)
	}

	s := &Server{
		mcp: server.NewMCPServer(
			ServerName,
			version.Get().Version,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
			server.WithInstructions(instructions),
		),
		service: svc,
		config:  cfg,
	}
	if err := s.registerTools(); err != nil {
		return nil, err
	}
	return s, nil
}

// Tools lists the registered tool definitions
func (s *Server) Tools() []mcp.Tool {
	return s.tools
}

// Serve runs the configured transport until ctx is cancelled
func (s *Server) Serve(ctx context.Context) error {
	if s.config.Transport == TransportSSE {
		return s.ServeSSE(ctx)
	}
	return s.ServeStdio(ctx, os.Stdin, os.Stdout)
}

// ServeStdio speaks MCP over in and out. Nothing else may write to out, so
// the logger must point elsewhere.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	errWriter := logger.G(ctx).WithField("transport", TransportStdio).WriterLevel(logrus.ErrorLevel)
	defer errWriter.Close()

	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(log.New(errWriter, "", 0))

	logger.G(ctx).Info("serving MCP over stdio")
	if err := stdio.Listen(ctx, in, out); err != nil && !errors.Is(err, context.Canceled) {
		return errors.Wrap(err, "MCP stdio server failed")
	}
	return nil
}

// ServeSSE serves MCP over server-sent events until ctx is cancelled
func (s *Server) ServeSSE(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	sse := server.NewSSEServer(s.mcp, server.WithBaseURL("http://"+addr))

	errCh := make(chan error, 1)
	go func() {
		logger.G(ctx).WithField("address", addr).Info("serving MCP over SSE")
		errCh <- sse.Start(addr)
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "MCP SSE server failed")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return sse.Shutdown(shutdownCtx)
}
