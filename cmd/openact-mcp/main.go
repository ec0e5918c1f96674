// Command openact-mcp runs the Tool Protocol Front (C10): it exposes every
// MCP-enabled action as a JSON-RPC tool, over stdio (the default, for
// process-supervised MCP clients) or HTTP (spec.md §6: "stdio, NDJSON; or
// HTTP POST /mcp").
package main

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/aionixone/openact-sub001/pkg/appwire"
	"github.com/aionixone/openact-sub001/pkg/logger"
	"github.com/aionixone/openact-sub001/pkg/toolproto"
)

func main() {
	logger.Initialize()

	app, err := appwire.Bootstrap()
	if err != nil {
		logger.Errorf("bootstrapping application: %v", err)
		os.Exit(1)
	}
	defer app.DB.Close()

	gov := toolproto.NewGovernance(toolproto.GovernanceConfig{
		AllowPatterns:  splitCSV(os.Getenv("OPENACT_MCP_ALLOW")),
		DenyPatterns:   splitCSV(os.Getenv("OPENACT_MCP_DENY")),
		MaxConcurrency: envInt("OPENACT_MCP_MAX_CONCURRENCY", 8),
		RatePerSecond:  envFloat("OPENACT_MCP_RATE_PER_SECOND", 0),
	})

	server := toolproto.NewServer(app.Actions, app.Engine, gov, app.Config.RequireTenant())

	if os.Getenv("OPENACT_MCP_TRANSPORT") == "http" {
		addr := os.Getenv("OPENACT_LISTEN_ADDR")
		if addr == "" {
			addr = ":8090"
		}
		mux := http.NewServeMux()
		mux.Handle("/mcp", server.HTTPHandler())

		logger.Infof("openact-mcp listening on %s (http, POST /mcp)", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Errorf("mcp http server failed: %v", err)
			os.Exit(1)
		}
		return
	}

	logger.Infof("openact-mcp serving stdio")
	ctx := toolproto.WithTenant(context.Background(), app.Config.DefaultTenant())
	if err := server.ServeStdio(ctx, os.Stdin, os.Stdout); err != nil {
		logger.Errorf("mcp stdio loop failed: %v", err)
		os.Exit(1)
	}
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envInt(name string, def int) int {
	n, err := strconv.Atoi(os.Getenv(name))
	if err != nil {
		return def
	}
	return n
}

func envFloat(name string, def float64) float64 {
	f, err := strconv.ParseFloat(os.Getenv(name), 64)
	if err != nil {
		return def
	}
	return f
}
