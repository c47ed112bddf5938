package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/xonecas/agentturn/internal/agent"
	"github.com/xonecas/agentturn/internal/config"
	"github.com/xonecas/agentturn/internal/core"
	"github.com/xonecas/agentturn/internal/mcp"
	"github.com/xonecas/agentturn/internal/modelclient"
	"github.com/xonecas/agentturn/internal/runtime"
	"github.com/xonecas/agentturn/internal/session"
	"github.com/xonecas/agentturn/internal/shell"
	"github.com/xonecas/agentturn/internal/store"
	"github.com/xonecas/agentturn/internal/tools"
)

const agentSystemPrompt = `You are an autonomous coding agent. You have tools to run shell commands, read and edit files, search the repository, fetch web pages, and delegate focused sub-tasks. Work step by step, use tools when they help, and give a clear final answer when the task is done.`

// buildAgent loads configuration and credentials, resolves the requested
// (or default) provider into a modelclient.Client, opens the durable
// SQLite-backed store, and assembles the framework's built-in tool set
// (spec SPEC_FULL.md §C), grounded on the teacher's
// buildRegistry/resolveProvider wiring in cmd/symb/main.go.
func buildAgent(configPath, providerName string) (*agent.Agent, store.Store, error) {
	cfg, err := config.Load(resolveConfigPath(configPath))
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	creds, err := config.LoadCredentials()
	if err != nil {
		return nil, nil, fmt.Errorf("load credentials: %w", err)
	}

	name, pcfg, err := resolveProvider(cfg, providerName)
	if err != nil {
		return nil, nil, err
	}

	client, err := buildModelClient(pcfg, creds.GetAPIKey(name))
	if err != nil {
		return nil, nil, err
	}

	dataDir, err := config.EnsureDataDir()
	if err != nil {
		return nil, nil, fmt.Errorf("prepare data dir: %w", err)
	}
	st, err := store.OpenSQLite(filepath.Join(dataDir, "sessions.db"))
	if err != nil {
		return nil, nil, fmt.Errorf("open session store: %w", err)
	}

	rt := runtime.New(cfg.Agent.RuntimeRoot, shell.DefaultBlockFuncs())
	toolSet, err := buildToolSet(cfg, rt, client)
	if err != nil {
		return nil, nil, err
	}

	a := agent.New(agent.Config{
		Model:        client,
		SystemPrompt: agentSystemPrompt,
		Tools:        toolSet,
		Runtime:      rt,
		MaxSteps:     core.IntPtr(cfg.Agent.MaxStepsOrDefault()),
		Store:        st,
		SendMode:     session.SendMode(cfg.Agent.SendModeOrDefault()),
	})
	return a, st, nil
}

// buildToolSet registers the framework's built-in tool set as local
// handlers on an mcp.Proxy, and connects the proxy to the configured
// upstream MCP server, if any, so both sources are listed and dispatched
// through the single local-handler-first CallTool path the teacher's
// proxy was built for — rather than leaving that local-dispatch branch
// reachable only from internal/mcp's own tests. A configured but
// unreachable upstream degrades to the built-in tools alone rather than
// failing agent construction, mirroring the teacher's "Warning: MCP init
// failed" best-effort startup in cmd/symb/main.go.
func buildToolSet(cfg *config.Config, rt core.Runtime, client modelclient.Client) ([]core.Tool, error) {
	ctx := context.Background()

	var upstream mcp.UpstreamClient
	if cfg.MCP.Upstream != "" {
		upstream = mcp.NewClient(cfg.MCP.Upstream)
	}
	proxy := mcp.NewProxy(upstream)
	mcp.RegisterCoreTools(proxy, rt, tools.DefaultSet(client))

	if upstream != nil {
		if err := proxy.Initialize(ctx); err != nil {
			log.Warn().Err(err).Str("upstream", cfg.MCP.Upstream).Msg("mcp init failed, continuing with built-in tools only")
		}
	}

	toolSet, err := mcp.ToolSource(ctx, proxy)
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}
	log.Info().Int("local_tools", proxy.LocalToolCount()).Bool("upstream", proxy.HasUpstream()).Int("total_tools", len(toolSet)).Msg("tool set assembled")
	return toolSet, nil
}

func resolveProvider(cfg *config.Config, requested string) (string, config.ProviderConfig, error) {
	name := requested
	if name == "" {
		name = cfg.DefaultProvider
	}
	if name == "" {
		for n := range cfg.Providers {
			name = n
			break
		}
	}
	if name == "" {
		return "", config.ProviderConfig{}, fmt.Errorf("no providers configured")
	}
	pcfg, ok := cfg.Providers[name]
	if !ok {
		return "", config.ProviderConfig{}, fmt.Errorf("provider %q not found in config", name)
	}
	return name, pcfg, nil
}

func buildModelClient(pcfg config.ProviderConfig, apiKey string) (modelclient.Client, error) {
	switch pcfg.KindOrDefault() {
	case "anthropic":
		return modelclient.NewAnthropicClient(apiKey, pcfg.Model, pcfg.Endpoint), nil
	case "openai":
		return modelclient.NewOpenAICompatibleClient(apiKey, pcfg.Model, pcfg.Endpoint), nil
	default:
		return nil, fmt.Errorf("unknown provider kind %q", pcfg.Kind)
	}
}
