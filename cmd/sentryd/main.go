// Sentryd is a terminal-based AI coding agent that wraps the trust and
// execution core (sandbox, integrity verification, permission system,
// audit log) around an LLM-powered tool-use REPL.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/kestrel-forge/sentrycore/agent"
	"github.com/kestrel-forge/sentrycore/audit"
	"github.com/kestrel-forge/sentrycore/config"
	"github.com/kestrel-forge/sentrycore/integrity"
	"github.com/kestrel-forge/sentrycore/llm"
	"github.com/kestrel-forge/sentrycore/pathregistry"
	"github.com/kestrel-forge/sentrycore/permission"
	"github.com/kestrel-forge/sentrycore/plugin"
	"github.com/kestrel-forge/sentrycore/sandbox"
	"github.com/kestrel-forge/sentrycore/servertrust"
	"github.com/kestrel-forge/sentrycore/tools"
	"github.com/kestrel-forge/sentrycore/ui"
)

var version = "dev"

func getVersion() string {
	if version != "dev" {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	if len(os.Args) > 1 && (os.Args[1] == "--version" || os.Args[1] == "-v") {
		fmt.Printf("sentryd %s\n", getVersion())
		os.Exit(0)
	}

	cfg, err := config.LoadAppConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}

	if cfg.ListTemplates {
		for _, t := range config.KnownTemplates() {
			fmt.Println(t)
		}
		os.Exit(0)
	}

	workDir := cfg.CWD
	if workDir == "" {
		workDir, err = os.Getwd()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error getting working directory: %s\n", err)
			os.Exit(1)
		}
	}

	if cfg.InitConfig {
		path := cfg.ConfigPath
		if path == "" {
			path = "sentrycore.toml"
		}
		if err := cfg.WriteDefaultFile(path); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}
		fmt.Printf("Wrote default settings to %s\n", path)
		os.Exit(0)
	}

	bootLogger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	// PathRegistry: resolve every external binary before anything else runs,
	// closing the PATH-poisoning attack class of spec.md §4.5.
	registry := pathregistry.New()
	if err := registry.Resolve(); err != nil {
		fmt.Fprintf(os.Stderr, "Boot failed: %s\n", err)
		os.Exit(1)
	}
	for _, w := range registry.Warnings() {
		bootLogger.Warn(w)
	}

	// IntegrityVerifier: verify the module's own trust roots before
	// registering any tool. Tier 1-2 mismatches abort; 3-4 only warn.
	verifier, err := integrity.New(workDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Boot failed: %s\n", err)
		os.Exit(1)
	}

	if cfg.GenerateManifest {
		passphrase, err := integrity.PromptPassphrase("Set a new manifest passphrase: ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Boot failed: %s\n", err)
			os.Exit(1)
		}
		if err := verifier.Generate(passphrase); err != nil {
			fmt.Fprintf(os.Stderr, "Boot failed: %s\n", err)
			os.Exit(1)
		}
		fmt.Println("Integrity manifest generated.")
		os.Exit(0)
	}

	if _, err := os.Stat(verifier.ManifestPath); err == nil {
		passphrase, err := integrity.PromptPassphrase("Manifest passphrase: ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Boot failed: %s\n", err)
			os.Exit(1)
		}
		result := verifier.Verify(passphrase)
		for _, w := range result.Warnings {
			bootLogger.Warn(w)
		}
		for _, e := range result.Errors {
			bootLogger.Error(e)
		}
		if result.Abort {
			fmt.Fprintln(os.Stderr, "Boot failed: integrity verification aborted.")
			os.Exit(1)
		}
	} else {
		bootLogger.Warn("No integrity manifest found. Use --generate-manifest to create one.")
	}

	if cfg.VerifyOnly {
		fmt.Println("Integrity verification passed.")
		os.Exit(0)
	}

	rootCtx := context.Background()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	legacyProvider := providerForModel(cfg.Model)
	legacyCfg, err := config.Load(legacyProvider)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	if cfg.Model != "" && cfg.Model != "default" {
		legacyCfg.Model = cfg.Model
	}
	if cfg.CtxSize > 0 {
		legacyCfg.ContextWindow = cfg.CtxSize
	}

	// ServerTrust: when connecting to an already-running local model server,
	// verify the process and model identity before generating against it.
	// When sentryd itself will serve the model, only the port pre-check
	// applies (there is no peer process yet to verify).
	trustVerifier := servertrust.New(cfg.Host, cfg.Port, registry, cfg.ExpectedModel)
	if cfg.Server {
		portCheck := trustVerifier.CheckPortAvailable()
		if portCheck.Warning != "" {
			bootLogger.Warn(portCheck.Warning)
		}
		if !portCheck.OK {
			fmt.Fprintf(os.Stderr, "Boot failed: %s\n", portCheck.Error)
			os.Exit(1)
		}
	} else if cfg.ExpectedModel != "" {
		procCheck := trustVerifier.VerifyProcess()
		if procCheck.Warning != "" {
			bootLogger.Warn(procCheck.Warning)
		}
		if !procCheck.OK {
			fmt.Fprintf(os.Stderr, "Boot failed: %s\n", procCheck.Error)
			os.Exit(1)
		}
		modelCheck := trustVerifier.VerifyModelIdentity(legacyCfg.BaseURL)
		for _, w := range modelCheck.Warnings {
			bootLogger.Warn(w)
		}
	}

	client := newClient(legacyCfg.Provider, legacyCfg.APIKey, legacyCfg.Model, legacyCfg.MaxTokens, legacyCfg.BaseURL)
	currentModel := legacyCfg.Model
	currentProvider := legacyCfg.Provider

	auditDir := filepath.Join(workDir, ".sentrycore", "audit")
	auditLog := audit.New(auditDir, "")

	policy := sandbox.DefaultPolicy(workDir, cfg.StrictSandbox)
	policy.Audit = auditLog

	term := ui.NewTerminal()

	policy.Approve = func(path string) bool {
		return term.ConfirmAction(fmt.Sprintf("Allow access outside the sandboxed directory to %s?", path))
	}

	perms := permission.New(cfg.DangerouslySkipPermissions, func(toolName, argsPreview string) string {
		fmt.Printf("Allow %s (%s)? [y/n/a] ", toolName, argsPreview)
		var response string
		fmt.Scanln(&response)
		return strings.ToLower(strings.TrimSpace(response))
	})

	toolRegistry := tools.NewRegistry(workDir, policy, perms)
	toolRegistry.SetGitPath(registry.Get("git"))

	var loadedPlugins []plugin.Plugin
	if cfg.PluginsDir != "" {
		loadedPlugins, _ = loadPlugins(cfg.PluginsDir, auditLog)
		toolRegistry.RegisterPlugins(loadedPlugins)
	} else if unexpected := plugin.CheckUnexpected(workDir); len(unexpected) > 0 {
		bootLogger.Warn(fmt.Sprintf("Found %d plugin manifest(s) but no --plugins-dir was given; not loading them.", len(unexpected)))
	}

	pluginNames := make([]string, len(loadedPlugins))
	for i, p := range loadedPlugins {
		pluginNames[i] = p.Name
	}
	auditLog.SessionStart(legacyCfg.Provider, cfg.Template, currentModel, legacyCfg.ContextWindow, pluginNames)

	ag := agent.New(client, toolRegistry, workDir, legacyCfg.ContextWindow)
	ag.SetAudit(auditLog)
	ag.SetPermissions(perms)

	term.PrintBanner(currentModel, workDir, getVersion())

	oldSessionsDir := filepath.Join(workDir, ".pilot", "sessions")
	if info, err := os.Stat(oldSessionsDir); err == nil && info.IsDir() {
		term.PrintWarning("Session storage has moved to ~/.pilot/projects/<hash>/sessions/")
		term.PrintWarning(fmt.Sprintf("Old sessions at %s can be safely deleted.", oldSessionsDir))
		fmt.Println()
	}

	reader := bufio.NewReader(os.Stdin)

	var mu sync.Mutex
	var runCancel context.CancelFunc
	var lastInterrupt time.Time

	go func() {
		for range sigCh {
			mu.Lock()
			cancel := runCancel
			now := time.Now()
			doubleTap := now.Sub(lastInterrupt) < 2*time.Second
			lastInterrupt = now
			mu.Unlock()

			if cancel != nil {
				cancel()
			} else if doubleTap {
				finishSession(ag, auditLog)
				fmt.Println("\nExiting.")
				os.Exit(0)
			} else {
				fmt.Println()
				term.PrintPrompt()
			}
		}
	}()

	running := true
	for running {
		fmt.Print(term.Prompt())
		input, err := readInput(reader, term)
		if err != nil {
			break
		}

		if input == "" {
			continue
		}

		switch input {
		case "/help":
			term.PrintHelp()
			if sessDir, err := agent.GlobalSessionsDir(workDir); err == nil {
				fmt.Printf("  Sessions stored at: %s\n\n", sessDir)
			}
		case "/model":
			handleModelSwitch(reader, term, ag, &currentModel, &currentProvider)
		case "/quit":
			running = false
		case "/resume":
			handleResume(reader, term, ag, workDir)
		case "/compact":
			if err := ag.Compact(rootCtx, term); err != nil {
				term.PrintError(err)
			} else if err := ag.SaveSession(); err != nil {
				term.PrintWarning(fmt.Sprintf("Session save failed: %s", err))
			}
		case "/clear":
			ag.Clear(term)
		case "/context":
			s := ag.ContextUsage()
			term.PrintContextUsage(s.TotalTokens, s.ContextWindow, s.Threshold,
				s.MessageCount, s.SystemTokens, s.ToolDefTokens,
				s.MessageTokens, s.ActualTokens)
		case "/rewind":
			handleRewind(reader, term, ag, rootCtx)
		default:
			ag.CreateCheckpoint(input)

			runCtx, cancel := context.WithCancel(rootCtx)

			mu.Lock()
			runCancel = cancel
			mu.Unlock()

			err := ag.Run(runCtx, input, term)

			mu.Lock()
			runCancel = nil
			mu.Unlock()

			cancel()

			if err != nil {
				if err == context.Canceled || runCtx.Err() != nil {
					fmt.Println("Operation cancelled.")
					fmt.Println()
				} else {
					term.PrintError(err)
				}
			}

			if saveErr := ag.SaveSession(); saveErr != nil {
				term.PrintWarning(fmt.Sprintf("Session save failed: %s", saveErr))
			}
		}
	}

	finishSession(ag, auditLog)
}

func finishSession(ag *agent.Agent, auditLog *audit.Log) {
	turns, toolCalls, errorRate := ag.Stats()
	auditLog.SessionEnd(turns, toolCalls, errorRate)
	auditLog.Close()
}

// loadPlugins parses every manifest in dir and logs each outcome to the
// audit log with spec.md §9's plugin=true framing.
func loadPlugins(dir string, auditLog *audit.Log) ([]plugin.Plugin, []plugin.LoadResult) {
	plugins, results := plugin.Load(dir)
	for _, r := range results {
		auditLog.PluginLoaded(r.Name, r.File, r.OK, r.Error)
	}
	return plugins, results
}

// providerForModel maps a spec.md §6 model name/path onto the legacy
// cloud-API provider selection. The local-model-server framing of §6 and
// the teacher's cloud-API transport are reconciled here: a model name that
// names a known cloud model selects its provider; anything else (a local
// path, "default") keeps the environment's default provider.
func providerForModel(model string) string {
	if strings.Contains(strings.ToLower(model), "claude") {
		return "anthropic"
	}
	return ""
}

func newClient(provider, apiKey, model string, maxTokens int, baseURL string) llm.LLMClient {
	switch provider {
	case "anthropic":
		return llm.NewAnthropicClient(apiKey, model, maxTokens, baseURL)
	default:
		return llm.NewOpenAIResponsesClient(apiKey, model, maxTokens, baseURL)
	}
}

// readInput reads one line from the reader, then collects any additional
// pasted lines that arrived in the same paste event. This handles multi-line
// paste by checking both the bufio buffer and the OS stdin buffer.
func readInput(reader *bufio.Reader, term *ui.Terminal) (string, error) {
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	lines := []string{strings.TrimRight(line, "\r\n")}

	for reader.Buffered() > 0 || ui.StdinHasData() {
		line, err := reader.ReadString('\n')
		if err != nil {
			break
		}
		lines = append(lines, strings.TrimRight(line, "\r\n"))
	}

	return strings.TrimSpace(strings.Join(lines, "\n")), nil
}

func handleModelSwitch(reader *bufio.Reader, term *ui.Terminal, ag *agent.Agent, currentModel, currentProvider *string) {
	models := config.KnownModels()
	options := make([]ui.ModelOption, len(models))
	for i, m := range models {
		options[i] = ui.ModelOption{
			Label:   m.Label,
			Current: m.Model == *currentModel,
		}
	}
	term.PrintModelMenu(options)

	fmt.Print("Choice: ")
	choice, err := reader.ReadString('\n')
	if err != nil {
		return
	}
	choice = strings.TrimSpace(choice)
	if choice == "" {
		return
	}

	var selectedModel, selectedProvider string

	n, err := strconv.Atoi(choice)
	if err == nil {
		if n == 0 {
			term.PrintProviderPrompt(*currentProvider)
			fmt.Print("Provider (Enter for current): ")
			pChoice, pErr := reader.ReadString('\n')
			if pErr != nil {
				return
			}
			switch strings.TrimSpace(pChoice) {
			case "1":
				selectedProvider = "openai"
			case "2":
				selectedProvider = "anthropic"
			case "":
				selectedProvider = *currentProvider
			default:
				term.PrintWarning("Invalid choice.")
				return
			}

			fmt.Print("Model name: ")
			custom, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			custom = strings.TrimSpace(custom)
			if custom == "" {
				return
			}
			selectedModel = custom
		} else if n >= 1 && n <= len(models) {
			selectedModel = models[n-1].Model
			selectedProvider = models[n-1].Provider
		} else {
			term.PrintWarning("Invalid choice.")
			return
		}
	} else {
		term.PrintWarning("Invalid choice.")
		return
	}

	if selectedModel == *currentModel {
		term.PrintWarning(fmt.Sprintf("Already using %s.", selectedModel))
		return
	}

	apiKey := config.APIKeyForProvider(selectedProvider)
	if apiKey == "" {
		term.PrintWarning(fmt.Sprintf("No API key found for %s. Set the environment variable or add it to credentials.", selectedProvider))
		return
	}

	baseURL, maxTokens, contextWindow := config.ProviderDefaults(selectedProvider, selectedModel)
	client := newClient(selectedProvider, apiKey, selectedModel, maxTokens, baseURL)
	ag.SetClient(client, contextWindow)
	*currentModel = selectedModel
	*currentProvider = selectedProvider

	term.PrintModelSwitch(selectedModel)
}

func handleResume(reader *bufio.Reader, term *ui.Terminal, ag *agent.Agent, workDir string) {
	sessions, err := agent.ListSessions(workDir, 10)
	if err != nil {
		term.PrintError(fmt.Errorf("list sessions: %w", err))
		return
	}
	if len(sessions) == 0 {
		term.PrintWarning("No saved sessions found.")
		return
	}

	items := make([]ui.SessionListItem, len(sessions))
	for i, s := range sessions {
		items[i] = ui.SessionListItem{
			ID:       s.ID,
			Updated:  s.UpdatedAt,
			Preview:  s.Preview,
			MsgCount: s.MsgCount,
		}
	}
	term.PrintSessionList(items)

	fmt.Print("Choice: ")
	choice, err := reader.ReadString('\n')
	if err != nil {
		return
	}
	choice = strings.TrimSpace(choice)
	if choice == "" {
		return
	}

	n, err := strconv.Atoi(choice)
	if err != nil || n < 1 || n > len(sessions) {
		term.PrintWarning("Invalid choice.")
		return
	}

	selected := sessions[n-1]
	if err := ag.ResumeSession(selected.ID); err != nil {
		term.PrintError(fmt.Errorf("resume session: %w", err))
		return
	}

	term.PrintConversationHistory(ag.MessageHistory())
	term.PrintSessionResumed(selected.MsgCount, selected.Preview)
}

func handleRewind(reader *bufio.Reader, term *ui.Terminal, ag *agent.Agent, ctx context.Context) {
	items := ag.Checkpoints()
	if len(items) == 0 {
		term.PrintWarning("No checkpoints available. Checkpoints are created at the start of each turn.")
		return
	}

	uiItems := make([]ui.CheckpointListItem, len(items))
	for i, item := range items {
		uiItems[i] = ui.CheckpointListItem{
			Turn:      item.Turn,
			Timestamp: item.Timestamp,
			Preview:   item.Preview,
		}
	}
	term.PrintCheckpointList(uiItems)

	fmt.Print("Checkpoint number: ")
	choice, err := reader.ReadString('\n')
	if err != nil {
		return
	}
	choice = strings.TrimSpace(choice)
	if choice == "" {
		return
	}

	n, err := strconv.Atoi(choice)
	if err != nil || n < 1 || n > len(items) {
		term.PrintWarning("Invalid checkpoint number.")
		return
	}

	term.PrintRewindActions()

	fmt.Print("Action: ")
	action, err := reader.ReadString('\n')
	if err != nil {
		return
	}
	action = strings.TrimSpace(action)

	switch action {
	case "1":
		if err := ag.RewindAll(n); err != nil {
			term.PrintError(err)
			return
		}
		term.PrintConversationHistory(ag.MessageHistory())
		term.PrintRewindComplete("restored code and conversation")
	case "2":
		ag.RewindConversation(n)
		term.PrintConversationHistory(ag.MessageHistory())
		term.PrintRewindComplete("restored conversation only")
	case "3":
		if err := ag.RewindCode(n); err != nil {
			term.PrintError(err)
			return
		}
		term.PrintRewindComplete("restored code only")
	case "4":
		if err := ag.SummarizeFrom(ctx, n, term); err != nil {
			term.PrintError(err)
			return
		}
		term.PrintConversationHistory(ag.MessageHistory())
		term.PrintRewindComplete("summarized from checkpoint")
	case "5":
		return
	default:
		term.PrintWarning("Invalid action.")
	}
}
