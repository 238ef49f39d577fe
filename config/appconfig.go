// AppConfig implements the layered settings and CLI surface of spec.md §6:
// built-in defaults, overridden by an optional TOML-ish settings file,
// overridden by command-line flags. Grounded on vanducng-goclaw's go.mod
// (promoted pflag to a direct dependency) for the POSIX long-flag CLI and
// on Creative-Workz-Studio-LLC-cpi-si-claude-code's use of
// github.com/BurntSushi/toml for the file layer.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/pflag"
)

// AppConfig holds the recognized options of spec.md §6's configuration
// grammar plus the boot-control flags that never belong in a settings file.
type AppConfig struct {
	Model                      string `toml:"model"`
	Server                     bool   `toml:"server"`
	Host                       string `toml:"host"`
	Port                       int    `toml:"port"`
	Template                   string `toml:"template"`
	CtxSize                    int    `toml:"ctx_size"`
	Temp                       float64 `toml:"temp"`
	NPredict                   int    `toml:"n_predict"`
	NGL                        int    `toml:"ngl"`
	Timeout                    int    `toml:"timeout"`
	MemoryDir                  string `toml:"memory_dir"`
	CWD                        string `toml:"cwd"`
	LessonsDir                 string `toml:"lessons_dir"`
	StrictSandbox              bool   `toml:"strict_sandbox"`
	DangerouslySkipPermissions bool   `toml:"dangerously_skip_permissions"`
	PluginsDir                 string `toml:"plugins_dir"`
	ExpectedModel              string `toml:"expected_model"`

	// Boot-control flags: CLI-only, never read from or written to a
	// settings file.
	ConfigPath       string `toml:"-"`
	NoConfig         bool   `toml:"-"`
	InitConfig       bool   `toml:"-"`
	GenerateManifest bool   `toml:"-"`
	VerifyOnly       bool   `toml:"-"`
	ListTemplates    bool   `toml:"-"`
}

// DefaultAppConfig returns the built-in defaults, the bottom of the
// precedence chain in spec.md §6.
func DefaultAppConfig() AppConfig {
	return AppConfig{
		Model:      "default",
		Host:       "127.0.0.1",
		Port:       8080,
		CtxSize:    8192,
		Temp:       0.7,
		NPredict:   -1,
		Timeout:    120,
		MemoryDir:  "MEMORY.md",
		LessonsDir: "lessons",
	}
}

// LoadAppConfig resolves defaults < settings file (if present) < CLI flags
// (args, typically os.Args[1:]). Without --config it looks for
// "sentrycore.toml" in the working directory; a missing file there is not an
// error — defaults simply apply — while a missing --config file is.
// --no-config skips the file layer entirely.
func LoadAppConfig(args []string) (*AppConfig, error) {
	cfg := DefaultAppConfig()

	fs := pflag.NewFlagSet("sentryd", pflag.ContinueOnError)
	fs.SortFlags = false

	model := fs.String("model", "", "model name or path")
	server := fs.Bool("server", false, "run as a local model server")
	host := fs.String("host", "", "model server host")
	port := fs.Int("port", 0, "model server port")
	template := fs.String("template", "", "chat template name")
	ctxSize := fs.Int("ctx-size", 0, "context window size in tokens")
	temp := fs.Float64("temp", -1, "sampling temperature")
	nPredict := fs.Int("n-predict", 0, "max tokens to generate (-1 for unlimited)")
	timeout := fs.Int("timeout", 0, "request timeout in seconds")
	memoryDir := fs.String("memory-dir", "", "memory file path")
	cwd := fs.String("cwd", "", "working directory")
	lessonsDir := fs.String("lessons-dir", "", "lesson store directory")
	pluginsDir := fs.String("plugins-dir", "", "plugin manifest directory; absent disables plugin loading")
	expectedModel := fs.String("expected-model", "", "model name servertrust checks the server against")
	skipPermissions := fs.Bool("dangerously-skip-permissions", false, "allow every tool call without prompting")
	strictSandbox := fs.Bool("strict-sandbox", false, "refuse paths outside the allow-set instead of prompting")
	noStrictSandbox := fs.Bool("no-strict-sandbox", false, "allow interactive approval of paths outside the allow-set")
	configPath := fs.String("config", "", "settings file path")
	noConfigFlag := fs.Bool("no-config", false, "skip the settings file layer entirely")
	initConfig := fs.Bool("init-config", false, "write a settings file with the current defaults and exit")
	generateManifest := fs.Bool("generate-manifest", false, "generate a new integrity manifest and exit")
	verifyOnly := fs.Bool("verify-only", false, "verify the integrity manifest and exit without starting the agent")
	listTemplates := fs.Bool("list-templates", false, "list known chat templates and exit")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("config: parse flags: %w", err)
	}

	cfg.ConfigPath = *configPath
	cfg.NoConfig = *noConfigFlag
	cfg.InitConfig = *initConfig
	cfg.GenerateManifest = *generateManifest
	cfg.VerifyOnly = *verifyOnly
	cfg.ListTemplates = *listTemplates

	if !cfg.NoConfig {
		path := cfg.ConfigPath
		if path == "" {
			path = "sentrycore.toml"
		}
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return nil, fmt.Errorf("config: decode %s: %w", path, err)
			}
		} else if cfg.ConfigPath != "" {
			return nil, fmt.Errorf("config: settings file %s: %w", path, err)
		}
	}

	fs.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "model":
			cfg.Model = *model
		case "server":
			cfg.Server = *server
		case "host":
			cfg.Host = *host
		case "port":
			cfg.Port = *port
		case "template":
			cfg.Template = *template
		case "ctx-size":
			cfg.CtxSize = *ctxSize
		case "temp":
			cfg.Temp = *temp
		case "n-predict":
			cfg.NPredict = *nPredict
		case "timeout":
			cfg.Timeout = *timeout
		case "memory-dir":
			cfg.MemoryDir = *memoryDir
		case "cwd":
			cfg.CWD = *cwd
		case "lessons-dir":
			cfg.LessonsDir = *lessonsDir
		case "plugins-dir":
			cfg.PluginsDir = *pluginsDir
		case "expected-model":
			cfg.ExpectedModel = *expectedModel
		case "dangerously-skip-permissions":
			cfg.DangerouslySkipPermissions = *skipPermissions
		case "strict-sandbox":
			cfg.StrictSandbox = *strictSandbox
		case "no-strict-sandbox":
			cfg.StrictSandbox = !*noStrictSandbox
		}
	})

	return &cfg, nil
}

// WriteDefaultFile writes a settings file at path containing the current
// config's values, for --init-config.
func (c *AppConfig) WriteDefaultFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("config: create %s: %w", path, err)
	}
	defer f.Close()
	enc := toml.NewEncoder(f)
	return enc.Encode(c)
}

// KnownTemplates lists chat template names recognized for --list-templates.
// The core treats chat-template formatting as an external collaborator
// (spec.md §1), so this is advisory only.
func KnownTemplates() []string {
	return []string{"chatml", "llama3", "mistral", "gemma", "plain"}
}
