package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/fulmenhq/gofulmen/ascii"
	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/fulmenhq/gofulmen/pathfinder"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/paperscope/paperscope/internal/ailink/prompt"
	"github.com/paperscope/paperscope/internal/config"
	"github.com/paperscope/paperscope/internal/observability"
	"github.com/paperscope/paperscope/internal/output"
)

const (
	statusOK   = "ok"
	statusWarn = "warn"
	statusFail = "fail"
)

// diagnostic is one doctor check result.
type diagnostic struct {
	Check  string `json:"check"`
	Status string `json:"status"`
	Detail string `json:"detail"`
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long:  "Check configuration, credentials, prompts and storage, and suggest fixes for common issues.",
	RunE: func(cmd *cobra.Command, args []string) error {
		results := runDiagnostics(cmd.Context())

		failed := 0
		doc := output.Document{Title: "Diagnostics", Header: []string{"Check", "Status", "Detail"}}
		for _, d := range results {
			doc.Rows = append(doc.Rows, []string{d.Check, d.Status, d.Detail})
			if d.Status == statusFail {
				failed++
			}
		}
		if err := writeDocument(cmd, "doctor", doc, results); err != nil {
			return err
		}

		banner := fmt.Sprintf("All checks passed. Your %s installation is healthy.", GetAppIdentity().BinaryName)
		if failed > 0 {
			banner = fmt.Sprintf("%d check(s) failed. Review the table above.", failed)
		}
		_, _ = fmt.Fprint(cmd.ErrOrStderr(), ascii.DrawBox(banner, 0))
		if failed > 0 {
			return fmt.Errorf("%w: %d diagnostic check(s) failed", ErrConfig, failed)
		}
		return nil
	},
}

func runDiagnostics(ctx context.Context) []diagnostic {
	logger := observability.CLI()
	var results []diagnostic
	add := func(check, status, detail string) {
		results = append(results, diagnostic{Check: check, Status: status, Detail: detail})
		logger.Debug("Diagnostic", zap.String("check", check), zap.String("status", status), zap.String("detail", detail))
	}

	version := crucible.GetVersion()
	add("runtime", statusOK, fmt.Sprintf("%s %s/%s, gofulmen %s", runtime.Version(), runtime.GOOS, runtime.GOARCH, version.Gofulmen))

	cfgPath := configFilePath()
	if fileExists(cfgPath) {
		add("config file", statusOK, cfgPath)
	} else {
		add("config file", statusWarn, cfgPath+" (missing; run 'paperscope doctor init')")
	}

	cfg, err := loadConfig()
	if err != nil {
		add("config", statusFail, err.Error())
		return results
	}
	add("config", statusOK, fmt.Sprintf("feed %s, window %d/%s, daily limit %d", cfg.FeedType(), cfg.Governance.WindowLimit, cfg.Governance.WindowDuration, cfg.Governance.DailyLimit))

	if strings.TrimSpace(cfg.AILink.APIKey) == "" {
		add("api key", statusFail, "not set (PAPERSCOPE_AILINK_API_KEY or OPENROUTER_API_KEY)")
	} else {
		add("api key", statusOK, "set")
	}

	add("prompts", promptDiagnostic(cfg.AILink.PromptsDir))

	a := &app{cfg: cfg, logger: logger}
	if err := a.openStore(ctx); err != nil {
		add("store", statusFail, err.Error())
	} else {
		n, err := a.db.CountPapers(ctx, cfg.FeedType())
		if err != nil {
			add("store", statusFail, err.Error())
		} else {
			add("store", statusOK, fmt.Sprintf("%s, %d %s papers", a.db.Driver(), n, cfg.FeedType()))
		}
		a.close()
	}

	if cfg.Store.Driver == "qdrant" {
		switch {
		case !strings.EqualFold(cfg.Embedding.Provider, "ollama"):
			add("qdrant", statusFail, "store.driver qdrant needs embedding.provider ollama")
		case cfg.Qdrant.Host == "":
			add("qdrant", statusFail, "qdrant.url or qdrant.host is not set")
		default:
			add("qdrant", statusOK, fmt.Sprintf("%s:%d, collection %s", cfg.Qdrant.Host, cfg.Qdrant.Port, cfg.Collection()))
		}
	}
	return results
}

// promptDiagnostic loads the prompt registry. A relative override directory
// that is missing from the working directory is looked up from the repository
// root as a hint.
func promptDiagnostic(dir string) (string, string, string) {
	dir = strings.TrimSpace(dir)
	if dir != "" && !filepath.IsAbs(dir) && !fileExists(dir) {
		if root, err := findRepoRoot(); err == nil && fileExists(filepath.Join(root, dir)) {
			return "prompts", statusWarn, fmt.Sprintf("%s not found here; set ailink.prompts_dir to %s", dir, filepath.Join(root, dir))
		}
	}
	registry, err := prompt.LoadRegistry(dir)
	if err != nil {
		return "prompts", statusFail, err.Error()
	}
	detail := fmt.Sprintf("%d prompts", len(registry.List()))
	if dir != "" {
		detail += " (overrides from " + dir + ")"
	}
	return "prompts", statusOK, detail
}

func findRepoRoot() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	root, err := pathfinder.FindRepositoryRoot(cwd, []string{"go.mod", ".git"}, pathfinder.WithMaxDepth(10))
	if err != nil {
		return "", fmt.Errorf("project root not found: %w", err)
	}
	return root, nil
}

var doctorInitForce bool

var doctorInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configFilePath()
		if path == "" {
			return fmt.Errorf("%w: config path not resolved", ErrConfig)
		}
		if fileExists(path) && !doctorInitForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", path)
		}
		// #nosec G301 -- config directories use 0755 like other XDG dirs
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
		// #nosec G306 -- the template holds no secrets
		if err := os.WriteFile(path, []byte(initConfigTemplate), 0644); err != nil {
			return fmt.Errorf("write config file: %w", err)
		}
		observability.CLI().Info("Config initialized", zap.String("path", path))
		return nil
	},
}

const initConfigTemplate = `# paperscope config - created by 'paperscope doctor init'
feed:
  type: ai-security
ailink:
  # api_key: ""  # prefer PAPERSCOPE_AILINK_API_KEY or OPENROUTER_API_KEY
  models:
    quick: openai/gpt-4.1-nano
    detailed: openai/gpt-4.1-mini
governance:
  window_limit: 20
  window_duration: 60s
  daily_limit: 50
  paid_tier: false
source:
  kind: arxiv
  categories: [cs.CR, cs.AI, cs.LG, cs.CL]
  max_results: 100
store:
  driver: libsql
`

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.AddCommand(doctorInitCmd)

	addOutputFlags(doctorCmd)
	doctorInitCmd.Flags().BoolVar(&doctorInitForce, "force", false, "overwrite an existing config file")
}
