package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/promptcheck/promptcheck/pkg/config"
	"github.com/promptcheck/promptcheck/pkg/engine"
	"github.com/promptcheck/promptcheck/pkg/evaluator"
	"github.com/promptcheck/promptcheck/pkg/prompt"
	"github.com/promptcheck/promptcheck/pkg/report"
	"github.com/promptcheck/promptcheck/pkg/resolve"
	"github.com/promptcheck/promptcheck/pkg/suite"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "promptcheck",
	Short: "Conditional test runner for versioned prompts",
	Long: `promptcheck validates versioned prompt templates against test suites.

Which tests run, how they are evaluated, and how results roll up into
scores is driven by a layered configuration: system defaults, shared
definitions, suite-level defaults, and test-level overrides, gated by
scope and environment conditions.`,
}

// newLogger builds the process logger; --verbose lowers the level to debug.
func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return cfg.Build()
}

// envSnapshot captures the process environment as a map.
func envSnapshot() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i > 0 {
			env[kv[:i]] = kv[i+1:]
		}
	}
	return env
}

// --- run command ---

var runCmd = &cobra.Command{
	Use:   "run [suite...]",
	Short: "Run test suites against the active scope",
	Long: `Resolve, filter, and execute test suites.

Named suites are run in order; with no arguments every suite in the
suite directory runs. With --dry-run the command resolves and filters
only, reporting what would execute without dispatching evaluations.

The exit code is 0 when the overall aggregate meets the configured
pass threshold (an inconclusive aggregate also exits 0), 1 otherwise.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.LoadOrDefault(cfgPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		verbose, _ := cmd.Flags().GetBool("verbose")
		logger, err := newLogger(verbose)
		if err != nil {
			return err
		}
		defer logger.Sync()

		scopes, err := cfg.ScopeRegistry()
		if err != nil {
			return fmt.Errorf("building scope registry: %w", err)
		}
		models, err := cfg.ModelRegistry()
		if err != nil {
			return fmt.Errorf("building model registry: %w", err)
		}

		scopeName, _ := cmd.Flags().GetString("scope")
		if scopeName == "" {
			scopeName = scopes.Default()
		}
		if _, ok := scopes.Get(scopeName); !ok {
			return fmt.Errorf("unknown scope %q (known: %s)", scopeName, strings.Join(scopes.Names(), ", "))
		}

		lib, err := suite.LoadDir(cfg.SuiteDir)
		if err != nil {
			return err
		}
		suites, err := selectSuites(lib, args)
		if err != nil {
			return err
		}

		prompts, err := prompt.LoadDir(cfg.PromptDir)
		if err != nil {
			return fmt.Errorf("loading prompts from %s: %w", cfg.PromptDir, err)
		}

		dryRun, _ := cmd.Flags().GetBool("dry-run")
		concurrency, _ := cmd.Flags().GetInt("concurrency")
		if concurrency == 0 {
			concurrency = cfg.Concurrency
		}
		timeout, _ := cmd.Flags().GetDuration("timeout")
		if timeout == 0 {
			timeout = cfg.Timeout
		}

		eng := engine.New(engine.Options{
			Catalog:       lib,
			Defaults:      resolve.Defaults{Eval: cfg.DefaultEval()},
			Models:        models,
			DefaultModels: cfg.Models.Defaults,
			Evaluators:    evaluator.Builtins(nil, nil),
			Generate:      renderGenerator(prompts),
			Scope:         scopeName,
			Env:           envSnapshot(),
			Concurrency:   concurrency,
			Timeout:       timeout,
			DryRun:        dryRun,
			Logger:        logger,
		})

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		rep, err := eng.Run(ctx, suites)
		if rep != nil {
			noColor, _ := cmd.Flags().GetBool("no-color")
			report.Print(cmd.OutOrStdout(), rep, !noColor)

			if out, _ := cmd.Flags().GetString("out"); out != "" {
				if saveErr := report.Save(rep, out); saveErr != nil {
					logger.Warn("saving report failed", zap.Error(saveErr))
				}
			}
		}
		if err != nil {
			return err
		}

		overall := rep.Summary()
		if overall.Defined && overall.Score < cfg.PassThreshold {
			return fmt.Errorf("aggregate %.2f below pass threshold %.2f", overall.Score, cfg.PassThreshold)
		}
		return nil
	},
}

// renderGenerator builds the engine's generate callback: it renders the
// prompt named by the case's "prompt" input with the remaining input
// variables, so evaluators score the rendered template. Model adapters
// plug in here when live output is wanted instead.
func renderGenerator(prompts []*prompt.Prompt) engine.Generator {
	byID := make(map[string]*prompt.Prompt, len(prompts))
	for _, p := range prompts {
		byID[p.ID] = p
	}

	return func(_ context.Context, test resolve.ResolvedTest, model string) (string, error) {
		id, _ := test.Input["prompt"].(string)
		if id == "" {
			return "", fmt.Errorf("test %q: input has no \"prompt\" key", test.Name)
		}
		p, ok := byID[id]
		if !ok {
			return "", fmt.Errorf("test %q: unknown prompt %q", test.Name, id)
		}

		vars := make(map[string]any, len(test.Input)+1)
		for k, v := range test.Input {
			vars[k] = v
		}
		vars["model"] = model
		return p.Render(vars)
	}
}

// selectSuites picks the requested suites from the library, or all suites
// in sorted source order when none are named.
func selectSuites(lib *suite.Library, names []string) ([]*suite.TestSuite, error) {
	if len(names) > 0 {
		suites := make([]*suite.TestSuite, 0, len(names))
		for _, name := range names {
			s, ok := lib.Suite(name)
			if !ok {
				return nil, fmt.Errorf("unknown suite %q", name)
			}
			suites = append(suites, s)
		}
		return suites, nil
	}

	all := lib.Suites()
	sources := make([]string, 0, len(all))
	for src := range all {
		sources = append(sources, src)
	}
	sort.Strings(sources)

	suites := make([]*suite.TestSuite, 0, len(sources))
	for _, src := range sources {
		suites = append(suites, all[src])
	}
	return suites, nil
}

// --- check command ---

var checkCmd = &cobra.Command{
	Use:   "check [suite...]",
	Short: "Validate suite composition without executing",
	Long: `Resolve the named suites (all suites when none are named) and report
composition errors: unresolved references, include cycles, duplicate
test names, and malformed conditions. Nothing is executed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfigFlag(cmd)
		if err != nil {
			return err
		}

		lib, err := suite.LoadDir(cfg.SuiteDir)
		if err != nil {
			return err
		}
		suites, err := selectSuites(lib, args)
		if err != nil {
			return err
		}

		resolver := resolve.NewResolver(lib, resolve.Defaults{Eval: cfg.DefaultEval()})
		total := 0
		for _, s := range suites {
			tests, warnings, err := resolver.ResolveSuite(s)
			if err != nil {
				return fmt.Errorf("suite %q: %w", s.Name, err)
			}
			total += len(tests)
			for _, w := range warnings {
				fmt.Fprintf(cmd.OutOrStdout(), "warning: %s\n", w)
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "ok: %d suites, %d tests\n", len(suites), total)
		return nil
	},
}

// --- list command ---

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List suites, scopes, or models",
}

var listSuitesCmd = &cobra.Command{
	Use:   "suites",
	Short: "List available test suites",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfigFlag(cmd)
		if err != nil {
			return err
		}
		lib, err := suite.LoadDir(cfg.SuiteDir)
		if err != nil {
			return err
		}

		all := lib.Suites()
		sources := make([]string, 0, len(all))
		for src := range all {
			sources = append(sources, src)
		}
		sort.Strings(sources)
		for _, src := range sources {
			s := all[src]
			fmt.Fprintf(cmd.OutOrStdout(), "%-30s  %s (%d cases)\n", src, s.Name, len(s.Cases))
		}
		return nil
	},
}

var listScopesCmd = &cobra.Command{
	Use:   "scopes",
	Short: "List configured scopes",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfigFlag(cmd)
		if err != nil {
			return err
		}
		scopes, err := cfg.ScopeRegistry()
		if err != nil {
			return err
		}
		for _, name := range scopes.Names() {
			info, _ := scopes.Get(name)
			marker := ""
			if info.Default {
				marker = " (default)"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%-15s%s  %s\n", name, marker, info.Description)
		}
		return nil
	},
}

var listModelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List registered models and groups",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfigFlag(cmd)
		if err != nil {
			return err
		}
		models, err := cfg.ModelRegistry()
		if err != nil {
			return err
		}
		for _, m := range models.All() {
			fmt.Fprintln(cmd.OutOrStdout(), m)
		}
		groups := make([]string, 0, len(cfg.Models.Groups))
		for g := range cfg.Models.Groups {
			groups = append(groups, g)
		}
		sort.Strings(groups)
		for _, g := range groups {
			fmt.Fprintf(cmd.OutOrStdout(), "@%-14s %s\n", g, strings.Join(cfg.Models.Groups[g], ", "))
		}
		return nil
	},
}

func loadConfigFlag(cmd *cobra.Command) (*config.Config, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func init() {
	rootCmd.PersistentFlags().String("config", "promptcheck.yaml", "path to the system config file")
	rootCmd.PersistentFlags().Bool("verbose", false, "enable debug logging")

	runCmd.Flags().String("scope", "", "active scope (defaults to the config's default scope)")
	runCmd.Flags().Bool("dry-run", false, "resolve and filter only, execute nothing")
	runCmd.Flags().Int("concurrency", 0, "parallel evaluations (defaults to config)")
	runCmd.Flags().Duration("timeout", 0, "per-evaluation timeout (defaults to config)")
	runCmd.Flags().String("out", "", "write the JSON report to this path")
	runCmd.Flags().Bool("no-color", false, "disable colored output")

	listCmd.AddCommand(listSuitesCmd, listScopesCmd, listModelsCmd)
	rootCmd.AddCommand(runCmd, checkCmd, listCmd)
}
