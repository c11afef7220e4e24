package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"cherry2k/internal/config"
	"cherry2k/internal/datadir"
	"cherry2k/internal/exec"
	"cherry2k/internal/logging"
	"cherry2k/internal/orchestrator"
	"cherry2k/internal/provider"
	"cherry2k/internal/sessions"
	"cherry2k/internal/state"
	"cherry2k/internal/version"
)

var (
	cfgFile string
	dbPath  string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:     "cherry2k",
	Short:   "cherry2k - a terminal-resident AI assistant",
	Long:    `cherry2k runs one chat exchange at a time against a pluggable LLM provider, persisting conversation history locally and optionally executing commands the assistant proposes.`,
	Version: version.Full(),
}

var chatCmd = &cobra.Command{
	Use:   "chat <message>",
	Short: "Run one chat exchange in the current directory's session",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		plain, _ := cmd.Flags().GetBool("plain")
		contextFile, _ := cmd.Flags().GetString("context-file")
		return runChat(strings.Join(args, " "), plain, contextFile)
	},
}

var providerCmd = &cobra.Command{
	Use:   "provider [list|<name>]",
	Short: "Show or switch the active provider",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return runProviderShow()
		}
		if args[0] == "list" {
			return runProviderList()
		}
		return runProviderSwitch(args[0])
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume [session_id]",
	Short: "Resume the most recent session, a specific one, or list candidates",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		list, _ := cmd.Flags().GetBool("list")
		if list {
			return runResumeList()
		}
		var sessionID string
		if len(args) > 0 {
			sessionID = args[0]
		}
		return runResumeShow(sessionID)
	},
}

var newCmd = &cobra.Command{
	Use:   "new",
	Short: "Force-create a new session for the current directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runNew()
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all sessions after confirmation",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runClear()
	},
}

func init() {
	cobra.OnInitialize(initLogging)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (defaults to <data-dir>/config/config.json)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "database", "", "database file path (defaults to <data-dir>/data/sessions.db)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")

	chatCmd.Flags().Bool("plain", false, "accepted for the external terminal renderer; has no effect on output here")
	chatCmd.Flags().String("context-file", "", "prepend the contents of this file as extra context")

	resumeCmd.Flags().Bool("list", false, "list resumable sessions instead of resuming one")

	rootCmd.AddCommand(chatCmd, providerCmd, resumeCmd, newCmd, clearCmd)
}

func initLogging() {
	if verbose {
		logging.EnableVerbose()
	}
}

// resolveDataDir loads .env files and resolves the on-disk layout,
// following the teacher's cmd/gateway/main.go runServer bootstrap
// (resolve data dir, ensure it exists, load .env before config parsing
// so "${VAR}" placeholders and direct env overrides see it).
func resolveDataDir() (*datadir.DataDir, error) {
	dd, err := datadir.New("")
	if err != nil {
		return nil, fmt.Errorf("cannot resolve data directory: %w", err)
	}
	if err := dd.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("cannot create data directories: %w", err)
	}
	if err := datadir.LoadEnv(dd.Root()); err != nil {
		log.Printf("WARNING: failed to load .env files: %v", err)
	}
	return dd, nil
}

func loadConfig(dd *datadir.DataDir) (*config.Config, error) {
	path := cfgFile
	if path == "" {
		path = os.Getenv("CHERRY2K_CONFIG_PATH")
	}
	if path == "" {
		path = dd.FilePath("config/config.json")
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if err := cfg.LoadBlocklistOverride(dd.FilePath("config/blocklist.yaml")); err != nil {
		log.Printf("WARNING: failed to load blocklist override: %v", err)
	}

	if fp, err := cfg.Fingerprint(); err == nil {
		logging.New("config").Debugf("config fingerprint: %s", fp)
	}

	return cfg, nil
}

func openStore(dd *datadir.DataDir) (*sessions.Store, error) {
	path := dbPath
	if path == "" {
		path = dd.DatabasePath()
	}
	return sessions.NewStore(path)
}

// resolveProvider builds the provider factory and honors the
// state-file override (set by "provider <name>") over the config's
// default_provider, matching spec.md §6's state-file semantics.
func resolveProvider(dd *datadir.DataDir, cfg *config.Config) (provider.Provider, error) {
	factory, err := provider.NewFactory(cfg)
	if err != nil {
		return nil, err
	}

	active, err := state.ReadActiveProvider(dd.ActiveProviderPath())
	if err != nil {
		log.Printf("WARNING: failed to read active provider state: %v", err)
	}
	if active != "" && factory.Contains(active) {
		p, _ := factory.Get(active)
		return p, nil
	}
	return factory.GetDefault(), nil
}

func runChat(message string, plain bool, contextFile string) error {
	_ = plain // accepted but unused: no ANSI styling is applied to streamed output

	dd, err := resolveDataDir()
	if err != nil {
		return err
	}
	cfg, err := loadConfig(dd)
	if err != nil {
		return err
	}
	store, err := openStore(dd)
	if err != nil {
		return err
	}
	defer store.Close()

	p, err := resolveProvider(dd, cfg)
	if err != nil {
		return err
	}

	if contextFile != "" {
		data, err := os.ReadFile(contextFile)
		if err != nil {
			return fmt.Errorf("cannot read context file %s: %w", contextFile, err)
		}
		message = fmt.Sprintf("Context from %s:\n%s\n\n%s", contextFile, string(data), message)
	}

	workingDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("cannot resolve working directory: %w", err)
	}

	o := orchestrator.New(store, p, orchestrator.SafetyPolicy{
		ConfirmCommands: cfg.Safety.ConfirmCommands,
		BlockedPatterns: cfg.Safety.BlockedPatterns,
	})
	o.Stdin = os.Stdin
	o.Stdout = os.Stdout
	o.Stderr = os.Stderr

	_, err = o.RunExchange(context.Background(), workingDir, message)
	return err
}

func runProviderShow() error {
	dd, err := resolveDataDir()
	if err != nil {
		return err
	}
	cfg, err := loadConfig(dd)
	if err != nil {
		return err
	}
	p, err := resolveProvider(dd, cfg)
	if err != nil {
		return err
	}
	fmt.Println(p.ProviderID())
	return nil
}

func runProviderList() error {
	dd, err := resolveDataDir()
	if err != nil {
		return err
	}
	cfg, err := loadConfig(dd)
	if err != nil {
		return err
	}
	factory, err := provider.NewFactory(cfg)
	if err != nil {
		return err
	}
	for _, name := range factory.List() {
		marker := "  "
		if name == factory.DefaultProviderName() {
			marker = "* "
		}
		fmt.Printf("%s%s\n", marker, name)
	}
	return nil
}

func runProviderSwitch(name string) error {
	dd, err := resolveDataDir()
	if err != nil {
		return err
	}
	cfg, err := loadConfig(dd)
	if err != nil {
		return err
	}
	factory, err := provider.NewFactory(cfg)
	if err != nil {
		return err
	}
	if !factory.Contains(name) {
		return fmt.Errorf("unknown provider %q (available: %s)", name, strings.Join(factory.List(), ", "))
	}
	if err := state.WriteActiveProvider(dd.ActiveProviderPath(), name); err != nil {
		return fmt.Errorf("failed to persist active provider: %w", err)
	}
	fmt.Printf("Switched active provider to %s\n", name)
	return nil
}

func runResumeList() error {
	dd, err := resolveDataDir()
	if err != nil {
		return err
	}
	store, err := openStore(dd)
	if err != nil {
		return err
	}
	defer store.Close()

	summaries, err := store.ListSessions(50)
	if err != nil {
		return err
	}
	if len(summaries) == 0 {
		fmt.Println("No sessions yet.")
		return nil
	}
	for _, s := range summaries {
		fmt.Printf("%s  %s  %s\n", s.ID, s.WorkingDir, s.Preview)
	}
	return nil
}

func runResumeShow(sessionID string) error {
	dd, err := resolveDataDir()
	if err != nil {
		return err
	}
	store, err := openStore(dd)
	if err != nil {
		return err
	}
	defer store.Close()

	var session *sessions.Session
	if sessionID != "" {
		session, err = store.GetSession(sessionID)
		if err != nil {
			return err
		}
		if session == nil {
			return fmt.Errorf("no such session: %s", sessionID)
		}
	} else {
		workingDir, wdErr := os.Getwd()
		if wdErr != nil {
			return fmt.Errorf("cannot resolve working directory: %w", wdErr)
		}
		session, err = store.GetOrCreateSession(workingDir)
		if err != nil {
			return err
		}
	}

	messages, err := store.GetMessages(session.ID)
	if err != nil {
		return err
	}
	fmt.Printf("Session %s (%s)\n", session.ID, session.WorkingDir)
	for _, m := range messages {
		fmt.Printf("[%s] %s\n", m.Role, m.Content)
	}
	return nil
}

func runNew() error {
	dd, err := resolveDataDir()
	if err != nil {
		return err
	}
	store, err := openStore(dd)
	if err != nil {
		return err
	}
	defer store.Close()

	workingDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("cannot resolve working directory: %w", err)
	}
	session, err := store.CreateSession(workingDir)
	if err != nil {
		return err
	}
	fmt.Printf("Started new session %s\n", session.ID)
	return nil
}

func runClear() error {
	dd, err := resolveDataDir()
	if err != nil {
		return err
	}
	store, err := openStore(dd)
	if err != nil {
		return err
	}
	defer store.Close()

	result, err := exec.Confirm(os.Stdin, os.Stderr, "Delete all sessions? This cannot be undone.", false)
	if err != nil {
		return err
	}
	if result != exec.ConfirmYes {
		fmt.Fprintln(os.Stderr, "Cancelled.")
		return nil
	}

	count, err := store.DeleteAllSessions()
	if err != nil {
		return err
	}
	fmt.Printf("Deleted %d session(s).\n", count)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
