// Package main provides the modelrepo CLI: command line access to the
// synchronization workflow that keeps a local model working copy in step
// with its shared remote repository.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	fsb "github.com/input-output-hk/catalyst-forge-libs/fs/billy"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/architectureofthings/archi-modelrepository-plugin/config"
	"github.com/architectureofthings/archi-modelrepository-plugin/events"
	"github.com/architectureofthings/archi-modelrepository-plugin/internal/logging"
	"github.com/architectureofthings/archi-modelrepository-plugin/merge"
	"github.com/architectureofthings/archi-modelrepository-plugin/model"
	"github.com/architectureofthings/archi-modelrepository-plugin/refresh"
	"github.com/architectureofthings/archi-modelrepository-plugin/snapshot"
	"github.com/architectureofthings/archi-modelrepository-plugin/store"
)

var rootCmd = &cobra.Command{
	Use:           "modelrepo",
	Short:         "Synchronize graph models through a shared git repository",
	Long:          `modelrepo keeps a model working copy (one file per model object) in step with a shared remote: export, commit, pull, conflict resolution and restoration of objects a merge would silently drop.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Create a new model working copy",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runInit,
}

var cloneCmd = &cobra.Command{
	Use:   "clone <remote-url> [path]",
	Short: "Clone a shared model repository into a working copy",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runClone,
}

var statusCmd = &cobra.Command{
	Use:   "status [path]",
	Short: "Show the working copy's branch, remote and pending changes",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStatus,
}

var refreshCmd = &cobra.Command{
	Use:   "refresh [path]",
	Short: "Pull remote changes, resolve conflicts and reload the model",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runRefresh,
}

var publishCmd = &cobra.Command{
	Use:   "publish [path]",
	Short: "Commit local changes and push them to the remote",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runPublish,
}

var historyCmd = &cobra.Command{
	Use:   "history [path]",
	Short: "Show the commit history of the working copy",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHistory,
}

var (
	logLevel     string
	modelName    string
	remoteURL    string
	commitMsg    string
	policyName   string
	historyCount int
)

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", logging.LevelNone, "Logging level (debug, info, warn, error, none)")

	initCmd.Flags().StringVar(&modelName, "name", "New Model", "Name of the new model")
	initCmd.Flags().StringVar(&remoteURL, "remote", "", "Remote URL to link the working copy to")

	refreshCmd.Flags().StringVar(&policyName, "policy", "decline", "Conflict policy: local, remote or decline")
	refreshCmd.Flags().StringVar(&commitMsg, "message", "", "Commit message for pending local changes")

	publishCmd.Flags().StringVar(&commitMsg, "message", "", "Commit message for pending local changes")

	historyCmd.Flags().IntVarP(&historyCount, "max-count", "n", 0, "Limit the number of commits shown")

	rootCmd.AddCommand(initCmd, cloneCmd, statusCmd, refreshCmd, publishCmd, historyCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "modelrepo: %v\n", err)
		os.Exit(1)
	}
}

// setup loads the configuration and builds the logger shared by every
// command.
func setup() (*config.Config, *zap.Logger, error) {
	log, err := logging.New(logLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", logLevel, err)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	return cfg, log, nil
}

// storeOptions builds store options rooted at the given directory.
func storeOptions(dir string, cfg *config.Config, log *zap.Logger) (*store.Options, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}

	return &store.Options{
		FS:     fsb.NewOSFS(abs),
		Branch: cfg.DefaultBranch,
		Author: cfg.Signature(),
		Logger: log,
	}, nil
}

func workdirArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return "."
}

// openStore opens the working copy at the given directory.
func openStore(ctx context.Context, dir string, cfg *config.Config, log *zap.Logger) (*store.Store, error) {
	opts, err := storeOptions(dir, cfg, log)
	if err != nil {
		return nil, err
	}

	s, err := store.Open(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("no model working copy at %q: %w", dir, err)
	}

	return s, nil
}

// loadModel reads the model out of the working copy files.
func loadModel(s *store.Store) (*model.Model, error) {
	workFS, err := s.WorkFS()
	if err != nil {
		return nil, err
	}

	snap, err := snapshot.Read(workFS)
	if err != nil {
		return nil, err
	}

	return snapshot.ToModel(snap)
}

// newWorkflow assembles the refresh workflow from the configuration: stored
// credentials, configured proxies and the chosen conflict policy.
func newWorkflow(s *store.Store, dir string, cfg *config.Config, log *zap.Logger) (*refresh.Workflow, error) {
	policy, err := policyFor(policyName)
	if err != nil {
		return nil, err
	}

	credsPath, err := cfg.CredentialsPath()
	if err != nil {
		return nil, err
	}

	creds, err := config.OpenCredentials(credsPath)
	if err != nil {
		return nil, err
	}

	bus := events.NewBus()
	bus.Subscribe(events.ModelReloaded, func(events.Event) {
		fmt.Println("model reloaded from merged state")
	})

	return refresh.New(refresh.Options{
		Store:        s,
		Workdir:      dir,
		Bus:          bus,
		CommitPrompt: refresh.AutoCommit(commitMsg),
		Credentials:  creds,
		Proxy:        cfg,
		Policy:       policy,
		Progress:     consoleProgress{},
		Logger:       log,
	})
}

func policyFor(name string) (merge.Policy, error) {
	switch name {
	case "local":
		return merge.FavorLocal(), nil
	case "remote":
		return merge.FavorRemote(), nil
	case "decline", "":
		return merge.Decline(), nil
	default:
		return nil, fmt.Errorf("unknown conflict policy %q (want local, remote or decline)", name)
	}
}

// consoleProgress prints workflow phases to stderr.
type consoleProgress struct{}

func (consoleProgress) Begin(phase string) { fmt.Fprintf(os.Stderr, "  %s...\n", phase) }
func (consoleProgress) Complete()          {}
func (consoleProgress) Error(error)        {}

func runInit(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}

	dir := workdirArg(args)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	opts, err := storeOptions(dir, cfg, log)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	s, err := store.Init(ctx, opts)
	if err != nil {
		return err
	}

	if remoteURL == "" {
		remoteURL = cfg.DefaultRemote
	}
	if remoteURL != "" {
		if err := s.EnsureRemote(remoteURL); err != nil {
			return err
		}
	}

	m := model.New(modelName)
	snap, err := snapshot.FromModel(m)
	if err != nil {
		return err
	}

	if err := s.ExportSnapshot(ctx, snap); err != nil {
		return err
	}

	info, err := s.Commit(ctx, "Initial model", store.CommitOpts{})
	if err != nil {
		return err
	}

	fmt.Printf("initialized model %q in %s (commit %.8s)\n", modelName, dir, info.Hash)
	return nil
}

func runClone(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}

	url := args[0]
	dir := "."
	if len(args) > 1 {
		dir = args[1]
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	opts, err := storeOptions(dir, cfg, log)
	if err != nil {
		return err
	}

	credsPath, err := cfg.CredentialsPath()
	if err != nil {
		return err
	}
	credStore, err := config.OpenCredentials(credsPath)
	if err != nil {
		return err
	}
	if creds, ok := credStore.Lookup(url); ok {
		opts.Auth = store.NewHTTPSAuthProvider(creds.Username, creds.Password)
	}

	s, err := store.Clone(cmd.Context(), url, opts)
	if err != nil {
		return err
	}

	branch, err := s.CurrentBranch()
	if err != nil {
		return err
	}

	fmt.Printf("cloned %s into %s (branch %s)\n", url, dir, branch)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}

	dir := workdirArg(args)
	ctx := cmd.Context()
	s, err := openStore(ctx, dir, cfg, log)
	if err != nil {
		return err
	}

	branch, err := s.CurrentBranch()
	if err != nil {
		return err
	}
	fmt.Printf("branch:  %s\n", branch)

	if url, err := s.RemoteURL(); err == nil {
		fmt.Printf("remote:  %s\n", url)
	} else if errors.Is(err, store.ErrNoRemote) {
		fmt.Println("remote:  (none)")
	} else {
		return err
	}

	head, err := s.Head()
	if errors.Is(err, store.ErrUnbornHead) {
		fmt.Println("history: (no commits)")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Printf("head:    %.8s\n", head)

	committed, err := s.SnapshotAt(ctx, "HEAD")
	if err != nil {
		return err
	}

	workFS, err := s.WorkFS()
	if err != nil {
		return err
	}
	working, err := snapshot.Read(workFS)
	if err != nil {
		return err
	}

	changes := snapshot.Diff(committed, working)
	if len(changes) == 0 {
		fmt.Println("changes: (none)")
		return nil
	}

	fmt.Printf("changes: %d\n", len(changes))
	for _, c := range changes {
		fmt.Printf("  %-8s %s\n", c.Type, c.Path)
	}
	return nil
}

func runRefresh(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}

	dir := workdirArg(args)
	ctx := cmd.Context()
	s, err := openStore(ctx, dir, cfg, log)
	if err != nil {
		return err
	}

	m, err := loadModel(s)
	if err != nil {
		return err
	}

	w, err := newWorkflow(s, dir, cfg, log)
	if err != nil {
		return err
	}

	result, err := w.Run(ctx, m)
	if err != nil {
		return err
	}

	if !result.Completed {
		fmt.Println("refresh not completed; the working copy is at its last committed state")
		return nil
	}

	fmt.Printf("refresh completed (%s)\n", result.Outcome.State)
	if !result.Restored.Empty() {
		fmt.Println("restored objects removed by the merge:")
		fmt.Println(result.Restored.String())
	}
	return nil
}

func runPublish(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}

	dir := workdirArg(args)
	ctx := cmd.Context()
	s, err := openStore(ctx, dir, cfg, log)
	if err != nil {
		return err
	}

	m, err := loadModel(s)
	if err != nil {
		return err
	}

	w, err := newWorkflow(s, dir, cfg, log)
	if err != nil {
		return err
	}

	ok, err := w.Publish(ctx, m)
	if err != nil {
		if errors.Is(err, store.ErrNotFastForward) {
			return fmt.Errorf("remote has new commits; run refresh first: %w", err)
		}
		return err
	}
	if !ok {
		fmt.Println("publish not completed")
		return nil
	}

	fmt.Println("published")
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}

	dir := workdirArg(args)
	s, err := openStore(cmd.Context(), dir, cfg, log)
	if err != nil {
		return err
	}

	commits, err := s.History(cmd.Context(), store.HistoryOptions{MaxCount: historyCount})
	if err != nil {
		return err
	}

	for _, c := range commits {
		marker := " "
		if c.IsMerge() {
			marker = "M"
		}
		line := c.Summary()
		if c.Conventional != nil && c.Conventional.Scope != "" {
			line = fmt.Sprintf("[%s] %s", c.Conventional.Scope, c.Conventional.Description)
		}
		fmt.Printf("%.8s %s %s  %s <%s>  %s\n",
			c.Hash, marker, c.When.Format("2006-01-02 15:04"), c.Author, c.Email, line)
	}
	return nil
}
