// Package cmd is the aeonsight command tree.
package cmd

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/metcalfc/aeonsight/internal/config"
	"github.com/metcalfc/aeonsight/internal/library"
	"github.com/metcalfc/aeonsight/internal/state"
)

// Version info (injected via ldflags)
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// env holds what commands share. Stores are opened on first use so that
// help and version output never touch disk.
type env struct {
	dataDir  string
	stateDir string
	verbose  bool

	cfg    config.Config
	lib    *library.Store
	prefs  *state.Store
	logger *log.Logger
}

func (e *env) setup() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if e.dataDir != "" {
		abs, err := filepath.Abs(e.dataDir)
		if err != nil {
			return fmt.Errorf("resolve data dir: %w", err)
		}
		cfg.DataDir = abs
	}
	e.cfg = cfg

	e.logger = log.New(io.Discard, "", 0)
	if e.verbose {
		e.logger = log.New(os.Stderr, "", log.LstdFlags)
	}
	return nil
}

func (e *env) library() (*library.Store, error) {
	if e.lib != nil {
		return e.lib, nil
	}
	if err := os.MkdirAll(e.cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	lib, err := library.Open(e.cfg.LibraryPath(), e.logger)
	if err != nil {
		return nil, err
	}
	e.lib = lib
	return lib, nil
}

func (e *env) preferences() (*state.Store, error) {
	if e.prefs != nil {
		return e.prefs, nil
	}
	dir := e.stateDir
	if dir == "" {
		dir = state.Dir()
	}
	prefs, err := state.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("open preferences: %w", err)
	}
	e.prefs = prefs
	return prefs, nil
}

func (e *env) close() {
	if e.lib != nil {
		e.lib.Close()
		e.lib = nil
	}
}

// NewRootCmd creates the root command for aeonsight.
func NewRootCmd() *cobra.Command {
	e := &env{}

	root := &cobra.Command{
		Use:   "aeonsight",
		Short: "Read PDF, EPUB, text and HTML documents in the terminal",
		Long: `Read documents in the terminal and keep your place.

aeonsight provides tools to:
- Keep a library of PDF, EPUB, text and HTML documents
- Resume every document where you left off
- Read aloud with sentence highlighting
- Bookmark, annotate and export your notes
- Serve the goal blueprint endpoint and an MCP tool server`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return e.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			e.close()
		},
	}

	root.PersistentFlags().StringVar(&e.dataDir, "data-dir", "", "Library directory (default $AEON_DATA_DIR or ~/.local/share/aeonsight)")
	root.PersistentFlags().StringVar(&e.stateDir, "state-dir", "", "Preferences directory (default ~/.local/state/aeonsight)")
	root.PersistentFlags().BoolVarP(&e.verbose, "verbose", "v", false, "Log to stderr")

	root.AddCommand(newLibraryCmd(e))
	root.AddCommand(newReadCmd(e))
	root.AddCommand(newPrefsCmd(e))
	root.AddCommand(newServeCmd(e))
	root.AddCommand(newMCPCmd(e))

	return root
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "aeonsight: %v\n", err)
		return 1
	}
	return 0
}
