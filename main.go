package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/sadopc/issuedesk/internal/config"
	"github.com/sadopc/issuedesk/internal/logging"
	"github.com/sadopc/issuedesk/internal/session"
	"github.com/sadopc/issuedesk/internal/tui"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "issuedesk",
		Short: "A local issue tracker with tags, filters and awards",
		Long: `issuedesk keeps issues and tags in a local SQLite store.

Run without a command to open the terminal UI. Changes from other devices
arrive through an inbox directory (--inbox) or a Postgres change feed
(--remote-dsn).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default <config dir>/issuedesk/config.yaml)")
	config.RegisterFlags(root.PersistentFlags())

	open := func(cmd *cobra.Command, logToFile bool) (*env, error) {
		return openEnv(cmd, configPath, logToFile)
	}

	tuiCmd := &cobra.Command{
		Use:   "tui",
		Short: "Open the terminal UI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd, open)
		},
	}
	root.RunE = tuiCmd.RunE

	root.AddCommand(
		tuiCmd,
		newListCmd(open),
		newAddCmd(open),
		newTagsCmd(open),
		newAwardsCmd(open),
		newSampleCmd(open),
		newDeleteAllCmd(open),
		newExportCmd(open),
		newSyncCmd(open),
		newUnlockCmd(open),
		newStatusCmd(open),
	)
	return root
}

type openFunc func(cmd *cobra.Command, logToFile bool) (*env, error)

// env is what every command runs against: resolved config, a logger and
// an open session holding the store lock.
type env struct {
	cfg     config.Config
	logger  *slog.Logger
	sess    *session.Session
	logFile *os.File
}

func openEnv(cmd *cobra.Command, configPath string, logToFile bool) (*env, error) {
	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return nil, err
	}

	e := &env{cfg: cfg}
	var w io.Writer = cmd.ErrOrStderr()
	if logToFile {
		f, err := logging.OpenFile(cfg.LogFile)
		if err != nil {
			return nil, err
		}
		e.logFile = f
		w = f
	}
	e.logger = logging.New(cfg.LogLevel, cfg.LogFormat, w)
	slog.SetDefault(e.logger)

	e.sess, err = session.Open(session.Options{
		DBPath:       cfg.DBPath,
		SaveDelay:    cfg.SaveDelay,
		FreeTagLimit: cfg.FreeTagLimit,
		Logger:       e.logger,
	})
	if err != nil {
		e.logger.Error("open store", "path", cfg.DBPath, "error", err)
		e.closeLog()
		if errors.Is(err, session.ErrLocked) {
			return nil, fmt.Errorf("%w (is another issuedesk running?)", err)
		}
		return nil, err
	}
	return e, nil
}

// Close flushes queued edits and releases the store.
func (e *env) Close() error {
	err := e.sess.Close()
	if err != nil {
		e.logger.Error("close session", "error", err)
	}
	e.closeLog()
	return err
}

func (e *env) closeLog() {
	if e.logFile != nil {
		e.logFile.Close()
	}
}

func runTUI(cmd *cobra.Command, open openFunc) error {
	e, err := open(cmd, true)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	stop, err := startFeeds(ctx, e)
	if err != nil {
		cancel()
		return err
	}
	defer func() {
		cancel()
		stop()
	}()

	app := tui.NewApp(e.sess)
	defer app.Close()

	p := tea.NewProgram(app, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return err
	}
	return nil
}
