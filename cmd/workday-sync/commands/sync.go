package commands

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"workday-sync/lib/loop"
	"workday-sync/lib/notify"
	"workday-sync/lib/restyutil"
	"workday-sync/lib/telemetry"
	"workday-sync/lib/workday"
	"workday-sync/lib/workday/browser"
	"workday-sync/services/workdaysync"

	"github.com/spf13/cobra"
)

type syncFlags struct {
	server      string
	token       string
	username    string
	password    string
	sessionPath string
	configPath  string
	dumpDir     string
}

var flags syncFlags

func init() {
	f := syncCmd.Flags()
	f.StringVar(&flags.server, "server", "", "Base url of Loop, ex. https://loop.robojackets.org")
	f.StringVar(&flags.token, "token", "", "Loop API token.")
	f.StringVar(&flags.username, "georgia-tech-username", "", "Georgia Tech username to log in to Workday with, omit to log in by hand.")
	f.StringVar(&flags.password, "georgia-tech-password", "", "Georgia Tech password to log in to Workday with.")
	f.StringVar(&flags.sessionPath, "session", "", "Use a saved Workday session (json5) instead of logging in with Chrome.")
	f.StringVar(&flags.configPath, "config", defaultConfigPath, "The json5 config file, <name>.local.json5 overrides it.")
	f.StringVar(&flags.dumpDir, "dump-dir", "", "Write every http request and response into this directory.")
	syncCmd.MarkFlagRequired("server")
	syncCmd.MarkFlagRequired("token")
	syncCmd.MarkFlagsRequiredTogether("georgia-tech-username", "georgia-tech-password")

	rootCmd.AddCommand(syncCmd)
}

var syncCmd = &cobra.Command{
	Use:   "sync --server <url> --token <token> [--session <path/to/session.json5>]",
	Short: "Runs one sync of everything Loop is missing from Workday.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSync(cmd.Context(), flags)
	},
}

func sessionProvider(cfg Config, f syncFlags) (workdaysync.SessionProvider, error) {
	if f.sessionPath != "" {
		return workdaysync.StaticSession{Path: f.sessionPath}, nil
	}
	provider, err := browser.NewProvider(cfg.browserOptions(f.username, f.password))
	if err != nil {
		return nil, err
	}
	return provider, nil
}

func runSync(ctx context.Context, f syncFlags) error {
	cfg, err := readConfig(f.configPath)
	if err != nil {
		return err
	}

	err = telemetry.SetupFromEnv(ctx, "workday-sync")
	if err != nil {
		slog.Warn("failed to setup telemetry, continuing without it", "err", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := telemetry.Shutdown(ctx)
		if err != nil {
			slog.Warn("failed to flush telemetry", "err", err)
		}
	}()

	statsCtx, stopStats := context.WithCancel(ctx)
	defer stopStats()
	telemetry.InstrumentPerfStats(statsCtx, cfg.perfStatsInterval())

	var dumper restyutil.Dumper
	if f.dumpDir != "" {
		dumper, err = restyutil.NewDumper(f.dumpDir)
		if err != nil {
			return fmt.Errorf("create dump directory: %w", err)
		}
	}

	dest, err := loop.NewClient(cfg.loopOptions(f.server, f.token))
	if err != nil {
		return err
	}
	dumper.Attach(dest.Http(), "loop")

	sessions, err := sessionProvider(cfg, f)
	if err != nil {
		return err
	}
	connect := func(session workday.Session) (workdaysync.Source, error) {
		source, err := workday.NewClient(cfg.workdayOptions(), session)
		if err != nil {
			return nil, err
		}
		dumper.Attach(source.Http(), "workday")
		return source, nil
	}

	driver := workdaysync.NewDriver(sessions, connect, dest, cfg.driverOptions())
	summary, runErr := driver.Run(ctx)

	rendered := &bytes.Buffer{}
	summary.Render(rendered)
	os.Stdout.Write(rendered.Bytes())

	if runErr != nil {
		notifier := notify.NewNotifier(cfg.Notify)
		err := notifier.RunFailed(context.WithoutCancel(ctx), notify.Failure{
			RunId:   summary.RunId,
			Err:     runErr,
			Summary: rendered.String(),
		})
		if err != nil {
			slog.Warn("failed to notify about the failed run", "err", err)
		}
		return fmt.Errorf("sync %s failed: %w", summary.RunId, runErr)
	}
	return nil
}
