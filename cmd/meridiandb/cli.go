package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"meridian-cmp/config"
	"meridian-cmp/core/utils"
)

type options struct {
	ConfigPath string
	Yes        bool
	Args       []string
}

func parseOptions(fs *flag.FlagSet, args []string) (options, error) {
	var opts options
	fs.StringVar(&opts.ConfigPath, "config", "", "path to a YAML config file (MERIDIAN_* env always applies)")
	fs.BoolVar(&opts.Yes, "yes", false, "pre-confirm destructive commands")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	opts.Args = fs.Args()
	return opts, nil
}

// run parses, composes the runtime and dispatches one command.
func run(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	if errOut == nil {
		errOut = io.Discard
	}

	fs := flag.NewFlagSet("meridiandb", flag.ContinueOnError)
	fs.SetOutput(errOut)
	fs.Usage = func() { usage(errOut) }
	opts, err := parseOptions(fs, args)
	if err != nil {
		return err
	}
	if len(opts.Args) == 0 {
		usage(errOut)
		return errors.New("a command is required")
	}

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}
	logger := utils.NewLogger()

	rt, err := composeRuntime(cfg, logger)
	if err != nil {
		return err
	}
	defer rt.close()

	confirm := stdinConfirm(in, out)
	if opts.Yes {
		confirm = func(string) bool { return true }
	}
	return dispatch(ctx, rt, opts.Args, confirm, out, errOut)
}

func dispatch(ctx context.Context, rt *runtime, args []string, confirm func(string) bool, out, errOut io.Writer) error {
	switch args[0] {
	case "migrate":
		return runMigrate(ctx, rt, args[1:], out)
	case "seed":
		return runSeed(ctx, rt, args[1:], confirm, out)
	case "backup":
		return runBackup(ctx, rt, args[1:], confirm, out)
	case "restore":
		return runRestore(ctx, rt, args[1:], confirm, out)
	case "analyze":
		return runAnalyze(ctx, rt, args[1:], out)
	case "status":
		return runStatus(ctx, rt, out)
	case "reset":
		return runReset(ctx, rt, confirm, out)
	case "report":
		return runReport(rt, args[1:], out)
	case "alerts":
		return runAlerts(rt, args[1:], out)
	case "logs":
		return runLogs(ctx, rt, args[1:], out)
	case "watch":
		return runWatch(ctx, rt, out)
	case "help", "-h", "--help":
		usage(out)
		return nil
	default:
		usage(errOut)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

// stdinConfirm builds the interactive confirmation gate. Anything but
// y/yes declines.
func stdinConfirm(in io.Reader, out io.Writer) func(string) bool {
	if in == nil {
		return func(string) bool { return false }
	}
	reader := bufio.NewReader(in)
	return func(prompt string) bool {
		fmt.Fprintf(out, "%s [y/N]: ", prompt)
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return false
		}
		answer := strings.ToLower(strings.TrimSpace(line))
		return answer == "y" || answer == "yes"
	}
}

func ensureConfirmed(confirm func(string) bool, prompt string) error {
	if confirm == nil || !confirm(prompt) {
		return errors.New("aborted")
	}
	return nil
}

func usage(w io.Writer) {
	fmt.Fprint(w, `Usage: meridiandb [-config file] [-yes] <command> [args]

Commands:
  migrate up [version]      apply pending migrations (all by default)
  migrate down <version>    roll back to version (0 = empty schema)
  migrate status            applied and pending migrations
  migrate create <name>     scaffold the next migration descriptor
  seed run [name]           insert demo data (one seed or all)
  seed clear                delete every row from every table
  seed reset                clear, then re-run every seed
  seed list                 available seeds
  backup create [name]      consistent online copy of the store
  backup list               backups, newest first
  backup auto               timestamped auto backup with rotation
  backup verify <name>      checksum and integrity-check a backup
  backup delete <name>      remove a backup and its metadata
  restore <name>            replace the live store with a backup
  analyze <what>            performance | indexes | integrity | size | all
  status                    schema version, store size, recent backups
  reset                     safety backup, rebuild schema, re-seed
  report [days]             performance report (default 7 days)
  alerts [severity|clear]   stored alerts, optionally filtered
  logs clean                prune aged performance logs and alerts
  watch                     scheduled auto backups and health checks

Destructive commands ask for confirmation; -yes answers for you.
`)
}
