package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"

	"github.com/tickerhw/wifid/captive"
	"github.com/tickerhw/wifid/netman"
	"github.com/tickerhw/wifid/wifi"
)

var (
	// Version is the version of the application. It is set at build time.
	Version string = "dev"
)

// tickInterval paces the state machine. Every timeout in the machine is
// polled, so the interval only bounds reaction latency.
const tickInterval = 500 * time.Millisecond

func defaultNetworksPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "networks.toml"
	}
	return filepath.Join(dir, "wifid", "networks.toml")
}

func main() {
	var (
		rootFlagSet = flag.NewFlagSet("wifid", flag.ExitOnError)
		configPath  = rootFlagSet.String("config", "", "path to config toml file (env: WIFID_CONFIG)")
		networks    = rootFlagSet.String("networks", defaultNetworksPath(), "path to the known-networks toml file (env: WIFID_NETWORKS)")
		sqlitePath  = rootFlagSet.String("sqlite", "", "store known networks in this sqlite database instead of toml (env: WIFID_SQLITE)")
		verbose     = rootFlagSet.Bool("verbose", false, "enable debug logging")
		version     = rootFlagSet.Bool("version", false, "display version")
	)

	err := ff.Parse(rootFlagSet, os.Args[1:],
		ff.WithEnvVarPrefix("WIFID"),
		ff.WithIgnoreUndefined(true), // Ignore subcommand flags for now
	)
	if err != nil {
		if err == flag.ErrHelp {
			rootFlagSet.Usage()
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error parsing flags: %v\n", err)
		os.Exit(1)
	}

	if *version {
		fmt.Println(Version)
		os.Exit(0)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := netman.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}

	var persister netman.Persister
	if *sqlitePath != "" {
		db, err := netman.OpenSQLiteStore(*sqlitePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error opening settings db: %v\n", err)
			os.Exit(1)
		}
		defer db.Close()
		persister = db
	} else {
		persister = netman.NewFileStore(*networks)
	}

	store := netman.NewStore(cfg.Capacity, persister, logger)
	_ = store.Load() // a fresh install has nothing to load

	var radio wifi.Radio
	getRadio := func() (wifi.Radio, error) {
		if radio != nil {
			return radio, nil
		}
		r, err := newRadio(logger)
		if err != nil {
			return nil, err
		}
		radio = r
		return radio, nil
	}

	listFlagSet := flag.NewFlagSet("list", flag.ExitOnError)
	listJSON := listFlagSet.Bool("json", false, "output in JSON format")
	listCmd := &ffcli.Command{
		Name:      "list",
		ShortHelp: "List known networks",
		FlagSet:   listFlagSet,
		Exec: func(ctx context.Context, args []string) error {
			return runList(os.Stdout, *listJSON, store)
		},
	}

	scanFlagSet := flag.NewFlagSet("scan", flag.ExitOnError)
	scanJSON := scanFlagSet.Bool("json", false, "output in JSON format")
	scanCmd := &ffcli.Command{
		Name:      "scan",
		ShortHelp: "Scan for visible networks",
		FlagSet:   scanFlagSet,
		Exec: func(ctx context.Context, args []string) error {
			r, err := getRadio()
			if err != nil {
				return err
			}
			return runScan(os.Stdout, *scanJSON, r, store)
		},
	}

	addFlagSet := flag.NewFlagSet("add", flag.ExitOnError)
	addSecret := addFlagSet.String("passphrase", "", "passphrase for the network")
	addPriority := addFlagSet.Int("priority", 5, "priority 1-10, higher wins")
	addManual := addFlagSet.Bool("manual", false, "exclude from automatic connection")
	addCmd := &ffcli.Command{
		Name:      "add",
		ShortHelp: "Add or update a known network",
		FlagSet:   addFlagSet,
		Exec: func(ctx context.Context, args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("add requires an ssid")
			}
			return runAdd(os.Stdout, store, args[0], *addSecret, *addPriority, !*addManual)
		},
	}

	removeCmd := &ffcli.Command{
		Name:      "remove",
		ShortHelp: "Forget a known network",
		Exec: func(ctx context.Context, args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("remove requires an ssid")
			}
			return runRemove(os.Stdout, store, args[0])
		},
	}

	connectFlagSet := flag.NewFlagSet("connect", flag.ExitOnError)
	connectTimeout := connectFlagSet.Duration("timeout", netman.DefaultConnectTimeout, "how long to wait for the link")
	connectCmd := &ffcli.Command{
		Name:      "connect",
		ShortHelp: "Connect to a known network once, without the manager",
		FlagSet:   connectFlagSet,
		Exec: func(ctx context.Context, args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("connect requires an ssid")
			}
			r, err := getRadio()
			if err != nil {
				return err
			}
			return runConnect(ctx, os.Stdout, r, store, args[0], *connectTimeout)
		},
	}

	qrCmd := &ffcli.Command{
		Name:      "qr",
		ShortHelp: "Print a join QR code for a known network",
		Exec: func(ctx context.Context, args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("qr requires an ssid")
			}
			return runQR(os.Stdout, store, args[0])
		},
	}

	root := &ffcli.Command{
		ShortUsage:  "wifid [flags] [<subcommand> [args...]]",
		ShortHelp:   "Run the connectivity manager",
		FlagSet:     rootFlagSet,
		Subcommands: []*ffcli.Command{listCmd, scanCmd, addCmd, removeCmd, connectCmd, qrCmd},
		Exec: func(ctx context.Context, args []string) error {
			r, err := getRadio()
			if err != nil {
				return err
			}
			return runDaemon(ctx, cfg, store, r, logger)
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.Run(ctx); err != nil && err != context.Canceled {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// runDaemon is the long-running mode: the state machine ticks until the
// process is signalled.
func runDaemon(ctx context.Context, cfg netman.Config, store *netman.Store, radio wifi.Radio, logger *slog.Logger) error {
	capCfg := captive.DefaultConfig()
	capCfg.Hostname = "wifid"
	ap := captive.New(radio, capCfg, logger)
	defer func() { _ = ap.Stop() }()

	m := netman.NewMachine(cfg, store, radio, ap, logger)
	logger.Info("wifid starting",
		"version", Version,
		"networks", store.Len(),
		"capacity", store.Capacity())

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("wifid shutting down")
			return nil
		case <-ticker.C:
			m.Tick()
		}
	}
}
