package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	_ "time/tzdata"

	"dmailcal/internal/config"
	"dmailcal/internal/ics"
	appLog "dmailcal/internal/log"
	"dmailcal/internal/model"
	"dmailcal/internal/refresh"
	"dmailcal/internal/store"
	"dmailcal/internal/web"
)

const version = "0.1.0"

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), `usage: dmailcal [-config path] <command> [args]

commands:
  import [-merge] <file.ics>                 parse a calendar file and print the events as JSON
  export [-out dir] [-cancel subject] <events.json>
                                             render events as ICS documents
  sync                                       refresh all subscriptions once
  serve                                      run the HTTP API and the refresh scheduler
`)
	flag.PrintDefaults()
}

func main() {
	configPath := flag.String("config", "/etc/dmailcal/config.yaml", "Path to config file")
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", *configPath)
		os.Exit(1)
	}
	appLog.SetLevel(appLog.ParseLevel(cfg.LogLevel))
	appLog.Info("dmailcal starting",
		"version", version,
		"command", flag.Arg(0),
		"timezone", cfg.Timezone,
		"tokenizer", cfg.Tokenizer,
		"subscriptions", len(cfg.Subscriptions),
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	args := flag.Args()[1:]
	switch flag.Arg(0) {
	case "import":
		err = runImport(cfg, args)
	case "export":
		err = runExport(ctx, cfg, args)
	case "sync":
		err = runSync(ctx, cfg)
	case "serve":
		err = runServe(ctx, cfg)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		appLog.Error(flag.Arg(0)+" failed", err)
		os.Exit(1)
	}
}

func newImporter(cfg *config.Config) *ics.Importer {
	return ics.NewImporter(ics.NewTokenizer(cfg.Tokenizer), cfg.Location())
}

func subscriptions(cfg *config.Config) []ics.Subscription {
	subs := make([]ics.Subscription, 0, len(cfg.Subscriptions))
	for _, s := range cfg.Subscriptions {
		subs = append(subs, ics.Subscription{ID: s.ID, URL: s.URL, Username: s.Username, Password: s.Password})
	}
	return subs
}

// runImport parses one ICS file against the store and prints the new
// events. -merge also persists them.
func runImport(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	merge := fs.Bool("merge", false, "Merge imported events into the store")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("import needs exactly one file")
	}

	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	st, err := store.Open(cfg.StorePath)
	if err != nil {
		return err
	}

	events, res := newImporter(cfg).Parse(string(data), cfg.Account, st.Snapshot())
	if events == nil {
		return res.Err
	}
	if *merge {
		n, err := st.Merge(events)
		if err != nil {
			return err
		}
		appLog.Info("events merged", "added", n, "total", st.Len())
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Status string              `json:"status"`
		Events []model.EventRecord `json:"events"`
	}{Status: res.Outcome.String(), Events: events})
}

// runExport renders a JSON file of events. Without -out the documents go
// to stdout; with it each event is written to <dir>/<uid>.ics.
func runExport(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	outDir := fs.String("out", "", "Directory to write one .ics file per event")
	subject := fs.String("cancel", "", "Emit cancellation notices with this subject")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("export needs exactly one events file")
	}

	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	var in struct {
		Events []model.EventRecord `json:"events"`
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("decode %s: %w", fs.Arg(0), err)
	}

	x := ics.NewExporter(cfg.Timezone)
	var docs []string
	if *subject != "" {
		docs, err = x.CancelAll(ctx, in.Events, cfg.Account, ics.Cancellation{Subject: *subject})
	} else {
		docs, err = x.ExportAll(ctx, in.Events, cfg.Account)
	}
	if err != nil {
		return err
	}

	if *outDir == "" {
		_, err := os.Stdout.WriteString(strings.Join(docs, ""))
		return err
	}
	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		return err
	}
	for i, doc := range docs {
		name := in.Events[i].UID
		if name == "" {
			name = fmt.Sprintf("event-%d", i+1)
		}
		path := filepath.Join(*outDir, filepath.Base(name)+".ics")
		if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
			return err
		}
	}
	appLog.Info("events exported", "count", len(docs), "dir", *outDir)
	return nil
}

func newRefresher(cfg *config.Config, st *store.Store) *refresh.Refresher {
	return refresh.New(ics.NewFetcher(cfg.CacheDir), newImporter(cfg), st, subscriptions(cfg), cfg.Account)
}

func runSync(ctx context.Context, cfg *config.Config) error {
	st, err := store.Open(cfg.StorePath)
	if err != nil {
		return err
	}
	_, err = newRefresher(cfg, st).RunOnce(ctx)
	return err
}

func runServe(ctx context.Context, cfg *config.Config) error {
	st, err := store.Open(cfg.StorePath)
	if err != nil {
		return err
	}

	var refresher web.Refresher
	if len(cfg.Subscriptions) > 0 {
		r := newRefresher(cfg, st)
		if err := r.Start(ctx, cfg.RefreshCron, cfg.Location()); err != nil {
			return err
		}
		defer r.Stop()
		refresher = r
	}

	srv := web.NewServer(cfg, newImporter(cfg), ics.NewExporter(cfg.Timezone), st, refresher)
	err = srv.ListenAndServe(ctx)
	appLog.Info("dmailcal exiting")
	return err
}
