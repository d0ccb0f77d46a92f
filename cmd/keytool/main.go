package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"cskeys/internal/config"
	"cskeys/internal/fingerprint"
	"cskeys/internal/keyservice"
	"cskeys/internal/localstore"
	"cskeys/internal/quota"
	"cskeys/internal/sheetstore"
)

const usage = `keytool - operator CLI for the key ledger

Usage:
  keytool [flags] <command> [args]

Commands:
  generate     issue a new key (-type free|paid|legacy)
  validate     check a key: keytool validate CS-FREE-...
  consume      mark a key used: keytool consume CS-FREE-...
  stats        print ledger statistics
  list         list all remote keys
  audit        print the local audit log
  fingerprint  print this machine's hardware fingerprint
  cleanup      remove expired legacy keys from the local store

Flags:
`

func main() {
	endpoint := flag.String("endpoint", "", "key ledger endpoint URL (overrides config)")
	storePath := flag.String("store", "", "local store path (overrides config)")
	keyType := flag.String("type", "free", "key type for generate: free, paid or legacy")
	timeout := flag.Duration("timeout", 30*time.Second, "command timeout")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	// Quiet logger; the tool's output is the JSON result on stdout
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	cfg, err := config.Load()
	if err != nil {
		cfg = config.Default()
	}
	if *endpoint != "" {
		cfg.Remote.EndpointURL = *endpoint
	}
	if *storePath != "" {
		cfg.Store.Path = *storePath
	}

	command := flag.Arg(0)

	// fingerprint needs no collaborators
	if command == "fingerprint" {
		fmt.Println(fingerprint.Generate(time.Now()))
		return
	}

	if cfg.Remote.EndpointURL == "" && command != "cleanup" && command != "audit" &&
		!(command == "generate" && strings.EqualFold(*keyType, "legacy")) {
		fmt.Fprintln(os.Stderr, "error: no endpoint configured (use -endpoint or CSK_REMOTE_ENDPOINT_URL)")
		os.Exit(1)
	}

	store, err := localstore.Open(cfg.Store.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: open local store: %v\n", err)
		os.Exit(1)
	}

	client := sheetstore.NewClient(cfg.Remote.EndpointURL,
		sheetstore.WithTimeout(cfg.Remote.Timeout),
		sheetstore.WithLogger(logger),
	)

	service := keyservice.New(
		client,
		quota.NewRemotePolicy(client, cfg.Keys.DailyCap, logger),
		store,
		keyservice.Config{
			Secret:       cfg.Keys.Secret,
			LegacySecret: cfg.Keys.LegacySecret,
			ValidityDays: cfg.Keys.ValidityDays,
			LegacyMaxAge: cfg.Keys.LegacyMaxAge,
			FreeBonus:    cfg.Keys.FreeBonus,
			PaidBonus:    cfg.Keys.PaidBonus,
			LegacyBonus:  cfg.Keys.LegacyBonus,
		},
		keyservice.WithLogger(logger),
	)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch command {
	case "generate":
		runGenerate(ctx, service, *keyType)
	case "validate":
		runValidate(ctx, service, flag.Arg(1))
	case "consume":
		runConsume(ctx, service, flag.Arg(1))
	case "stats":
		runStats(ctx, service)
	case "list":
		runList(ctx, client)
	case "audit":
		printJSON(service.AuditLog())
	case "cleanup":
		if err := service.CleanupExpired(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "error: cleanup: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("cleanup complete")
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", command)
		flag.Usage()
		os.Exit(2)
	}
}

func runGenerate(ctx context.Context, service *keyservice.Service, keyType string) {
	var result keyservice.GenerateResult
	switch strings.ToLower(keyType) {
	case "free":
		result = service.GenerateFreeKey(ctx)
	case "paid":
		result = service.GeneratePaidKey(ctx)
	case "legacy":
		result = service.GenerateLegacyKey(ctx)
	default:
		fmt.Fprintf(os.Stderr, "unknown key type: %s\n", keyType)
		os.Exit(2)
	}
	printJSON(result)
	if !result.Success {
		os.Exit(1)
	}
}

func runValidate(ctx context.Context, service *keyservice.Service, code string) {
	if code == "" {
		fmt.Fprintln(os.Stderr, "usage: keytool validate <key>")
		os.Exit(2)
	}
	var result keyservice.ValidationResult
	if looksLegacy(code) {
		result = service.ValidateLegacyKey(ctx, code)
	} else {
		result = service.ValidateKey(ctx, code)
	}
	printJSON(result)
	if !result.Valid {
		os.Exit(1)
	}
}

func runConsume(ctx context.Context, service *keyservice.Service, code string) {
	if code == "" {
		fmt.Fprintln(os.Stderr, "usage: keytool consume <key>")
		os.Exit(2)
	}
	var result keyservice.ConsumeResult
	if looksLegacy(code) {
		result = service.ConsumeLegacyKey(ctx, code)
	} else {
		result = service.ConsumeKey(ctx, code)
	}
	printJSON(result)
	if !result.Success {
		os.Exit(1)
	}
}

func runStats(ctx context.Context, service *keyservice.Service) {
	stats, err := service.KeyStats(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: stats: %v\n", err)
		os.Exit(1)
	}
	printJSON(map[string]interface{}{
		"remote": stats,
		"legacy": service.LegacyKeyStats(),
	})
}

func runList(ctx context.Context, client *sheetstore.Client) {
	result, err := client.List(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: list: %v\n", err)
		os.Exit(1)
	}
	printJSON(result)
}

// looksLegacy distinguishes the two schemes by shape: dated keys carry a
// FREE or PAID tag after the prefix, legacy keys go straight to hash
// segments.
func looksLegacy(code string) bool {
	return !strings.HasPrefix(code, "CS-FREE-") && !strings.HasPrefix(code, "CS-PAID-")
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "error: encode output: %v\n", err)
		os.Exit(1)
	}
}
