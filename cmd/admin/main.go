package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/buyit/internal/auth/token"
	"github.com/Adithya-Monish-Kumar-K/buyit/internal/catalog"
	pgstore "github.com/Adithya-Monish-Kumar-K/buyit/internal/store/postgres"
	"github.com/Adithya-Monish-Kumar-K/buyit/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/buyit/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/buyit/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/buyit/pkg/postgres"
)

// admin is a CLI for schema migrations, catalog seeding and local access
// tokens.
//
// Usage:
//
//	admin migrate  [up | down <steps> | version]
//	admin seed     --file products.json [--notify=true]
//	admin token    --user <id> [--name Dana] [--email d@example.com] [--verified] [--ttl 1h]
func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	ctx := context.Background()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	switch args[0] {
	case "migrate":
		cmdMigrate(cfg, args[1:])
	case "seed":
		cmdSeed(ctx, cfg, args[1:])
	case "token":
		cmdToken(cfg, args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func connect(cfg *config.Config) *postgres.Client {
	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	return db
}

func cmdMigrate(cfg *config.Config, args []string) {
	db := connect(cfg)
	defer db.Close()

	action := "up"
	if len(args) > 0 {
		action = args[0]
	}
	switch action {
	case "up":
		if err := db.Migrate(); err != nil {
			fmt.Fprintf(os.Stderr, "migration failed: %v\n", err)
			os.Exit(1)
		}
	case "down":
		steps := 1
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil || n < 1 {
				fmt.Fprintf(os.Stderr, "invalid step count %q\n", args[1])
				os.Exit(1)
			}
			steps = n
		}
		if err := db.MigrateDown(steps); err != nil {
			fmt.Fprintf(os.Stderr, "rollback failed: %v\n", err)
			os.Exit(1)
		}
	case "version":
	default:
		fmt.Fprintf(os.Stderr, "unknown migrate action: %s\n", action)
		os.Exit(1)
	}

	version, dirty, err := db.MigrationVersion()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read schema version: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Schema version: %d (dirty: %t)\n", version, dirty)
}

func cmdSeed(ctx context.Context, cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	file := fs.String("file", "", "JSON array of products")
	notify := fs.Bool("notify", true, "announce the change so searchers drop cached listings")
	fs.Parse(args)

	if *file == "" {
		fmt.Fprintln(os.Stderr, "error: --file is required")
		os.Exit(1)
	}
	products, err := catalog.LoadProducts(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read products: %v\n", err)
		os.Exit(1)
	}

	db := connect(cfg)
	defer db.Close()
	if err := pgstore.New(db).Seed(ctx, products); err != nil {
		fmt.Fprintf(os.Stderr, "failed to seed products: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Seeded %d product(s).\n", len(products))

	if !*notify {
		return
	}
	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.CacheInvalidate)
	defer producer.Close()
	notifyCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	err = catalog.NewKafkaNotifier(producer).ProductChanged(notifyCtx, catalog.ChangeEvent{Reason: catalog.ChangeSeeded})
	if err != nil {
		slog.Warn("failed to announce seeded catalog", "error", err)
	}
}

func cmdToken(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	user := fs.String("user", "", "user id (token subject)")
	name := fs.String("name", "", "display name")
	email := fs.String("email", "", "email address")
	verified := fs.Bool("verified", false, "mark the user as a verified seller")
	ttl := fs.Duration("ttl", 0, "token lifetime (defaults to auth.accessTTL)")
	fs.Parse(args)

	if *user == "" {
		fmt.Fprintln(os.Stderr, "error: --user is required")
		os.Exit(1)
	}
	authCfg := cfg.Auth
	if *ttl > 0 {
		authCfg.AccessTTL = *ttl
	}
	mgr, err := token.NewManager(authCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create token manager: %v\n", err)
		os.Exit(1)
	}
	raw, err := mgr.Mint(*user, *name, *email, *verified)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to mint token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(raw)
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "Usage: admin <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  migrate  Apply, roll back or show schema migrations")
	fmt.Fprintln(os.Stderr, "  seed     Load products from a JSON file")
	fmt.Fprintln(os.Stderr, "  token    Mint an access token for local testing")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Examples:")
	fmt.Fprintln(os.Stderr, `  admin migrate up`)
	fmt.Fprintln(os.Stderr, `  admin migrate down 1`)
	fmt.Fprintln(os.Stderr, `  admin seed --file testdata/products.json`)
	fmt.Fprintln(os.Stderr, `  admin token --user u1 --name Dana --verified`)
}
