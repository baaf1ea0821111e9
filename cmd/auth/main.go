// Command auth administers API keys. A key acts for exactly one owner and
// only sees that owner's documents and collections.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docstats/internal/auth/apikey"
	"github.com/Adithya-Monish-Kumar-K/docstats/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docstats/pkg/database"
	"github.com/Adithya-Monish-Kumar-K/docstats/pkg/logger"
)

type env struct {
	db   *database.Client
	keys *apikey.Validator
	out  io.Writer
}

type command struct {
	name    string
	summary string
	example string
	run     func(ctx context.Context, e *env, args []string) error
}

var commands = []command{
	{"create", "Issue a key for an owner", `auth create --owner 7 --name notebook --rate-limit 100 --expires-in 720h`, runCreate},
	{"revoke", "Deactivate a key", `auth revoke --key <raw-key>`, runRevoke},
	{"check", "Show whom a key acts for", `auth check --key <raw-key>`, runCheck},
	{"list", "List an owner's active keys", `auth list --owner 7 [--json]`, runList},
	{"migrate", "Create missing tables", `auth migrate`, runMigrate},
}

var errUsage = errors.New("usage")

func main() {
	configPath := flag.String("config", "configs/docstats.yaml", "path to config file")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}
	var cmd *command
	for i := range commands {
		if commands[i].name == args[0] {
			cmd = &commands[i]
		}
	}
	if cmd == nil {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", args[0])
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging)

	ctx := context.Background()
	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		slog.Error("failed to connect to database", "driver", cfg.Database.Driver, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	e := &env{db: db, keys: apikey.NewValidator(db), out: os.Stdout}
	if err := cmd.run(ctx, e, args[1:]); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "%v\nexample: %s\n", err, cmd.example)
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "%s: %v\n", cmd.name, err)
		os.Exit(1)
	}
}

func usage() {
	w := tabwriter.NewWriter(os.Stderr, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "usage: auth [--config path] <command> [flags]")
	fmt.Fprintln(w)
	for _, c := range commands {
		fmt.Fprintf(w, "  %s\t%s\t%s\n", c.name, c.summary, c.example)
	}
	w.Flush()
}

func runCreate(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	owner := fs.Int64("owner", 0, "user id the key acts for")
	name := fs.String("name", "", "label for the key")
	limit := fs.Int("rate-limit", 100, "requests per rate-limit window, 0 for unlimited")
	ttl := fs.Duration("expires-in", 0, "lifetime such as 720h; 0 never expires")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	switch {
	case *owner <= 0:
		return fmt.Errorf("%w: --owner must be a positive user id", errUsage)
	case *name == "":
		return fmt.Errorf("%w: --name is required", errUsage)
	case *limit < 0:
		return fmt.Errorf("%w: --rate-limit cannot be negative", errUsage)
	}

	var expiresAt *time.Time
	if *ttl > 0 {
		t := time.Now().Add(*ttl).UTC()
		expiresAt = &t
	}
	raw, err := e.keys.CreateKey(ctx, *name, *owner, *limit, expiresAt)
	if err != nil {
		return err
	}

	fmt.Fprintln(e.out, "Store this key now; only its hash is kept.")
	w := tabwriter.NewWriter(e.out, 0, 0, 1, ' ', 0)
	fmt.Fprintf(w, "  key:\t%s\n  owner:\t%d\n  name:\t%s\n  rate limit:\t%s\n  expires:\t%s\n",
		raw, *owner, *name, limitText(*limit), expiryText(expiresAt))
	return w.Flush()
}

func runRevoke(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("revoke", flag.ContinueOnError)
	key := fs.String("key", "", "raw key to revoke")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if *key == "" {
		return fmt.Errorf("%w: --key is required", errUsage)
	}
	if err := e.keys.RevokeKey(ctx, *key); err != nil {
		return err
	}
	fmt.Fprintln(e.out, "revoked")
	return nil
}

func runCheck(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	key := fs.String("key", "", "raw key to look up")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if *key == "" {
		return fmt.Errorf("%w: --key is required", errUsage)
	}
	info, err := e.keys.Validate(ctx, *key)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "key %s (%s) acts for owner %d, rate limit %s, expires %s\n",
		info.ID, info.Name, info.OwnerID, limitText(info.RateLimit), expiryText(info.ExpiresAt))
	return nil
}

func runList(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	owner := fs.Int64("owner", 0, "user id whose keys to list")
	asJSON := fs.Bool("json", false, "print JSON instead of a table")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if *owner <= 0 {
		return fmt.Errorf("%w: --owner must be a positive user id", errUsage)
	}
	keys, err := e.keys.ListKeys(ctx, *owner)
	if err != nil {
		return err
	}
	if *asJSON {
		enc := json.NewEncoder(e.out)
		enc.SetIndent("", "  ")
		return enc.Encode(keys)
	}
	if len(keys) == 0 {
		fmt.Fprintf(e.out, "owner %d has no active keys\n", *owner)
		return nil
	}
	w := tabwriter.NewWriter(e.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tLIMIT\tCREATED\tEXPIRES")
	for _, k := range keys {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			k.ID, k.Name, limitText(k.RateLimit), k.CreatedAt.Format(time.DateOnly), expiryText(k.ExpiresAt))
	}
	return w.Flush()
}

func runMigrate(ctx context.Context, e *env, _ []string) error {
	if err := e.db.Migrate(ctx); err != nil {
		return err
	}
	fmt.Fprintln(e.out, "schema up to date")
	return nil
}

func limitText(n int) string {
	if n <= 0 {
		return "unlimited"
	}
	return fmt.Sprintf("%d/window", n)
}

func expiryText(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Format(time.RFC3339)
}
