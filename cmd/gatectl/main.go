// gatectl is the operator tool for the gate service: key material,
// key-ring rotation and ticket administration.
//
//	gatectl keygen [--bytes N]
//	gatectl rotate-key [--prune]
//	gatectl keys
//	gatectl add-ticket --id ID --event EVENT [--seat SEAT]
//	gatectl revoke --id ID
//	gatectl staff-token --sub USER [--role STAFF] [--ttl 12h]
//
// Connection settings come from the same environment (and .env) the server
// reads.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/iliyamo/gate-presence/internal/config"
	"github.com/iliyamo/gate-presence/internal/database"
	"github.com/iliyamo/gate-presence/internal/model"
	"github.com/iliyamo/gate-presence/internal/repository"
	"github.com/iliyamo/gate-presence/internal/token"
	"github.com/iliyamo/gate-presence/internal/utils"
)

type command struct {
	summary string
	run     func(ctx context.Context, args []string, out io.Writer) error
}

var commands = map[string]command{
	"keygen":      {"print a new random master secret", runKeygen},
	"rotate-key":  {"install a new signing key in the Redis key ring", runRotate},
	"keys":        {"print the public key set as JWKS", runKeys},
	"add-ticket":  {"insert a ticket (OUTSIDE, unbound)", runAddTicket},
	"revoke":      {"revoke a ticket", runRevoke},
	"staff-token": {"sign a staff bearer token with STAFF_JWT_SECRET", runStaffToken},
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	_ = godotenv.Load()
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printUsage(out)
		return nil
	}
	cmd, ok := commands[args[0]]
	if !ok {
		printUsage(os.Stderr)
		return fmt.Errorf("unknown command %q", args[0])
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return cmd.run(ctx, args[1:], out)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: gatectl <command> [flags]")
	for _, name := range []string{"keygen", "rotate-key", "keys", "add-ticket", "revoke", "staff-token"} {
		fmt.Fprintf(w, "  %-12s %s\n", name, commands[name].summary)
	}
}

func parse(fs *pflag.FlagSet, args []string) error {
	return fs.Parse(args)
}

func runKeygen(_ context.Context, args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("keygen", pflag.ContinueOnError)
	n := fs.Int("bytes", 32, "secret length in bytes")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *n < 32 {
		return fmt.Errorf("--bytes must be at least 32")
	}
	secret, err := utils.RandomHex(*n)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, secret)
	return nil
}

func runRotate(ctx context.Context, args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("rotate-key", pflag.ContinueOnError)
	prune := fs.Bool("prune", true, "drop keys whose overlap window has passed")
	if err := parse(fs, args); err != nil {
		return err
	}
	cfg := config.LoadTokenConfig()
	rdb, err := config.NewRedisClient(ctx)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer rdb.Close()

	ring := token.NewRedisKeyring(rdb, config.LoadScanConfig().KeyPrefix, cfg.KeyOverlap, nil)
	kid, err := ring.Rotate(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "current key: %s\n", kid)
	if *prune {
		n, err := ring.Prune(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "pruned: %d\n", n)
	}
	return nil
}

func runKeys(ctx context.Context, args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("keys", pflag.ContinueOnError)
	if err := parse(fs, args); err != nil {
		return err
	}
	cfg := config.LoadTokenConfig()
	var keys token.KeyProvider
	if strings.EqualFold(cfg.KeySource, token.KeySourceRedis) {
		rdb, err := config.NewRedisClient(ctx)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer rdb.Close()
		keys = token.NewRedisKeyring(rdb, config.LoadScanConfig().KeyPrefix, cfg.KeyOverlap, nil)
	} else {
		d, err := token.NewDerivedKeys(cfg.MasterSecret, cfg.KeyIDs)
		if err != nil {
			return err
		}
		keys = d
	}
	set, err := keys.PublicKeySet(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(token.ToJWKS(set))
}

func openTickets(ctx context.Context) (*repository.TicketRepo, func(), error) {
	cfg := config.Load()
	db, err := database.Open(ctx, database.Options{
		Driver:  cfg.DBDriver,
		DSN:     cfg.DBDSN,
		User:    cfg.DBUser,
		Pass:    cfg.DBPass,
		Host:    cfg.DBHost,
		Port:    cfg.DBPort,
		Name:    cfg.DBName,
		Migrate: cfg.DBMigrate,
	})
	if err != nil {
		return nil, nil, err
	}
	return repository.NewTicketRepo(db, cfg.DBDriver), func() { _ = db.Close() }, nil
}

func runAddTicket(ctx context.Context, args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("add-ticket", pflag.ContinueOnError)
	id := fs.String("id", "", "ticket id")
	event := fs.String("event", "", "event id")
	seat := fs.String("seat", "", "seat id")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *id == "" || *event == "" {
		return errors.New("--id and --event are required")
	}
	repo, closeDB, err := openTickets(ctx)
	if err != nil {
		return err
	}
	defer closeDB()
	t := model.Ticket{
		ID:           *id,
		EventID:      *event,
		SeatID:       *seat,
		CurrentState: model.StateOutside,
		UpdatedAt:    time.Now().UTC(),
	}
	if err := repo.Create(ctx, t); err != nil {
		return err
	}
	fmt.Fprintf(out, "ticket %s added\n", t.ID)
	return nil
}

func runRevoke(ctx context.Context, args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("revoke", pflag.ContinueOnError)
	id := fs.String("id", "", "ticket id")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *id == "" {
		return errors.New("--id is required")
	}
	repo, closeDB, err := openTickets(ctx)
	if err != nil {
		return err
	}
	defer closeDB()
	if err := repo.Revoke(ctx, *id); err != nil {
		return err
	}
	fmt.Fprintf(out, "ticket %s revoked\n", *id)
	return nil
}

func runStaffToken(_ context.Context, args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("staff-token", pflag.ContinueOnError)
	sub := fs.String("sub", "", "staff user id")
	role := fs.String("role", "STAFF", "STAFF or ADMIN")
	ttl := fs.Duration("ttl", 12*time.Hour, "token lifetime")
	if err := parse(fs, args); err != nil {
		return err
	}
	secret := os.Getenv("STAFF_JWT_SECRET")
	if secret == "" {
		return errors.New("STAFF_JWT_SECRET is not set")
	}
	if *sub == "" {
		return errors.New("--sub is required")
	}
	tok, err := utils.NewStaffToken(secret, *sub, strings.ToUpper(*role), *ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, tok.Token)
	return nil
}
