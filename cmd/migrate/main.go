// Command migrate manages the SQL schema of the evaluation store.
//
//	migrate [-driver sqlite|postgres] [-dsn DSN] up|status|down [version]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/okian/verdict/internal/adapters/sqldb"
	"github.com/okian/verdict/pkg/logger"
)

const commandTimeout = 2 * time.Minute

var errUsage = errors.New("usage: migrate [-driver sqlite|postgres] [-dsn DSN] up|status|down [version]")

func main() {
	_ = godotenv.Load()

	var (
		driverName = flag.String("driver", envOr("VERDICT_STORAGE_DRIVER", "sqlite"), "Storage driver")
		dsn        = flag.String("dsn", os.Getenv("VERDICT_STORAGE_DSN"), "Database DSN")
	)
	flag.Parse()

	if err := logger.Init(logger.WithFormat("text")); err != nil {
		_, _ = os.Stderr.WriteString("migrate: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if err := run(ctx, *driverName, *dsn, flag.Args()); err != nil {
		logger.Get().Error(ctx, "migration failed", logger.Error(err))
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func run(ctx context.Context, driverName, dsn string, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	driver, err := sqldb.ParseDriver(driverName)
	if err != nil {
		return err
	}
	db, err := sqldb.Open(ctx, driver, dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	m, err := sqldb.NewMigrator(db, driver)
	if err != nil {
		return err
	}
	log := logger.Get()

	switch args[0] {
	case "up":
		applied, err := m.Up(ctx)
		if err != nil {
			return err
		}
		log.Info(ctx, "migrations applied", logger.Int("count", len(applied)), logger.Any("versions", applied))
	case "down":
		var target int64
		if len(args) > 1 {
			target, err = strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("%w: bad version %q", errUsage, args[1])
			}
		}
		if err := m.Down(ctx, target); err != nil {
			return err
		}
		log.Info(ctx, "migrations rolled back", logger.Int64("target", target))
	case "status":
		statuses, err := m.Status(ctx)
		if err != nil {
			return err
		}
		for _, s := range statuses {
			state := "pending"
			if s.Applied {
				state = "applied"
			}
			fmt.Printf("%05d  %-8s %s\n", s.Version, state, s.Path)
		}
	default:
		return errUsage
	}
	return nil
}
