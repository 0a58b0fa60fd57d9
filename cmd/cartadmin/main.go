// Command cartadmin runs maintenance tasks against the cart database.
//
//	cartadmin migrate [up|status]
//	cartadmin purge-tokens
//	cartadmin clean-carts [-exclude-user <uuid>]
//	cartadmin add-product -name <name> -slug <slug> -price <amount> [-stock <n>] [-currency <code>]
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/dwikikusuma/shoping-cart/internal/cart/app"
	cartpg "github.com/dwikikusuma/shoping-cart/internal/cart/infra/postgres"
	catalogapp "github.com/dwikikusuma/shoping-cart/internal/catalog/app"
	cpg "github.com/dwikikusuma/shoping-cart/internal/catalog/infra/postgres"
	"github.com/dwikikusuma/shoping-cart/pkg/config"
	"github.com/dwikikusuma/shoping-cart/pkg/logger"
	"github.com/dwikikusuma/shoping-cart/pkg/postgres"
	"github.com/dwikikusuma/shoping-cart/pkg/shutdown"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

func main() {
	cfg := config.Load()
	log := logger.New(logger.Options{Service: "cartadmin", Env: cfg.AppEnv, Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	if err := run(ctx, os.Args[1:], cfg, log, os.Stdout); err != nil {
		log.Error("cartadmin failed", slog.Any("err", err))
		os.Exit(1)
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: cartadmin <migrate [up|status] | purge-tokens | clean-carts [-exclude-user id] | add-product ...>")
}

func run(ctx context.Context, args []string, cfg config.Config, log *slog.Logger, out io.Writer) error {
	if len(args) == 0 {
		usage(out)
		return fmt.Errorf("missing command")
	}
	cmd, args := args[0], args[1:]

	opener := func() (*pgxpool.Pool, error) {
		return postgres.Open(ctx, postgres.Config{
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			User:     cfg.Postgres.User,
			Pass:     cfg.Postgres.Pass,
			DB:       cfg.Postgres.DB,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: 2,
		})
	}

	switch cmd {
	case "migrate":
		return withPool(opener, func(pool *pgxpool.Pool) error { return migrate(ctx, pool, args, out) })
	case "purge-tokens":
		return withPool(opener, func(pool *pgxpool.Pool) error {
			n, err := app.NewJanitor(cartpg.NewCartRepo(pool), log).PurgeTokens(ctx)
			if err == nil {
				fmt.Fprintf(out, "purged %d expired cart tokens\n", n)
			}
			return err
		})
	case "clean-carts":
		keep, err := parseCleanCarts(args)
		if err != nil {
			return err
		}
		return withPool(opener, func(pool *pgxpool.Pool) error {
			n, err := app.NewJanitor(cartpg.NewCartRepo(pool), log).CleanCarts(ctx, keep)
			if err == nil {
				fmt.Fprintf(out, "deleted %d carts\n", n)
			}
			return err
		})
	case "add-product":
		in, err := parseAddProduct(args)
		if err != nil {
			return err
		}
		return withPool(opener, func(pool *pgxpool.Pool) error {
			p, err := catalogapp.NewService(cpg.NewProductRepo(pool)).CreateProduct(ctx, in)
			if err == nil {
				fmt.Fprintf(out, "created product %s (%s)\n", p.ID, p.Slug)
			}
			return err
		})
	default:
		usage(out)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func withPool(open func() (*pgxpool.Pool, error), fn func(*pgxpool.Pool) error) error {
	pool, err := open()
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(pool)
}

func migrate(ctx context.Context, pool *pgxpool.Pool, args []string, out io.Writer) error {
	action := "up"
	if len(args) > 0 {
		action = args[0]
	}

	switch action {
	case "up":
		if err := postgres.Migrate(ctx, pool, cartpg.Migrations()); err != nil {
			return err
		}
		fmt.Fprintln(out, "migrations applied")
		return nil
	case "status":
		statuses, err := postgres.Status(ctx, pool, cartpg.Migrations())
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "VERSION\tAPPLIED\tFILE")
		for _, s := range statuses {
			fmt.Fprintf(tw, "%d\t%t\t%s\n", s.Version, s.Applied, s.Path)
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unknown migrate action %q", action)
	}
}

func parseCleanCarts(args []string) (app.Auth, error) {
	fs := flag.NewFlagSet("clean-carts", flag.ContinueOnError)
	exclude := fs.String("exclude-user", "", "keep the cart of this user id")
	if err := fs.Parse(args); err != nil {
		return app.Auth{}, err
	}
	if *exclude == "" {
		return app.Anonymous(), nil
	}
	id, err := uuid.Parse(*exclude)
	if err != nil {
		return app.Auth{}, fmt.Errorf("exclude-user: %w", err)
	}
	return app.Authenticated(id), nil
}

func parseAddProduct(args []string) (catalogapp.NewProduct, error) {
	fs := flag.NewFlagSet("add-product", flag.ContinueOnError)
	name := fs.String("name", "", "product name")
	slug := fs.String("slug", "", "url slug")
	desc := fs.String("description", "", "description")
	price := fs.String("price", "", "base price, e.g. 19.99")
	currency := fs.String("currency", "USD", "ISO currency code")
	stock := fs.Int("stock", 0, "stock quantity")
	if err := fs.Parse(args); err != nil {
		return catalogapp.NewProduct{}, err
	}

	amount, err := decimal.NewFromString(*price)
	if err != nil {
		return catalogapp.NewProduct{}, fmt.Errorf("price: %w", err)
	}
	return catalogapp.NewProduct{
		Name:        *name,
		Slug:        *slug,
		Description: *desc,
		Currency:    *currency,
		Price:       amount,
		Stock:       *stock,
	}, nil
}
