// Command devtool supports local runs of the registry: it mints bearer tokens for test principals
// and advances the Redis ledger height that the API reads registration heights from.
//
//	devtool token --principal alice --ttl 24h
//	devtool advance --blocks 10
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/pflag"

	"docregistry/internal/config"
	"docregistry/internal/height"
	"docregistry/internal/identity"
	"docregistry/internal/model"
)

func main() {
	if err := run(os.Args[1:], config.Load(), os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "devtool:", err)
		os.Exit(1)
	}
}

func run(args []string, cfg *config.AppConfig, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: devtool <token|advance> [flags]")
	}
	switch args[0] {
	case "token":
		return runToken(args[1:], cfg, out)
	case "advance":
		return runAdvance(args[1:], cfg, out)
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func runToken(args []string, cfg *config.AppConfig, out io.Writer) error {
	fs := pflag.NewFlagSet("token", pflag.ContinueOnError)
	principal := fs.StringP("principal", "p", "", "principal to put in the token subject")
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *principal == "" {
		return fmt.Errorf("--principal is required")
	}

	issuer, err := identity.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	if err != nil {
		return err
	}
	token, err := issuer.Issue(model.Principal(*principal), *ttl)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, token)
	return err
}

func runAdvance(args []string, cfg *config.AppConfig, out io.Writer) error {
	fs := pflag.NewFlagSet("advance", pflag.ContinueOnError)
	blocks := fs.UintP("blocks", "n", 1, "number of blocks to advance")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if cfg.Redis.Host == "" {
		return fmt.Errorf("REDIS_HOST is required")
	}

	client := height.NewRedisClient(cfg.Redis)
	defer client.Close()
	provider := height.NewRedisProvider(client, cfg.Redis.HeightKey)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var h uint64
	for i := uint(0); i < *blocks; i++ {
		var err error
		if h, err = provider.Advance(ctx); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(out, "height %d\n", h)
	return err
}
