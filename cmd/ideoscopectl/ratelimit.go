package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/ideoscope/internal/ratelimit"
)

func (a *app) newRateLimitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ratelimit",
		Short: "Inspect and reset rate limits shared through Redis.",
	}
	cmd.AddCommand(a.newRateLimitResetCmd())
	return cmd
}

func (a *app) newRateLimitResetCmd() *cobra.Command {
	var (
		ip     string
		userID string
		all    bool
	)

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Drop rate limit keys for an IP, a user or everyone.",
		Long: `Delete rate limit keys from Redis. Exactly one of --ip, --user or --all
is required. Limits kept in memory by a server without Redis cannot be
reset from here.`,
		Example: `  ideoscopectl ratelimit reset --ip 203.0.113.7
  ideoscopectl ratelimit reset --user 7d0c3a1e-...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if countSet(ip != "", userID != "", all) != 1 {
				return errors.New("exactly one of --ip, --user or --all is required")
			}
			if a.cfg.Redis.Addr == "" {
				return errors.New("redis.addr is not configured; in-memory limits live in the server process")
			}

			ctx := cmd.Context()
			client, err := ratelimit.NewRedisClient(ctx, ratelimit.RedisConfig{
				Addr:     a.cfg.Redis.Addr,
				Password: a.cfg.Redis.Password,
				DB:       a.cfg.Redis.DB,
			})
			if err != nil {
				return fmt.Errorf("failed to connect to redis: %w", err)
			}
			defer func() { _ = client.Close() }()

			limiter := ratelimit.NewRateLimiter(client, ratelimit.Config{}, nil)
			defer limiter.Close()

			switch {
			case ip != "":
				err = limiter.InvalidateIP(ctx, ip)
			case userID != "":
				err = limiter.InvalidateUser(ctx, userID)
			default:
				err = limiter.InvalidateAll(ctx)
			}
			if err != nil {
				return err
			}

			scope := "all"
			switch {
			case ip != "":
				scope = "ip " + ip
			case userID != "":
				scope = "user " + userID
			}
			a.printf("✅ Reset rate limits for %s\n", scope)
			return nil
		},
	}

	cmd.Flags().StringVar(&ip, "ip", "", "client IP whose limits to drop")
	cmd.Flags().StringVar(&userID, "user", "", "session user id whose limits to drop")
	cmd.Flags().BoolVar(&all, "all", false, "drop every rate limit key")
	return cmd
}

func countSet(flags ...bool) int {
	n := 0
	for _, f := range flags {
		if f {
			n++
		}
	}
	return n
}
