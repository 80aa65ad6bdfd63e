package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"example.com/calmpulse/internal/calendar"
	"example.com/calmpulse/internal/config"
	"example.com/calmpulse/internal/domain"
	persistence "example.com/calmpulse/internal/persistence/postgres"
)

var (
	seedAdjectives = []string{"Calm", "Quiet", "Gentle", "Still", "Soft", "Bright", "Slow", "Warm"}
	seedAnimals    = []string{"Owl", "Heron", "Otter", "Fox", "Lynx", "Wren", "Koi", "Moth"}
)

// seedTarget is the slice of the domain service the seeder writes through.
type seedTarget interface {
	TargetDuration() int
	UpdateProfile(ctx context.Context, write domain.ProfileWrite) (*domain.Profile, error)
	CompleteSession(ctx context.Context, input domain.CompleteSessionInput) (*domain.CompletionResult, error)
}

// seedOpener connects a seedTarget; the returned func releases it.
type seedOpener func(ctx context.Context) (seedTarget, func(), error)

type seedFlags struct {
	count       int
	intervalMin time.Duration
	intervalMax time.Duration
}

// NewSeedCommand creates the seed command
func NewSeedCommand(open seedOpener) *cobra.Command {
	flags := &seedFlags{}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Write fake completions into the local database",
		Long: `Write full-length completions for freshly generated users, pausing a random interval between
each one so the community feed fills up the way it would with real traffic.

Connection settings come from the usual calmpulse configuration (.env, CALMPULSE_CONFIG, environment).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.count <= 0 {
				return fmt.Errorf("--count must be > 0")
			}
			if flags.intervalMin < 0 || flags.intervalMax < flags.intervalMin {
				return fmt.Errorf("invalid interval range [%s, %s]", flags.intervalMin, flags.intervalMax)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			target, release, err := open(ctx)
			if err != nil {
				return err
			}
			defer release()

			return runSeed(ctx, cmd, target, flags)
		},
	}

	cmd.Flags().IntVarP(&flags.count, "count", "n", 10, "Number of completions to write")
	cmd.Flags().DurationVar(&flags.intervalMin, "interval-min", 10*time.Second, "Shortest pause between completions")
	cmd.Flags().DurationVar(&flags.intervalMax, "interval-max", 30*time.Second, "Longest pause between completions")
	return cmd
}

func runSeed(ctx context.Context, cmd *cobra.Command, target seedTarget, flags *seedFlags) error {
	out := cmd.OutOrStdout()
	for i := 0; i < flags.count; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(seedPause(flags.intervalMin, flags.intervalMax)):
			}
		}

		userID := uuid.NewString()
		nickname := seedAdjectives[rand.IntN(len(seedAdjectives))] + " " + seedAnimals[rand.IntN(len(seedAnimals))]
		if _, err := target.UpdateProfile(ctx, domain.ProfileWrite{UserID: userID, Nickname: &nickname}); err != nil {
			return fmt.Errorf("seed profile %d: %w", i+1, err)
		}

		result, err := target.CompleteSession(ctx, domain.CompleteSessionInput{
			UserID:     userID,
			ElapsedSec: target.TargetDuration(),
		})
		if err != nil {
			return fmt.Errorf("seed completion %d: %w", i+1, err)
		}
		fmt.Fprintf(out, "[%d/%d] %s completed %s as %q\n", i+1, flags.count, userID, result.Session.Day, result.PublicName)
	}
	return nil
}

func seedPause(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + rand.N(hi-lo)
}

// openSeedTarget wires a domain service on top of the configured Postgres database.
func openSeedTarget(ctx context.Context) (seedTarget, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	clock, err := calendar.LoadClock(cfg.TimeZone)
	if err != nil {
		return nil, nil, err
	}
	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	repo := persistence.NewRepository(pool, persistence.WithTopic(cfg.SessionTopic))
	service := domain.NewService(repo, repo, repo, clock,
		domain.WithTargetDuration(cfg.TargetDurationSec),
		domain.WithFloor(cfg.DataFloor),
	)
	return service, pool.Close, nil
}
