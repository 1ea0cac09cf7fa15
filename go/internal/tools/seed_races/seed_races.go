// Command seed_races loads demo races from a JSON snapshot into Postgres
// through the race app, so the outbox receives the same events real traffic
// would produce.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"golang.org/x/crypto/bcrypt"

	"github.com/mcdev12/dailies/go/internal/auth"
	"github.com/mcdev12/dailies/go/internal/dbconfig"
	"github.com/mcdev12/dailies/go/internal/race"
	"github.com/mcdev12/dailies/go/internal/race/outbox"
)

// SeedRace mirrors the JSON snapshot.
type SeedRace struct {
	Name     string   `json:"name"`
	Host     string   `json:"host"`
	Opponent string   `json:"opponent"`
	Games    []string `json:"games"`
	Start    bool     `json:"start"`
	// Results holds elapsed seconds per game for host then opponent; a
	// negative value records a skip.
	Results map[string][]int `json:"results"`
}

func main() {
	path := "go/internal/assets/races.json"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	// 1) Load the JSON snapshot
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read JSON: %v\n", err)
		os.Exit(1)
	}
	var seeds []SeedRace
	if err := json.Unmarshal(data, &seeds); err != nil {
		fmt.Fprintf(os.Stderr, "unmarshal JSON: %v\n", err)
		os.Exit(1)
	}

	// 2) Connect using shared dbconfig
	ctx := context.Background()
	poolCfg, err := dbconfig.NewConfigFromEnv().PoolConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid database config: %v\n", err)
		os.Exit(1)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	repo := race.NewPostgresRepository(pool, outbox.NotifyChannel, 5)
	if err := repo.Migrate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}

	// Results are stamped as if the race started an hour ago.
	clock := clockwork.NewFakeClockAt(time.Now().Add(-time.Hour))
	app := race.NewApp(repo, auth.NewGuestTokens(bcrypt.DefaultCost), clock, race.DefaultConfig())

	// 3) Create and count
	var created, errs int
	for _, s := range seeds {
		id, err := seed(ctx, app, clock, s)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error seeding race %q: %v\n", s.Name, err)
			errs++
			continue
		}
		fmt.Printf("seeded race %q as %s\n", s.Name, id)
		created++
	}

	fmt.Printf("Seeding complete: total=%d, created=%d, errors=%d\n", len(seeds), created, errs)
	if errs > 0 {
		os.Exit(1)
	}
}

func seed(ctx context.Context, app *race.App, clock *clockwork.FakeClock, s SeedRace) (uuid.UUID, error) {
	host, opponent := race.Caller{UserID: s.Host}, race.Caller{UserID: s.Opponent}

	res, err := app.CreateRace(ctx, host, race.CreateRaceRequest{Name: s.Name, GameIDs: s.Games})
	if err != nil {
		return uuid.Nil, err
	}
	r := res.Race
	if s.Opponent != "" {
		if _, err := app.JoinRace(ctx, opponent, race.JoinRaceRequest{RaceID: r.ID}); err != nil {
			return r.ID, err
		}
	}
	if !s.Start {
		return r.ID, nil
	}
	if _, err := app.StartRace(ctx, host, r.ID); err != nil {
		return r.ID, err
	}

	clock.Advance(30 * time.Minute)
	for _, slot := range r.Slots {
		times := s.Results[slot.GameID]
		for i, caller := range []race.Caller{host, opponent} {
			if i >= len(times) {
				break
			}
			req := race.RecordCompletionRequest{RaceID: r.ID, SlotID: slot.ID, ElapsedSeconds: times[i]}
			if times[i] < 0 {
				req.Skipped = true
				req.ElapsedSeconds = previousTotal(s, slot.Order, i)
			}
			if _, err := app.RecordCompletion(ctx, caller, req); err != nil {
				return r.ID, fmt.Errorf("record %s for %s: %w", slot.GameID, caller.UserID, err)
			}
		}
	}
	return r.ID, nil
}

// previousTotal is the last non-skip elapsed time before slot order for the
// participant at index i, so skips keep the cumulative time monotonic.
func previousTotal(s SeedRace, order, i int) int {
	total := 0
	for _, game := range s.Games[:order] {
		if times := s.Results[game]; i < len(times) && times[i] > total {
			total = times[i]
		}
	}
	return total
}
