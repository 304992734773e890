package main

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"smart-stick/tracker/internal/auth"
	"smart-stick/tracker/internal/config"
	"smart-stick/tracker/internal/domain"
	"smart-stick/tracker/internal/store"
)

const (
	demoStick = "STICK-DEMO-001"
	demoUser  = "demo-user"
	walkSteps = 120
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file, using system environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Config: %v", err)
	}

	ctx := context.Background()

	fmt.Println("Connecting to PostgreSQL and Redis...")
	pg, err := store.NewPostgresStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Connection failed: %v\n\nRun first: go run ./scripts/init_db", err)
	}
	defer pg.Close()

	rdb, err := store.NewRedisStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Connection failed: %v\n\nMake sure Redis is running:\n  docker-compose up -d redis", err)
	}
	defer rdb.Close()
	fmt.Println("✓ Connected")

	step1_owner(ctx, pg)
	latest := step2_walk(ctx, pg)
	step3_state(ctx, rdb, latest)
	step4_token(cfg)

	fmt.Println("\n✅ Demo data seeded successfully")
	fmt.Println("   Run next: go run ./cmd/tracker serve")
}

func step1_owner(ctx context.Context, pg *store.PostgresStore) {
	fmt.Println("\n── Step 1: Demo owner ──────────────────────────")

	owner := domain.DeviceOwner{
		DeviceID: demoStick,
		Username: "Demo Owner",
		Email:    "owner@example.com",
		Timezone: "Asia/Kolkata",
	}
	if err := pg.UpsertOwner(ctx, owner); err != nil {
		log.Fatalf("Failed to upsert owner: %v", err)
	}
	fmt.Printf("  ✓ %-20s → %s (%s)\n", owner.DeviceID, owner.Email, owner.Timezone)
}

// step2_walk stores a short loop around a park, one report every 10s ending
// now. The last report is returned for the state cache.
func step2_walk(ctx context.Context, pg *store.PostgresStore) domain.TelemetryReport {
	fmt.Println("\n── Step 2: Sample walk ─────────────────────────")

	const (
		centerLat = 12.9763
		centerLng = 77.5929
		radius    = 0.0015
	)

	start := time.Now().UTC().Add(-walkSteps * 10 * time.Second)
	reports := make([]domain.TelemetryReport, 0, walkSteps)
	for i := 0; i < walkSteps; i++ {
		angle := 2 * math.Pi * float64(i) / walkSteps
		battery := 100 - float64(i)/4
		reports = append(reports, domain.TelemetryReport{
			ID:       uuid.NewString(),
			DeviceID: demoStick,
			Position: domain.Position{
				Latitude:  centerLat + radius*math.Sin(angle),
				Longitude: centerLng + radius*math.Cos(angle),
			},
			BatteryLevel:     &battery,
			ObstacleDetected: i%17 == 0,
			RecordedAt:       start.Add(time.Duration(i) * 10 * time.Second),
		})
	}

	if err := pg.BatchInsert(ctx, reports); err != nil {
		log.Fatalf("Failed to insert reports: %v", err)
	}
	fmt.Printf("  ✓ %d reports for %s\n", len(reports), demoStick)
	return reports[len(reports)-1]
}

func step3_state(ctx context.Context, rdb *store.RedisStore, latest domain.TelemetryReport) {
	fmt.Println("\n── Step 3: State cache ─────────────────────────")

	if err := rdb.PipelineStateUpdate(ctx, []domain.TelemetryReport{latest}); err != nil {
		log.Fatalf("Failed to cache state: %v", err)
	}
	fmt.Printf("  ✓ stick:%s:state\n", demoStick)
}

func step4_token(cfg *config.Config) {
	fmt.Println("\n── Step 4: Companion token ─────────────────────")

	token, expiresAt, err := auth.NewTokenProvider(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTExpiresIn).Issue(demoUser, demoStick)
	if err != nil {
		log.Fatalf("Failed to issue token: %v", err)
	}
	fmt.Printf("  ✓ expires %s\n", expiresAt.Format(time.RFC3339))
	fmt.Printf("    %s\n", token)
}
