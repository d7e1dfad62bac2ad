package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/logger"
	"github.com/hackgods/clinic-scheduling/internal/sqlite"
)

type plan struct {
	rooms         int
	stations      int
	stationSeats  int
	professionals int
	patients      int
}

func main() {
	var p plan
	flag.IntVar(&p.rooms, "rooms", 4, "consultation rooms (capacity 1)")
	flag.IntVar(&p.stations, "stations", 2, "therapy stations")
	flag.IntVar(&p.stationSeats, "station-capacity", 3, "simultaneous patients per therapy station")
	flag.IntVar(&p.professionals, "professionals", 12, "doctors and physiotherapists")
	flag.IntVar(&p.patients, "patients", 2000, "patients")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	resources, services := referenceData(p)

	switch cfg.Store {
	case config.StorePostgres:
		pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatal("connect postgres", zap.Error(err))
		}
		defer pool.Close()

		if _, err := db.Migrate(ctx, pool); err != nil {
			log.Fatal("migrate", zap.Error(err))
		}
		if err := seedPostgres(ctx, pool, log, p, resources, services); err != nil {
			log.Fatal("seed postgres", zap.Error(err))
		}

	case config.StoreSQLite:
		sqlDB, err := sqlite.Open(ctx, cfg.SQLiteDSN)
		if err != nil {
			log.Fatal("open sqlite", zap.Error(err))
		}
		defer sqlDB.Close()

		repo := sqlite.NewRepository(sqlDB)
		for _, r := range resources {
			if err := repo.SaveResource(ctx, r); err != nil {
				log.Fatal("seed sqlite", zap.Error(err))
			}
		}
		for _, st := range services {
			if err := repo.SaveServiceType(ctx, st); err != nil {
				log.Fatal("seed sqlite", zap.Error(err))
			}
		}
		log.Info("sqlite store has no people tables, skipping professionals and patients")

	default:
		log.Fatal("seeding is supported for STORE=postgres and STORE=sqlite", zap.String("store", cfg.Store))
	}

	for _, r := range resources {
		log.Info("resource", zap.Stringer("id", r.ID), zap.String("name", r.Name), zap.Int("capacity", r.Capacity))
	}
	for _, st := range services {
		log.Info("service type", zap.Stringer("id", st.ID), zap.String("name", st.Name), zap.Int("minutes", st.DefaultMinutes))
	}
	log.Info("seed complete")
}

// referenceData mirrors the clinic's original configuration: 30 minute
// consultations in rooms and 45 minute sessions on shared stations.
func referenceData(p plan) ([]appointment.Resource, []appointment.ServiceType) {
	var resources []appointment.Resource
	for i := 1; i <= p.rooms; i++ {
		resources = append(resources, appointment.Resource{
			ID: uuid.New(), Name: fmt.Sprintf("Consultorio %d", i),
			Kind: appointment.ResourceConsultationRoom, Capacity: 1, Active: true,
		})
	}
	for i := 1; i <= p.stations; i++ {
		resources = append(resources, appointment.Resource{
			ID: uuid.New(), Name: fmt.Sprintf("Camilla Fisio %d", i),
			Kind: appointment.ResourceTherapyStation, Capacity: p.stationSeats, Active: true,
		})
	}

	services := []appointment.ServiceType{
		{ID: uuid.New(), Name: "Consulta general", ResourceKind: appointment.ResourceConsultationRoom, DefaultMinutes: 30, BasePrice: 80000, Active: true},
		{ID: uuid.New(), Name: "Valoración especializada", ResourceKind: appointment.ResourceConsultationRoom, DefaultMinutes: 45, BasePrice: 120000, Active: true},
		{ID: uuid.New(), Name: "Sesión de fisioterapia", ResourceKind: appointment.ResourceTherapyStation, DefaultMinutes: 45, BasePrice: 70000, Active: true},
	}
	return resources, services
}

func seedPostgres(ctx context.Context, pool *pgxpool.Pool, log *zap.Logger, p plan, resources []appointment.Resource, services []appointment.ServiceType) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, r := range resources {
		if _, err := tx.Exec(ctx, `
			INSERT INTO resources (id, name, kind, capacity, active, created_at)
			VALUES ($1, $2, $3, $4, $5, now())
		`, r.ID, r.Name, r.Kind, r.Capacity, r.Active); err != nil {
			return fmt.Errorf("insert resource: %w", err)
		}
	}
	for _, st := range services {
		if _, err := tx.Exec(ctx, `
			INSERT INTO service_types (id, name, resource_kind, default_minutes, base_price, active)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, st.ID, st.Name, st.ResourceKind, st.DefaultMinutes, st.BasePrice, st.Active); err != nil {
			return fmt.Errorf("insert service type: %w", err)
		}
	}

	for i := 0; i < p.professionals; i++ {
		role := appointment.RoleDoctor
		if i%3 == 2 {
			role = appointment.RolePhysiotherapist
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO professionals (id, name, role, created_at)
			VALUES ($1, $2, $3, now())
		`, uuid.New(), gofakeit.Name(), role); err != nil {
			return fmt.Errorf("insert professional: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	log.Info("reference data seeded",
		zap.Int("resources", len(resources)),
		zap.Int("service_types", len(services)),
		zap.Int("professionals", p.professionals),
	)

	return seedPatients(ctx, pool, log, p.patients)
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, log *zap.Logger, count int) error {
	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := min(offset+batchSize, count)

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, created_at)
				VALUES ($1, $2, $3, now())
			`, uuid.New(), gofakeit.Name(), gofakeit.Email())
			if err != nil {
				_ = tx.Rollback(ctx)
				return fmt.Errorf("insert patient: %w", err)
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}
		log.Info("patients seeded", zap.Int("done", end), zap.Int("total", count))
	}
	return nil
}
