package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/lock"
	"github.com/hackgods/clinic-scheduling/internal/logger"
)

// DataPool holds the ids workers draw from.
type DataPool struct {
	Patients      []uuid.UUID
	Professionals []uuid.UUID
	Resources     []appointment.Resource
	Services      map[appointment.ResourceKind][]appointment.ServiceType

	mu           sync.RWMutex
	appointments []uuid.UUID
}

func (dp *DataPool) AddAppointment(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, id)
}

func (dp *DataPool) RandomAppointment(rng *rand.Rand) (uuid.UUID, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return uuid.Nil, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Rejected  int64
	Error     int64
	mu        sync.Mutex
	Latencies []time.Duration
}

func (om *OperationMetrics) Record(latency time.Duration, status int, err error) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case err == nil && status < 300:
		atomic.AddInt64(&om.Success, 1)
	case err == nil && (status == http.StatusConflict || status == http.StatusUnprocessableEntity):
		atomic.AddInt64(&om.Rejected, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Percentiles() (p50, p95, max time.Duration) {
	om.mu.Lock()
	latencies := slices.Clone(om.Latencies)
	om.mu.Unlock()

	if len(latencies) == 0 {
		return 0, 0, 0
	}
	slices.Sort(latencies)
	at := func(pct int) time.Duration {
		return latencies[min(len(latencies)*pct/100, len(latencies)-1)]
	}
	return at(50), at(95), latencies[len(latencies)-1]
}

type Simulator struct {
	config  config.Simulation
	pool    *DataPool
	client  *http.Client
	hours   *appointment.WeeklyHours
	booking OperationMetrics
	moving  OperationMetrics
	cancel  OperationMetrics
}

func main() {
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

	if cfg.Store != config.StorePostgres {
		log.Fatal("the simulator reads fixtures from Postgres, set STORE=postgres")
	}
	hours, err := cfg.WeeklyHours()
	if err != nil {
		log.Fatal("operating hours", zap.Error(err))
	}

	simCfg, err := config.LoadSimulation(cfg.Location)
	if err != nil {
		log.Fatal("invalid simulator config", zap.Error(err))
	}
	log.Info("simulator starting",
		zap.String("api", simCfg.APIBaseURL),
		zap.Duration("duration", simCfg.Duration),
		zap.Int("workers", simCfg.Workers),
		zap.String("day", simCfg.Day.Format(time.DateOnly)),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("connect postgres", zap.Error(err))
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, simCfg)
	if err != nil {
		log.Fatal("load data pool", zap.Error(err))
	}
	log.Info("fixtures loaded",
		zap.Int("patients", len(dataPool.Patients)),
		zap.Int("professionals", len(dataPool.Professionals)),
		zap.Int("resources", len(dataPool.Resources)),
	)

	sim := &Simulator{
		config: simCfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
		hours:  hours,
	}
	sim.Run(log)
	sim.PrintReport()

	// Audit straight from storage: whatever the API accepted must respect
	// capacity and professional exclusivity.
	auditor := appointment.NewScheduler(appointment.NewPgRepository(pgPool), lock.NewKeyed(time.Second), hours, log, appointment.Options{})
	dayStart := simCfg.Day
	violations, err := auditor.AuditCapacity(context.Background(), dayStart, dayStart.AddDate(0, 0, 1))
	if err != nil {
		log.Fatal("audit", zap.Error(err))
	}
	if len(violations) > 0 {
		for _, v := range violations {
			log.Error("violation", zap.String("kind", string(v.Kind)), zap.Stringer("subject_id", v.SubjectID),
				zap.Stringer("span", v.Span), zap.Int("peak", v.Peak), zap.Int("limit", v.Limit))
		}
		log.Fatal("scheduling invariants violated", zap.Int("violations", len(violations)))
	}
	log.Info("audit clean, no capacity or exclusivity violations")
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg config.Simulation) (*DataPool, error) {
	dp := &DataPool{Services: map[appointment.ResourceKind][]appointment.ServiceType{}}

	var err error
	if dp.Patients, err = loadIDs(ctx, pool, `SELECT id FROM patients LIMIT $1`, cfg.PatientLimit); err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	if dp.Professionals, err = loadIDs(ctx, pool, `SELECT id FROM professionals WHERE role IN ('doctor', 'physiotherapist')`); err != nil {
		return nil, fmt.Errorf("load professionals: %w", err)
	}

	repo := appointment.NewPgRepository(pool)
	resources, err := repo.ListResources(ctx)
	if err != nil {
		return nil, fmt.Errorf("load resources: %w", err)
	}
	for _, r := range resources {
		if r.Active {
			dp.Resources = append(dp.Resources, r)
		}
	}

	rows, err := pool.Query(ctx, `SELECT id, name, resource_kind, default_minutes FROM service_types WHERE active`)
	if err != nil {
		return nil, fmt.Errorf("load service types: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var st appointment.ServiceType
		if err := rows.Scan(&st.ID, &st.Name, &st.ResourceKind, &st.DefaultMinutes); err != nil {
			return nil, err
		}
		dp.Services[st.ResourceKind] = append(dp.Services[st.ResourceKind], st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	switch {
	case len(dp.Patients) == 0:
		return nil, fmt.Errorf("no patients loaded, run cmd/seed first")
	case len(dp.Professionals) == 0:
		return nil, fmt.Errorf("no professionals loaded")
	case len(dp.Resources) == 0:
		return nil, fmt.Errorf("no active resources loaded")
	}
	return dp, nil
}

func loadIDs(ctx context.Context, pool *pgxpool.Pool, query string, args ...any) ([]uuid.UUID, error) {
	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Simulator) Run(log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}
	wg.Wait()
	log.Info("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))
	actor := uuid.New()

	for ctx.Err() == nil {
		r := rng.Float64()
		switch {
		case r < s.config.BookingRatio:
			s.doBooking(ctx, rng, actor)
		case r < s.config.BookingRatio+s.config.RescheduleRatio:
			s.doReschedule(ctx, rng, actor)
		default:
			s.doCancel(ctx, rng, actor)
		}
	}
}

// randomStart picks a quarter-hour start inside one of the day's open
// windows, leaving room for minutes before the window closes.
func (s *Simulator) randomStart(ctx context.Context, rng *rand.Rand, minutes int) (time.Time, bool) {
	windows, err := s.hours.OpenWindows(ctx, s.config.Day)
	if err != nil || len(windows) == 0 {
		return time.Time{}, false
	}
	w := windows[rng.Intn(len(windows))]
	slots := int(w.Duration()/(15*time.Minute)) - (minutes+14)/15
	if slots <= 0 {
		return time.Time{}, false
	}
	return w.Start.Add(time.Duration(rng.Intn(slots+1)) * 15 * time.Minute), true
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand, actor uuid.UUID) {
	resource := s.pool.Resources[rng.Intn(len(s.pool.Resources))]
	services := s.pool.Services[resource.Kind]
	if len(services) == 0 {
		return
	}
	service := services[rng.Intn(len(services))]
	start, ok := s.randomStart(ctx, rng, service.DefaultMinutes)
	if !ok {
		return
	}

	body := map[string]any{
		"patient_id":      s.pool.Patients[rng.Intn(len(s.pool.Patients))].String(),
		"professional_id": s.pool.Professionals[rng.Intn(len(s.pool.Professionals))].String(),
		"service_type_id": service.ID.String(),
		"resource_id":     resource.ID.String(),
		"start":           start.Format(time.RFC3339),
	}

	var created struct {
		ID uuid.UUID `json:"id"`
	}
	status, latency, err := s.post(ctx, "/appointments", actor, body, &created)
	s.booking.Record(latency, status, err)
	if err == nil && status == http.StatusCreated && created.ID != uuid.Nil {
		s.pool.AddAppointment(created.ID)
	}
}

func (s *Simulator) doReschedule(ctx context.Context, rng *rand.Rand, actor uuid.UUID) {
	id, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}
	start, ok := s.randomStart(ctx, rng, 45)
	if !ok {
		return
	}

	status, latency, err := s.post(ctx, "/appointments/"+id.String()+"/reschedule", actor,
		map[string]any{"start": start.Format(time.RFC3339)}, nil)
	s.moving.Record(latency, status, err)
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand, actor uuid.UUID) {
	id, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}
	status, latency, err := s.post(ctx, "/appointments/"+id.String()+"/cancel", actor, nil, nil)
	s.cancel.Record(latency, status, err)
}

func (s *Simulator) post(ctx context.Context, path string, actor uuid.UUID, body, out any) (int, time.Duration, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return 0, 0, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIBaseURL+path, &buf)
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", actor.String())

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return 0, latency, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		_ = json.NewDecoder(resp.Body).Decode(out)
	}
	return resp.StatusCode, latency, nil
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Day: %s  Duration: %s  Workers: %d\n\n", s.config.Day.Format(time.DateOnly), s.config.Duration, s.config.Workers)

	printOperationReport("Create", &s.booking)
	printOperationReport("Reschedule", &s.moving)
	printOperationReport("Cancel", &s.cancel)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}
	pct := func(n int64) float64 { return float64(n) / float64(total) * 100 }

	success := atomic.LoadInt64(&om.Success)
	rejected := atomic.LoadInt64(&om.Rejected)
	failed := atomic.LoadInt64(&om.Error)
	p50, p95, max := om.Percentiles()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Accepted: %d (%.1f%%)\n", success, pct(success))
	fmt.Printf("  Rejected: %d (%.1f%%)\n", rejected, pct(rejected))
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, pct(failed))
	}
	fmt.Printf("  Latency: p50=%s p95=%s max=%s\n\n",
		p50.Round(time.Millisecond), p95.Round(time.Millisecond), max.Round(time.Millisecond))
}
