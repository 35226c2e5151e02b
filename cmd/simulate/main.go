package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/appointment-waitlist/internal/config"
	"github.com/clinicdesk/appointment-waitlist/internal/db"
)

type SimConfig struct {
	APIBaseURL    string
	Duration      time.Duration
	Workers       int
	BookingRatio  float64
	WaitlistRatio float64
	PromoteRatio  float64
	ReadRatio     float64
	PatientLimit  int
	DoctorLimit   int
	Days          int
	Postgres      db.PoolConfig
}

// DataPool holds the ids and identities workers draw from.
type DataPool struct {
	Patients     []string // emails sent as X-User-Email
	Doctors      []uuid.UUID
	mu           sync.RWMutex
	appointments []uuid.UUID
}

func (dp *DataPool) AddAppointment(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, id)
}

func (dp *DataPool) GetRandomAppointment(rng *rand.Rand) (uuid.UUID, bool) {
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
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)

	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]

	if len(latencies) > 0 {
		p50Idx := len(latencies) * 50 / 100
		if p50Idx >= len(latencies) {
			p50Idx = len(latencies) - 1
		}
		p50 = latencies[p50Idx]

		p95Idx := len(latencies) * 95 / 100
		if p95Idx >= len(latencies) {
			p95Idx = len(latencies) - 1
		}
		p95 = latencies[p95Idx]
	}

	return avg, min, max, p50, p95
}

type Metrics struct {
	Booking     OperationMetrics
	Waitlisted  OperationMetrics
	WaitlistAdd OperationMetrics
	Promote     OperationMetrics
	ReadByID    OperationMetrics
	Slots       OperationMetrics
	Queue       OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
	log     zerolog.Logger
	start   time.Time
}

func main() {
	cfg, log := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	log.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Float64("booking", cfg.BookingRatio).
		Float64("waitlist", cfg.WaitlistRatio).
		Float64("promote", cfg.PromoteRatio).
		Float64("read", cfg.ReadRatio).
		Msg("simulator starting")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.Postgres)
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("load data pool")
	}

	log.Info().Int("patients", len(dataPool.Patients)).Int("doctors", len(dataPool.Doctors)).Msg("data pool loaded")

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		log: log,
		// bookings land on the days after tomorrow
		start: time.Now().UTC().Truncate(24 * time.Hour).Add(48 * time.Hour),
	}

	sim.Run()
	sim.PrintReport()
}

func loadConfig() (SimConfig, zerolog.Logger) {
	baseCfg, err := config.Load()
	if err != nil {
		fatalLog := zerolog.New(os.Stderr)
		fatalLog.Fatal().Err(err).Msg("failed to load base config")
	}

	cfg := SimConfig{
		APIBaseURL:    getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:      getDuration("SIM_DURATION", 30*time.Second),
		Workers:       getInt("SIM_WORKERS", 10),
		BookingRatio:  getFloat("SIM_BOOKING_RATIO", 0.4),
		WaitlistRatio: getFloat("SIM_WAITLIST_RATIO", 0.2),
		PromoteRatio:  getFloat("SIM_PROMOTE_RATIO", 0.1),
		ReadRatio:     getFloat("SIM_READ_RATIO", 0.3),
		PatientLimit:  getInt("SIM_PATIENT_LIMIT", 4000),
		DoctorLimit:   getInt("SIM_DOCTOR_LIMIT", 200),
		Days:          getInt("SIM_DAYS", 5),
		Postgres:      baseCfg.Postgres("simulate"),
	}

	total := cfg.BookingRatio + cfg.WaitlistRatio + cfg.PromoteRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.WaitlistRatio /= total
		cfg.PromoteRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg, baseCfg.Logger().With().Str("cmd", "simulate").Logger()
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.Days <= 0 {
		return fmt.Errorf("SIM_DAYS must be > 0")
	}
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{}

	rows, err := pool.Query(ctx, `SELECT email FROM patients ORDER BY created_at LIMIT $1`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	dataPool.Patients, err = pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}

	rows, err = pool.Query(ctx, `SELECT id FROM doctors WHERE NOT placeholder ORDER BY created_at LIMIT $1`, cfg.DoctorLimit)
	if err != nil {
		return nil, fmt.Errorf("load doctors: %w", err)
	}
	dataPool.Doctors, err = pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("load doctors: %w", err)
	}

	if len(dataPool.Patients) == 0 {
		return nil, fmt.Errorf("no patients loaded, run cmd/seed first")
	}
	if len(dataPool.Doctors) == 0 {
		return nil, fmt.Errorf("no doctors loaded, run cmd/seed first")
	}

	return dataPool, nil
}

func (s *Simulator) Run() {
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
	s.log.Info().Msg("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			switch {
			case r < s.config.BookingRatio:
				s.doBooking(ctx, rng)
			case r < s.config.BookingRatio+s.config.WaitlistRatio:
				s.doWaitlist(ctx, rng)
			case r < s.config.BookingRatio+s.config.WaitlistRatio+s.config.PromoteRatio:
				s.doPromoteNext(ctx, rng)
			default:
				switch rng.Intn(3) {
				case 0:
					s.doReadByID(ctx, rng)
				case 1:
					s.doSlots(ctx, rng)
				case 2:
					s.doQueue(ctx, rng)
				}
			}
		}
	}
}

// randomTime picks a quarter-hour between 08:00 and 17:45 on one of the
// simulated days.
func (s *Simulator) randomTime(rng *rand.Rand) time.Time {
	day := s.start.AddDate(0, 0, rng.Intn(s.config.Days))
	return day.Add(8*time.Hour + time.Duration(rng.Intn(40))*15*time.Minute)
}

func (s *Simulator) pick(rng *rand.Rand) (string, uuid.UUID) {
	return s.pool.Patients[rng.Intn(len(s.pool.Patients))], s.pool.Doctors[rng.Intn(len(s.pool.Doctors))]
}

// call sends one request and returns the status code, or 0 on transport
// failure. out, when non-nil, receives the decoded 2xx body.
func (s *Simulator) call(ctx context.Context, method, path, email string, body, out any) int {
	var reader io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, reader)
	if err != nil {
		return 0
	}
	req.Header.Set("Content-Type", "application/json")
	if email != "" {
		req.Header.Set("X-User-Email", email)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		_ = json.NewDecoder(resp.Body).Decode(out)
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	return resp.StatusCode
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	email, doctorID := s.pick(rng)

	start := time.Now()
	var out struct {
		Outcome     string `json:"outcome"`
		Appointment *struct {
			ID uuid.UUID `json:"id"`
		} `json:"appointment"`
	}
	code := s.call(ctx, http.MethodPost, "/bookings", email, map[string]any{
		"doctorId":            doctorID,
		"appointmentDateTime": s.randomTime(rng).Format(time.RFC3339),
		"priority":            rng.Intn(10) == 0,
	}, &out)
	latency := time.Since(start)

	switch code {
	case http.StatusCreated:
		if out.Appointment != nil {
			s.pool.AddAppointment(out.Appointment.ID)
		}
		s.metrics.Booking.Record(latency, true, false)
	case http.StatusAccepted:
		s.metrics.Waitlisted.Record(latency, true, false)
	default:
		s.metrics.Booking.Record(latency, false, code == http.StatusConflict)
	}
}

func (s *Simulator) doWaitlist(ctx context.Context, rng *rand.Rand) {
	email, doctorID := s.pick(rng)

	start := time.Now()
	code := s.call(ctx, http.MethodPost, "/waitlist", email, map[string]any{
		"doctorId":        doctorID,
		"desiredDateTime": s.randomTime(rng).Format(time.RFC3339),
		"priority":        rng.Intn(5) == 0,
	}, nil)

	// 403 means the waitlist is switched off on the server
	s.metrics.WaitlistAdd.Record(time.Since(start), code == http.StatusCreated, code == http.StatusForbidden)
}

func (s *Simulator) doPromoteNext(ctx context.Context, rng *rand.Rand) {
	_, doctorID := s.pick(rng)

	start := time.Now()
	var out struct {
		Appointment struct {
			ID uuid.UUID `json:"id"`
		} `json:"appointment"`
	}
	code := s.call(ctx, http.MethodPost, "/admin/waitlist/queue/"+doctorID.String()+"/promote-next", "", nil, &out)
	latency := time.Since(start)

	if code == http.StatusOK {
		s.pool.AddAppointment(out.Appointment.ID)
	}
	// an empty queue (404) is an expected answer, not an error
	s.metrics.Promote.Record(latency, code == http.StatusOK || code == http.StatusNotFound, code == http.StatusConflict)
}

func (s *Simulator) doReadByID(ctx context.Context, rng *rand.Rand) {
	apptID, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}

	start := time.Now()
	code := s.call(ctx, http.MethodGet, "/appointments/"+apptID.String(), "", nil, nil)
	s.metrics.ReadByID.Record(time.Since(start), code == http.StatusOK, false)
}

func (s *Simulator) doSlots(ctx context.Context, rng *rand.Rand) {
	_, doctorID := s.pick(rng)
	date := s.randomTime(rng).Format(time.DateOnly)

	start := time.Now()
	code := s.call(ctx, http.MethodGet, fmt.Sprintf("/slots/%s?date=%s", doctorID, date), "", nil, nil)
	s.metrics.Slots.Record(time.Since(start), code == http.StatusOK, false)
}

func (s *Simulator) doQueue(ctx context.Context, rng *rand.Rand) {
	_, doctorID := s.pick(rng)

	start := time.Now()
	code := s.call(ctx, http.MethodGet, "/admin/waitlist/queue/"+doctorID.String(), "", nil, nil)
	s.metrics.Queue.Record(time.Since(start), code == http.StatusOK, false)
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Booking (direct)", &s.metrics.Booking)
	printOperationReport("Booking (redirected to waitlist)", &s.metrics.Waitlisted)
	printOperationReport("Waitlist add", &s.metrics.WaitlistAdd)
	printOperationReport("Promote next", &s.metrics.Promote)
	printOperationReport("Read by ID", &s.metrics.ReadByID)
	printOperationReport("Slots", &s.metrics.Slots)
	printOperationReport("Doctor queue", &s.metrics.Queue)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

// Helper functions

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func repeat(s string, n int) string {
	return strings.Repeat(s, n)
}
