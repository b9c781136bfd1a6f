package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ayushpasi8829/meding/internal/config"
	"github.com/ayushpasi8829/meding/internal/db"
	"github.com/ayushpasi8829/meding/internal/scheduling"
)

type SimConfig struct {
	APIBaseURL    string
	Duration      time.Duration
	Workers       int
	ExplicitRatio float64
	RandomRatio   float64
	ReadRatio     float64
	PatientLimit  int
	Days          int
	PostgresDSN   string
}

type DataPool struct {
	Patients []uuid.UUID
	Doctors  []uuid.UUID
	Windows  []scheduling.TimeWindow
	Dates    []string
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

	p50 = latencies[len(latencies)*50/100]
	p95Idx := len(latencies) * 95 / 100
	if p95Idx >= len(latencies) {
		p95Idx = len(latencies) - 1
	}
	p95 = latencies[p95Idx]

	return avg, min, max, p50, p95
}

type Metrics struct {
	ExplicitBooking OperationMetrics
	RandomBooking   OperationMetrics
	Availability    OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := loadSimConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	log.Printf("config: duration=%s workers=%d explicit=%.2f random=%.2f read=%.2f",
		cfg.Duration, cfg.Workers, cfg.ExplicitRatio, cfg.RandomRatio, cfg.ReadRatio)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		log.Fatalf("load data pool: %v", err)
	}

	log.Printf("loaded: %d patients, %d doctors, %d windows, %d dates",
		len(dataPool.Patients), len(dataPool.Doctors), len(dataPool.Windows), len(dataPool.Dates))

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	sim.Run()
	sim.PrintReport()
}

func loadSimConfig() SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load base config: %v", err)
	}

	cfg := SimConfig{
		APIBaseURL:    getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:      getDuration("SIM_DURATION", 30*time.Second),
		Workers:       getInt("SIM_WORKERS", 10),
		ExplicitRatio: getFloat("SIM_EXPLICIT_RATIO", 0.4),
		RandomRatio:   getFloat("SIM_RANDOM_RATIO", 0.3),
		ReadRatio:     getFloat("SIM_READ_RATIO", 0.3),
		PatientLimit:  getInt("SIM_PATIENT_LIMIT", 2000),
		Days:          getInt("SIM_DAYS", 7),
		PostgresDSN:   baseCfg.PostgresDSN,
	}

	total := cfg.ExplicitRatio + cfg.RandomRatio + cfg.ReadRatio
	if total > 0 {
		cfg.ExplicitRatio /= total
		cfg.RandomRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{}

	rows, err := pool.Query(ctx, `
		SELECT id FROM users WHERE role = 'patient' LIMIT $1
	`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Patients = append(dataPool.Patients, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = pool.Query(ctx, `
		SELECT DISTINCT doctor_id FROM published_windows
	`)
	if err != nil {
		return nil, fmt.Errorf("load doctors: %w", err)
	}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Doctors = append(dataPool.Doctors, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = pool.Query(ctx, `
		SELECT DISTINCT start_time, end_time FROM published_windows ORDER BY start_time
	`)
	if err != nil {
		return nil, fmt.Errorf("load windows: %w", err)
	}
	for rows.Next() {
		var w scheduling.TimeWindow
		if err := rows.Scan(&w.StartTime, &w.EndTime); err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Windows = append(dataPool.Windows, w)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	today := time.Now()
	for i := 1; i <= cfg.Days; i++ {
		dataPool.Dates = append(dataPool.Dates, today.AddDate(0, 0, i).Format(scheduling.DateFormat))
	}

	return dataPool, nil
}

func (s *Simulator) Run() {
	log.Printf("running %d workers for %s", s.config.Workers, s.config.Duration)

	deadline := time.Now().Add(s.config.Duration)
	var wg sync.WaitGroup

	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

			for time.Now().Before(deadline) {
				r := rng.Float64()
				switch {
				case r < s.config.ExplicitRatio:
					s.bookExplicit(rng)
				case r < s.config.ExplicitRatio+s.config.RandomRatio:
					s.bookRandom(rng)
				default:
					s.readAvailability(rng)
				}
			}
		}(i)
	}

	wg.Wait()
	log.Println("simulation complete")
}

func (s *Simulator) bookExplicit(rng *rand.Rand) {
	w := s.pool.Windows[rng.Intn(len(s.pool.Windows))]
	body := map[string]any{
		"date":      s.pool.Dates[rng.Intn(len(s.pool.Dates))],
		"startTime": w.StartTime,
		"endTime":   w.EndTime,
		"doctorId":  s.pool.Doctors[rng.Intn(len(s.pool.Doctors))].String(),
	}

	s.postBooking(rng, body, &s.metrics.ExplicitBooking)
}

func (s *Simulator) bookRandom(rng *rand.Rand) {
	w := s.pool.Windows[rng.Intn(len(s.pool.Windows))]
	body := map[string]any{
		"date":      s.pool.Dates[rng.Intn(len(s.pool.Dates))],
		"startTime": w.StartTime,
		"endTime":   w.EndTime,
	}

	s.postBooking(rng, body, &s.metrics.RandomBooking)
}

func (s *Simulator) postBooking(rng *rand.Rand, body map[string]any, om *OperationMetrics) {
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	payload, err := json.Marshal(body)
	if err != nil {
		om.Record(0, false, false)
		return
	}

	req, err := http.NewRequest(http.MethodPost, s.config.APIBaseURL+"/appointment/book-appointment", bytes.NewReader(payload))
	if err != nil {
		om.Record(0, false, false)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", patientID.String())
	req.Header.Set("X-User-Role", "patient")

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		om.Record(latency, false, false)
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusCreated:
		om.Record(latency, true, false)
	case resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusNotFound:
		om.Record(latency, false, true)
	default:
		om.Record(latency, false, false)
	}
}

func (s *Simulator) readAvailability(rng *rand.Rand) {
	date := s.pool.Dates[rng.Intn(len(s.pool.Dates))]

	req, err := http.NewRequest(http.MethodGet, s.config.APIBaseURL+"/appointment/get-Available-timeslots?date="+date, nil)
	if err != nil {
		s.metrics.Availability.Record(0, false, false)
		return
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		s.metrics.Availability.Record(latency, false, false)
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	s.metrics.Availability.Record(latency, resp.StatusCode == http.StatusOK, false)
}

func (s *Simulator) PrintReport() {
	fmt.Println()
	fmt.Println("=== Simulation Report ===")
	printOp("explicit booking", &s.metrics.ExplicitBooking)
	printOp("random booking", &s.metrics.RandomBooking)
	printOp("availability read", &s.metrics.Availability)
}

func printOp(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		fmt.Printf("%-18s no operations\n", name)
		return
	}

	avg, min, max, p50, p95 := om.Stats()
	fmt.Printf("%-18s total=%d success=%d conflict=%d error=%d\n",
		name, total, atomic.LoadInt64(&om.Success), atomic.LoadInt64(&om.Conflict), atomic.LoadInt64(&om.Error))
	fmt.Printf("%-18s avg=%s min=%s max=%s p50=%s p95=%s\n", "", avg, min, max, p50, p95)
}

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
