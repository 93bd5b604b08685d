package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"

	"github.com/hackgods/session-booking/internal/auth"
	"github.com/hackgods/session-booking/internal/catalog"
	"github.com/hackgods/session-booking/internal/config"
)

type SimConfig struct {
	APIBaseURL  string
	Duration    time.Duration
	Workers     int
	Clients     int
	Days        int
	BookRatio   float64
	CancelRatio float64
	ReadRatio   float64
	SlotTimes   []string
	Location    *time.Location
	JWTSecret   string
	Services    []catalog.Service
}

type client struct {
	id    string
	token string
}

type DataPool struct {
	Clients  []client
	Admin    string
	Dates    []string
	mu       sync.RWMutex
	bookings map[string][]uuid.UUID // appointment IDs per client
}

func (dp *DataPool) AddAppointment(clientID string, id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.bookings[clientID] = append(dp.bookings[clientID], id)
}

func (dp *DataPool) RandomAppointment(clientID string, rng *rand.Rand) (uuid.UUID, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	ids := dp.bookings[clientID]
	if len(ids) == 0 {
		return uuid.Nil, false
	}
	return ids[rng.Intn(len(ids))], true
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
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[percentileIndex(len(latencies), 50)]
	p95 = latencies[percentileIndex(len(latencies), 95)]
	return avg, min, max, p50, p95
}

func percentileIndex(n, p int) int {
	idx := n * p / 100
	if idx >= n {
		idx = n - 1
	}
	return idx
}

type Metrics struct {
	Booking   OperationMetrics
	Cancel    OperationMetrics
	ReadByID  OperationMetrics
	ListMine  OperationMetrics
	Available OperationMetrics
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

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	log.Printf("config: duration=%s workers=%d clients=%d days=%d book=%.2f cancel=%.2f read=%.2f",
		cfg.Duration, cfg.Workers, cfg.Clients, cfg.Days, cfg.BookRatio, cfg.CancelRatio, cfg.ReadRatio)

	dataPool, err := buildDataPool(cfg)
	if err != nil {
		log.Fatalf("build data pool: %v", err)
	}
	log.Printf("prepared: %d clients, %d dates x %d slots", len(dataPool.Clients), len(dataPool.Dates), len(cfg.SlotTimes))

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
	}

	sim.Run()
	sim.PrintReport()

	violations, err := sim.Verify(context.Background())
	if err != nil {
		log.Fatalf("verification failed: %v", err)
	}
	if violations > 0 {
		log.Printf("FAIL: %d uniqueness violations", violations)
		os.Exit(1)
	}
	log.Println("PASS: every instant has at most one active appointment and every ticket is unique")
}

func loadConfig() SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load base config: %v", err)
	}

	services, err := catalog.Parse(baseCfg.Clinic.ServiceCatalog)
	if err != nil {
		log.Fatalf("failed to load service catalog: %v", err)
	}

	cfg := SimConfig{
		APIBaseURL:  strings.TrimRight(getEnv("SIM_API_BASE_URL", "http://localhost:8080"), "/"),
		Duration:    getDuration("SIM_DURATION", 30*time.Second),
		Workers:     getInt("SIM_WORKERS", 20),
		Clients:     getInt("SIM_CLIENTS", 200),
		Days:        getInt("SIM_DAYS", 3),
		BookRatio:   getFloat("SIM_BOOK_RATIO", 0.6),
		CancelRatio: getFloat("SIM_CANCEL_RATIO", 0.1),
		ReadRatio:   getFloat("SIM_READ_RATIO", 0.3),
		SlotTimes:   baseCfg.Clinic.SlotTimes,
		Location:    baseCfg.Clinic.Location,
		JWTSecret:   baseCfg.JWTSecret,
		Services:    services.List(),
	}

	// Normalize ratios
	total := cfg.BookRatio + cfg.CancelRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookRatio /= total
		cfg.CancelRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Clients <= 0 {
		return fmt.Errorf("SIM_CLIENTS must be > 0")
	}
	if cfg.Days <= 0 {
		return fmt.Errorf("SIM_DAYS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	return nil
}

// buildDataPool mints client tokens with the shared secret and picks the dates
// under contention, starting tomorrow so no slot has already started.
func buildDataPool(cfg SimConfig) (*DataPool, error) {
	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.Duration+time.Hour)
	dp := &DataPool{bookings: make(map[string][]uuid.UUID)}

	for i := 0; i < cfg.Clients; i++ {
		id := "sim-" + uuid.NewString()
		tok, _, err := tokens.Issue(auth.Principal{SubjectID: id, Name: gofakeit.Name(), Email: gofakeit.Email(), Role: "client"})
		if err != nil {
			return nil, fmt.Errorf("mint client token: %w", err)
		}
		dp.Clients = append(dp.Clients, client{id: id, token: tok})
	}

	admin, _, err := tokens.Issue(auth.Principal{SubjectID: "sim-admin", Name: "Simulator", Role: auth.RoleAdmin})
	if err != nil {
		return nil, fmt.Errorf("mint admin token: %w", err)
	}
	dp.Admin = admin

	today := time.Now().In(cfg.Location)
	for d := 1; d <= cfg.Days; d++ {
		dp.Dates = append(dp.Dates, today.AddDate(0, 0, d).Format("2006-01-02"))
	}
	return dp, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	log.Printf("starting simulation for %s with %d workers", s.config.Duration, s.config.Workers)

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	log.Println("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			c := s.pool.Clients[rng.Intn(len(s.pool.Clients))]
			r := rng.Float64()
			switch {
			case r < s.config.BookRatio:
				s.doBooking(ctx, rng, c)
			case r < s.config.BookRatio+s.config.CancelRatio:
				s.doCancel(ctx, rng, c)
			default:
				switch rng.Intn(3) {
				case 0:
					s.doReadByID(ctx, rng, c)
				case 1:
					s.doListMine(ctx, c)
				case 2:
					s.doAvailable(ctx, rng, c)
				}
			}
		}
	}
}

func (s *Simulator) send(ctx context.Context, method, path, token string, body any) (*http.Response, time.Duration, error) {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, reader)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	start := time.Now()
	resp, err := s.client.Do(req)
	return resp, time.Since(start), err
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand, c client) {
	svc := s.config.Services[rng.Intn(len(s.config.Services))]
	reqBody := map[string]string{
		"service_id": svc.ID,
		"date":       s.pool.Dates[rng.Intn(len(s.pool.Dates))],
		"time":       s.config.SlotTimes[rng.Intn(len(s.config.SlotTimes))],
		"notes":      gofakeit.Phrase(),
	}

	resp, latency, err := s.send(ctx, http.MethodPost, "/appointments", c.token, reqBody)

	success, conflict := false, false
	if err == nil {
		defer resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusCreated:
			success = true
			var booked struct {
				Appointment struct {
					ID uuid.UUID `json:"id"`
				} `json:"appointment"`
			}
			if json.NewDecoder(resp.Body).Decode(&booked) == nil && booked.Appointment.ID != uuid.Nil {
				s.pool.AddAppointment(c.id, booked.Appointment.ID)
			}
		case http.StatusConflict, http.StatusTooManyRequests:
			conflict = true
		}
	}

	s.metrics.Booking.Record(latency, success, conflict)
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand, c client) {
	id, ok := s.pool.RandomAppointment(c.id, rng)
	if !ok {
		return
	}

	resp, latency, err := s.send(ctx, http.MethodPatch, "/appointments/"+id.String()+"/cancel", c.token, nil)

	success, conflict := false, false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
		conflict = resp.StatusCode == http.StatusConflict
	}

	s.metrics.Cancel.Record(latency, success, conflict)
}

func (s *Simulator) doReadByID(ctx context.Context, rng *rand.Rand, c client) {
	id, ok := s.pool.RandomAppointment(c.id, rng)
	if !ok {
		return
	}

	resp, latency, err := s.send(ctx, http.MethodGet, "/appointments/"+id.String(), c.token, nil)

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}

	s.metrics.ReadByID.Record(latency, success, false)
}

func (s *Simulator) doListMine(ctx context.Context, c client) {
	resp, latency, err := s.send(ctx, http.MethodGet, "/appointments/mine", c.token, nil)

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}

	s.metrics.ListMine.Record(latency, success, false)
}

func (s *Simulator) doAvailable(ctx context.Context, rng *rand.Rand, c client) {
	date := s.pool.Dates[rng.Intn(len(s.pool.Dates))]

	resp, latency, err := s.send(ctx, http.MethodGet, "/appointments/available-times?date="+date, c.token, nil)

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}

	s.metrics.Available.Record(latency, success, false)
}

// Verify pages through every confirmed appointment as admin and counts instants
// held more than once, plus duplicate tickets across all statuses.
func (s *Simulator) Verify(ctx context.Context) (int, error) {
	type row struct {
		TicketNumber string    `json:"ticket_number"`
		ScheduledFor time.Time `json:"scheduled_for"`
		Status       string    `json:"status"`
	}

	const page = 200
	instants := make(map[int64]int)
	tickets := make(map[string]int)
	for offset := 0; ; offset += page {
		path := fmt.Sprintf("/admin/appointments?limit=%d&offset=%d", page, offset)
		resp, _, err := s.send(ctx, http.MethodGet, path, s.pool.Admin, nil)
		if err != nil {
			return 0, err
		}
		var rows []row
		err = json.NewDecoder(resp.Body).Decode(&rows)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return 0, fmt.Errorf("list appointments: status %d", resp.StatusCode)
		}
		if err != nil {
			return 0, fmt.Errorf("decode appointments: %w", err)
		}

		for _, r := range rows {
			tickets[r.TicketNumber]++
			if r.Status != "cancelled" {
				instants[r.ScheduledFor.UnixNano()]++
			}
		}
		if len(rows) < page {
			break
		}
	}

	violations := 0
	for at, n := range instants {
		if n > 1 {
			log.Printf("instant %s held by %d active appointments", time.Unix(0, at).In(s.config.Location).Format(time.RFC3339), n)
			violations++
		}
	}
	for ticket, n := range tickets {
		if n > 1 {
			log.Printf("ticket %s issued %d times", ticket, n)
			violations++
		}
	}
	log.Printf("verified %d tickets across %d active instants", len(tickets), len(instants))
	return violations, nil
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Read by ID", &s.metrics.ReadByID)
	printOperationReport("List mine", &s.metrics.ListMine)
	printOperationReport("Available times", &s.metrics.Available)
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
