package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carebridge/appointment-booking/internal/db"
)

// simulate fires N concurrent booking requests at one free slot and reports
// how many won. With the coordinator doing its job the success column always
// reads 1.
func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	baseURL := getenv("API_BASE_URL", "http://127.0.0.1:8080")
	workers, _ := strconv.Atoi(getenv("SIM_WORKERS", "50"))
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	target, err := pickFreeSlot(ctx, pool)
	if err != nil {
		log.Fatalf("pick free slot: %v", err)
	}
	log.Printf("target slot: doctor=%s %s %s-%s at %q",
		target.DoctorID, target.Day.Format("2006-01-02"), target.Start, target.End, target.LocationName)

	userIDs, err := pickPatientUserIDs(ctx, pool, workers)
	if err != nil {
		log.Fatalf("pick patients: %v", err)
	}

	var success, conflict, other int64
	var wg sync.WaitGroup

	start := time.Now()
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(userID uuid.UUID) {
			defer wg.Done()

			status, err := book(baseURL, userID, target)
			switch {
			case err != nil:
				atomic.AddInt64(&other, 1)
			case status == http.StatusCreated:
				atomic.AddInt64(&success, 1)
			case status == http.StatusConflict:
				atomic.AddInt64(&conflict, 1)
			default:
				atomic.AddInt64(&other, 1)
			}
		}(userIDs[i%len(userIDs)])
	}
	wg.Wait()

	log.Printf("done in %s: success=%d conflict=%d other=%d (of %d requests)",
		time.Since(start), success, conflict, other, workers)
	if success != 1 {
		log.Printf("WARNING: expected exactly one winner, got %d", success)
	}
}

type targetSlot struct {
	DoctorID        uuid.UUID
	LocationName    string
	LocationAddress string
	Day             time.Time
	Start           string
	End             string
}

func pickFreeSlot(ctx context.Context, pool *pgxpool.Pool) (*targetSlot, error) {
	var t targetSlot
	err := pool.QueryRow(ctx, `
		SELECT a.doctor_id, a.location_name, a.location_address, a.day, ts.start_time, ts.end_time
		FROM time_slots ts
		JOIN availabilities a ON a.id = ts.availability_id
		WHERE ts.booked = false
		ORDER BY a.day
		LIMIT 1
	`).Scan(&t.DoctorID, &t.LocationName, &t.LocationAddress, &t.Day, &t.Start, &t.End)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func pickPatientUserIDs(ctx context.Context, pool *pgxpool.Pool, n int) ([]uuid.UUID, error) {
	rows, err := pool.Query(ctx, `SELECT user_id FROM patients LIMIT $1`, n)
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
	if len(ids) == 0 {
		return nil, fmt.Errorf("no patients seeded")
	}
	return ids, rows.Err()
}

func book(baseURL string, userID uuid.UUID, t *targetSlot) (int, error) {
	body, err := json.Marshal(map[string]any{
		"doctor_id":        t.DoctorID.String(),
		"location_name":    t.LocationName,
		"location_address": t.LocationAddress,
		"date":             t.Day.Format(time.RFC3339),
		"start_time":       t.Start,
		"end_time":         t.End,
		"reason":           "load test booking",
	})
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+"/appointments", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", userID.String())
	req.Header.Set("X-User-Role", "patient")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
