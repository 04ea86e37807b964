package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carebridge/appointment-booking/internal/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	if err := db.ApplySchema(context.Background(), pool); err != nil {
		log.Fatalf("apply schema: %v", err)
	}

	gofakeit.Seed(time.Now().UnixNano())

	doctorIDs, err := seedDoctors(context.Background(), pool, 50)
	if err != nil {
		log.Fatalf("seed doctors: %v", err)
	}
	if err := seedPatients(context.Background(), pool, 2000); err != nil {
		log.Fatalf("seed patients: %v", err)
	}
	if err := seedAvailabilities(context.Background(), pool, doctorIDs, 14); err != nil {
		log.Fatalf("seed availabilities: %v", err)
	}

	log.Println("seed done")
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, n int) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, n)

	for i := 0; i < n; i++ {
		id := uuid.New()
		name := gofakeit.Name()
		specialty := gofakeit.RandomString([]string{
			"Cardiology", "Dermatology", "Pediatrics", "Neurology", "General Practice",
		})

		_, err := pool.Exec(ctx, `
			INSERT INTO doctors (id, user_id, name, email, specialty)
			VALUES ($1, $2, $3, $4, $5)
		`, id, uuid.New(), name, gofakeit.Email(), specialty)
		if err != nil {
			return nil, fmt.Errorf("insert doctor: %w", err)
		}

		// Every doctor gets one or two consultation locations.
		for j := 0; j < 1+gofakeit.Number(0, 1); j++ {
			_, err := pool.Exec(ctx, `
				INSERT INTO doctor_locations (id, doctor_id, name, address)
				VALUES ($1, $2, $3, $4)
			`, uuid.New(), id, gofakeit.Company()+" Clinic", gofakeit.Address().Address)
			if err != nil {
				return nil, fmt.Errorf("insert doctor location: %w", err)
			}
		}

		ids = append(ids, id)
	}

	log.Printf("seeded %d doctors", n)
	return ids, nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, n int) error {
	for i := 0; i < n; i++ {
		phone := gofakeit.Phone()
		_, err := pool.Exec(ctx, `
			INSERT INTO patients (id, user_id, name, email, phone)
			VALUES ($1, $2, $3, $4, $5)
		`, uuid.New(), uuid.New(), gofakeit.Name(), gofakeit.Email(), phone)
		if err != nil {
			return fmt.Errorf("insert patient: %w", err)
		}
	}

	log.Printf("seeded %d patients", n)
	return nil
}

func seedAvailabilities(ctx context.Context, pool *pgxpool.Pool, doctorIDs []uuid.UUID, days int) error {
	slots := [][2]string{
		{"09:00", "09:30"}, {"09:30", "10:00"}, {"10:00", "10:30"}, {"10:30", "11:00"},
		{"14:00", "14:30"}, {"14:30", "15:00"}, {"15:00", "15:30"}, {"15:30", "16:00"},
	}

	count := 0
	for _, doctorID := range doctorIDs {
		var locName, locAddr string
		err := pool.QueryRow(ctx, `
			SELECT name, address FROM doctor_locations WHERE doctor_id = $1 LIMIT 1
		`, doctorID).Scan(&locName, &locAddr)
		if err != nil {
			return fmt.Errorf("load doctor location: %w", err)
		}

		for d := 0; d < days; d++ {
			day := time.Now().AddDate(0, 0, d+1)
			avID := uuid.New()

			_, err := pool.Exec(ctx, `
				INSERT INTO availabilities (id, doctor_id, location_name, location_address, day)
				VALUES ($1, $2, $3, $4, $5)
			`, avID, doctorID, locName, locAddr, day)
			if err != nil {
				return fmt.Errorf("insert availability: %w", err)
			}

			for _, s := range slots {
				_, err := pool.Exec(ctx, `
					INSERT INTO time_slots (id, availability_id, start_time, end_time, booked)
					VALUES ($1, $2, $3, $4, false)
				`, uuid.New(), avID, s[0], s[1])
				if err != nil {
					return fmt.Errorf("insert time slot: %w", err)
				}
			}
			count++
		}
	}

	log.Printf("seeded %d availability entries", count)
	return nil
}
