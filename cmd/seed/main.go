package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ayushpasi8829/meding/internal/db"
	"github.com/ayushpasi8829/meding/internal/scheduling"
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

	gofakeit.Seed(time.Now().UnixNano())

	doctorIDs, err := seedDoctors(context.Background(), pool, 40)
	if err != nil {
		log.Fatalf("seed doctors: %v", err)
	}
	if err := seedPatients(context.Background(), pool, 2000); err != nil {
		log.Fatalf("seed patients: %v", err)
	}
	if err := seedPublishedWindows(context.Background(), pool, doctorIDs); err != nil {
		log.Fatalf("seed published windows: %v", err)
	}

	log.Println("seed complete")
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d doctors", count)

	categories := []string{
		"Cognitive Behavioral Therapy",
		"Couples Therapy",
		"Child Psychology",
		"Trauma Therapy",
		"Addiction Counselling",
		"Grief Counselling",
		"Career Counselling",
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		ids = append(ids, id)
		category := categories[gofakeit.Number(0, len(categories)-1)]
		founder := i == 0 // exactly one flagged founder doctor

		_, err := tx.Exec(ctx, `
			INSERT INTO users (id, full_name, email, phone, country_code, role, therapy_category, founder, created_at, updated_at)
			VALUES ($1, $2, $3, $4, '+91', 'doctor', $5, $6, now(), now())
		`, id, gofakeit.Name(), gofakeit.Email(), gofakeit.Numerify("##########"), category, founder)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("doctors seeded")
	return ids, nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d patients", count)

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			_, err := tx.Exec(ctx, `
				INSERT INTO users (id, full_name, email, phone, country_code, role, created_at, updated_at)
				VALUES ($1, $2, $3, $4, '+91', 'patient', now(), now())
			`, uuid.New(), gofakeit.Name(), gofakeit.Email(), gofakeit.Numerify("##########"))
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Printf("patients seeded: %d/%d", end, count)
	}

	log.Println("patients seeded")
	return nil
}

func seedPublishedWindows(ctx context.Context, pool *pgxpool.Pool, doctorIDs []uuid.UUID) error {
	log.Printf("seeding published windows for %d doctors", len(doctorIDs))

	grid, err := scheduling.GridTemplate("08:00", "20:00")
	if err != nil {
		return err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, doctorID := range doctorIDs {
		// Each doctor publishes a random contiguous run of the grid.
		start := gofakeit.Number(0, len(grid)/2)
		length := gofakeit.Number(3, len(grid)-start)

		for _, w := range grid[start : start+length] {
			_, err := tx.Exec(ctx, `
				INSERT INTO published_windows (doctor_id, start_time, end_time, created_at)
				VALUES ($1, $2, $3, now())
			`, doctorID, w.StartTime, w.EndTime)
			if err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("published windows seeded")
	return nil
}
