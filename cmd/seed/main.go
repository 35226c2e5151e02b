package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/appointment-waitlist/internal/config"
	"github.com/clinicdesk/appointment-waitlist/internal/db"
	"github.com/clinicdesk/appointment-waitlist/internal/directory"
)

var categories = []string{
	"Dermatology",
	"Cardiology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"ENT",
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fatalLog := zerolog.New(os.Stderr)
		fatalLog.Fatal().Err(err).Msg("config load error")
	}
	log := cfg.Logger().With().Str("cmd", "seed").Logger()

	hospitals := getInt("SEED_HOSPITALS", 3)
	categoriesPerHospital := min(getInt("SEED_CATEGORIES_PER_HOSPITAL", 4), len(categories))
	doctorsPerCategory := getInt("SEED_DOCTORS_PER_CATEGORY", 2)
	patients := getInt("SEED_PATIENTS", 500)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.Postgres("seed"))
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("migrate")
	}

	faker := gofakeit.New(uint64(time.Now().UnixNano()))

	if err := seedDirectory(ctx, pool, faker, log, hospitals, categoriesPerHospital, doctorsPerCategory); err != nil {
		log.Fatal().Err(err).Msg("seed directory")
	}
	if err := seedPatients(ctx, pool, faker, log, patients, cfg.DemoIdentity); err != nil {
		log.Fatal().Err(err).Msg("seed patients")
	}

	log.Info().Msg("seed complete")
}

// seedDirectory writes hospitals, their categories and doctors in one
// transaction so a partial directory is never visible.
func seedDirectory(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, log zerolog.Logger, hospitals, perHospital, perCategory int) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	doctors := 0
	for h := 0; h < hospitals; h++ {
		hospitalID := uuid.New()
		address := faker.Address().Address
		if _, err := tx.Exec(ctx, `
			INSERT INTO hospitals (id, name, address, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, hospitalID, faker.Company()+" Hospital", address); err != nil {
			return fmt.Errorf("insert hospital: %w", err)
		}

		offset := faker.Number(0, len(categories)-1)
		for c := 0; c < perHospital; c++ {
			categoryID := uuid.New()
			name := categories[(offset+c)%len(categories)]
			if _, err := tx.Exec(ctx, `
				INSERT INTO service_categories (id, hospital_id, name, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
			`, categoryID, hospitalID, name); err != nil {
				return fmt.Errorf("insert service category: %w", err)
			}

			batch := &pgx.Batch{}
			for d := 0; d < perCategory; d++ {
				userID := uuid.New()
				doctorName := "Dr. " + faker.Name()
				email := fmt.Sprintf("doctor.%s@clinic.local", strings.ToLower(uuid.NewString()[:12]))

				batch.Queue(`
					INSERT INTO users (id, email, name, role, created_at, updated_at)
					VALUES ($1, $2, $3, $4, now(), now())
				`, userID, email, doctorName, directory.RoleDoctor)
				batch.Queue(`
					INSERT INTO doctors (id, user_id, hospital_id, service_category_id, name, specialization, created_at, updated_at)
					VALUES ($1, $2, $3, $4, $5, $6, now(), now())
				`, uuid.New(), userID, hospitalID, categoryID, doctorName, name)
			}
			if err := tx.SendBatch(ctx, batch).Close(); err != nil {
				return fmt.Errorf("insert doctors: %w", err)
			}
			doctors += perCategory
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Info().Int("hospitals", hospitals).Int("doctors", doctors).Msg("directory seeded")
	return nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, log zerolog.Logger, count int, demoEmail string) error {
	const batchSize = 500

	emails := make([]string, 0, count+1)
	if demoEmail != "" {
		emails = append(emails, strings.ToLower(demoEmail))
	}
	for i := 0; i < count; i++ {
		emails = append(emails, fmt.Sprintf("%s.%d@%s", strings.ToLower(faker.Username()), i, faker.DomainName()))
	}

	for offset := 0; offset < len(emails); offset += batchSize {
		end := min(offset+batchSize, len(emails))

		batch := &pgx.Batch{}
		for _, email := range emails[offset:end] {
			userID := uuid.New()
			name := faker.Name()
			batch.Queue(`
				INSERT INTO users (id, email, name, role, created_at, updated_at)
				VALUES ($1, $2, $3, $4, now(), now())
				ON CONFLICT (email) DO NOTHING
			`, userID, email, name, directory.RolePatient)
			batch.Queue(`
				INSERT INTO patients (id, user_id, name, email, created_at, updated_at)
				SELECT $1, $2, $3, $4, now(), now()
				WHERE EXISTS (SELECT 1 FROM users WHERE id = $2)
				ON CONFLICT (email) DO NOTHING
			`, uuid.New(), userID, name, email)
		}

		if err := pool.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert patients: %w", err)
		}
		log.Info().Int("done", end).Int("total", len(emails)).Msg("patients seeded")
	}

	return nil
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return def
}
