package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"path/filepath"

	"github.com/jackc/pgx/v4/pgxpool"

	"course-marketplace/internal/config"
	"course-marketplace/internal/infra/db/postgres"
	"course-marketplace/internal/infra/redis"
)

// Sets up a clean, predictable database state for manual end-to-end testing:
// applies the schema, wipes all data and seeds a small catalog.
func main() {
	ctx := context.Background()

	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	pool, err := postgres.NewPgxPool(ctx, cfg.Database.URL, 5)
	if err != nil {
		log.Fatalf("postgres connection failed: %v", err)
	}
	defer pool.Close()

	redisClient, err := redis.NewClient(ctx, &cfg.Redis)
	if err != nil {
		log.Fatalf("redis connection failed: %v", err)
	}
	defer redisClient.Close()

	log.Println("--- Starting E2E Environment Setup ---")

	log.Println("[1/4] Applying schema...")
	applySchema(ctx, pool)

	log.Println("[2/4] Wiping existing data...")
	_, err = pool.Exec(ctx, `
		TRUNCATE users, courses, transactions, enrollments, reviews, wishlist_items
		RESTART IDENTITY CASCADE;
	`)
	if err != nil {
		log.Fatalf("failed to truncate tables: %v", err)
	}

	log.Println("[3/4] Wiping redis (rate-limit counters)...")
	if err := redisClient.FlushDB(ctx); err != nil {
		log.Printf("warning: could not flush redis: %v", err)
	}

	log.Println("[4/4] Seeding users and catalog...")
	seed(ctx, pool)

	log.Println("--- E2E Environment Setup Complete ---")
}

func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for i := 0; i < 10; i++ {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", errors.New("could not find project root containing go.mod")
}

func applySchema(ctx context.Context, pool *pgxpool.Pool) {
	root, err := findProjectRoot()
	if err != nil {
		log.Fatal(err)
	}
	schema, err := os.ReadFile(filepath.Join(root, "deploy", "postgres", "init.sql"))
	if err != nil {
		log.Fatalf("read schema: %v", err)
	}
	if _, err := pool.Exec(ctx, string(schema)); err != nil {
		log.Fatalf("apply schema: %v", err)
	}
}

func seed(ctx context.Context, pool *pgxpool.Pool) {
	const users = `
INSERT INTO users (id, name, email, role, disability_type) VALUES
	('11111111-1111-1111-1111-111111111111', 'Admin',  'admin@example.com',  'admin',   NULL),
	('22222222-2222-2222-2222-222222222222', 'Raka',   'raka@example.com',   'mentor',  NULL),
	('33333333-3333-3333-3333-333333333333', 'Dewi',   'dewi@example.com',   'student', NULL),
	('44444444-4444-4444-4444-444444444444', 'Sari',   'sari@example.com',   'student', 'hearing');
`
	const courses = `
INSERT INTO courses (id, mentor_id, title, slug, category, level, tags, price, discount_price, published, average_rating, total_students) VALUES
	('aaaaaaaa-0000-0000-0000-000000000001', '22222222-2222-2222-2222-222222222222',
	 'Go for Backends', 'go-for-backends', 'programming', 'intermediate',
	 '{golang,backend}', 200000, 150000, TRUE, 4.6, 1250),
	('aaaaaaaa-0000-0000-0000-000000000002', '22222222-2222-2222-2222-222222222222',
	 'Go Basics', 'go-basics', 'programming', 'beginner',
	 '{golang}', 100000, NULL, TRUE, 4.2, 340),
	('aaaaaaaa-0000-0000-0000-000000000003', '22222222-2222-2222-2222-222222222222',
	 'Sign Language Basics', 'sign-language-basics', 'language', 'beginner',
	 '{accessible-hearing,communication}', 90000, NULL, TRUE, 4.1, 95),
	('aaaaaaaa-0000-0000-0000-000000000004', '22222222-2222-2222-2222-222222222222',
	 'Free Intro to Programming', 'free-intro', 'programming', 'beginner',
	 '{golang}', 0, NULL, TRUE, 3.9, 5000);
`
	const wishlist = `
INSERT INTO wishlist_items (id, user_id, course_id) VALUES
	('bbbbbbbb-0000-0000-0000-000000000001', '33333333-3333-3333-3333-333333333333',
	 'aaaaaaaa-0000-0000-0000-000000000001');
`
	for _, q := range []string{users, courses, wishlist} {
		if _, err := pool.Exec(ctx, q); err != nil {
			log.Fatalf("seed: %v", err)
		}
	}
}
