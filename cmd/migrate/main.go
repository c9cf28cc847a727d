package main

import (
	"log"
	"os"

	"literas-be/internal/model"
	"literas-be/pkg/database"

	"github.com/joho/godotenv"
)

func main() {
	// 1. Load Environment Variables
	if err := godotenv.Load(); err != nil {
		log.Println("Info: No .env file found, using system env")
	}

	dsn := os.Getenv("DB_CONNECTION_STRING")
	if dsn == "" {
		log.Fatal("Error: DB_CONNECTION_STRING is not set")
	}

	// 2. Connect to Database using existing GORM helpers
	db, err := database.NewGormDBFromDSN(dsn, true)
	if err != nil {
		log.Fatal("Error: Failed to connect to database:", err)
	}

	// 3. Extensions (gen_random_uuid)
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS pgcrypto;`).Error; err != nil {
		log.Printf("Warn: Failed to create pgcrypto extension: %v. Continuing...", err)
	}

	// 4. AutoMigrate
	models := model.All()
	log.Printf("Running AutoMigrate for %d tables...", len(models))
	if err := db.AutoMigrate(models...); err != nil {
		log.Fatalf("Error: AutoMigrate failed: %v", err)
	}

	// 5. Post-Migration: Views
	view := `CREATE OR REPLACE VIEW research_session_summary AS
	 SELECT s.id, s.topic, s.status, s.turn_count, s.final_phase, s.started_at, s.finished_at,
	        COUNT(r.id) AS approved_references
	 FROM research_sessions s
	 LEFT JOIN approved_references r ON r.session_id = s.id
	 WHERE s.deleted_at IS NULL
	 GROUP BY s.id;`
	if err := db.Exec(view).Error; err != nil {
		log.Printf("Warn: Failed to create summary view: %v", err)
	}

	log.Println("✅ Success: Database migration completed successfully via GORM.")
}
