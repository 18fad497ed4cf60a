package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"docvault/config"
	"docvault/pkg/database"
)

const usage = `
DocVault - Database CLI Tool

Usage:
  migrate [command]

Commands:
  up          Apply all pending migrations
  down        Roll back the most recent migration
  status      Print the migration status
  check       Verify the connection and the core tables

Examples:
  go run cmd/migrate/main.go up
  go run cmd/migrate/main.go status
  go run cmd/migrate/main.go down
`

var coreTables = []string{"client_documents", "upload_metrics", "document_events_log", "system_config"}

func main() {
	flag.Usage = func() {
		fmt.Print(usage)
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}

	command := flag.Arg(0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cfg := config.LoadConfig()
	db, err := database.Connect(ctx, cfg)
	if err != nil {
		log.Fatalf("❌ Database connection failed: %v", err)
	}
	defer database.Close()

	switch command {
	case "up":
		log.Println("🚀 Running migrations UP...")
		if err := database.RunMigrations(ctx, db); err != nil {
			log.Fatalf("❌ Migration failed: %v", err)
		}
		log.Println("✅ Migrations completed successfully!")
	case "down":
		log.Println("⬇️  Rolling back the last migration...")
		if err := database.RollbackMigration(ctx, db); err != nil {
			log.Fatalf("❌ Rollback failed: %v", err)
		}
		log.Println("✅ Rollback completed successfully!")
	case "status":
		if err := database.MigrationStatus(ctx, db); err != nil {
			log.Fatalf("❌ Status failed: %v", err)
		}
	case "check":
		if err := database.HealthCheck(ctx, db); err != nil {
			log.Fatalf("❌ Health check failed: %v", err)
		}
		log.Println("✅ Database connection: OK")
		for _, table := range coreTables {
			exists, err := database.TableExists(ctx, db, table)
			if err != nil {
				log.Printf("⚠️  Error checking table %s: %v", table, err)
				continue
			}
			if exists {
				log.Printf("✅ Table %-20s exists", table)
			} else {
				log.Printf("❌ Table %-20s does not exist", table)
			}
		}
	default:
		fmt.Printf("Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}
