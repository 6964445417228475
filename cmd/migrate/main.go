package main

import (
	"transaction_system/internal/config" // Custom package for configuration
	"transaction_system/internal/db"     // Custom package for database migration
)

// Main function to run database migrations
func main() {
	cfg := config.LoadConfig() // Load configuration
	db.Migrate(cfg.DSN())      // Run the migration
}
