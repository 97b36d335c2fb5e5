/*
main.go - Load the demo campus into a database

USAGE:
  seed [-db rewards.db] [-password Password123!]

Every demo account shares the password. Running twice against the same
database fails without changing anything.

SEE ALSO:
  - seed/demo.go: what gets created
*/
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"time"

	"github.com/campus/rewards-engine/config"
	"github.com/campus/rewards-engine/seed"
	"github.com/campus/rewards-engine/store/sqlite"
)

func main() {
	dbPath := flag.String("db", "", "SQLite database path (defaults to REWARDS_DB or config)")
	password := flag.String("password", seed.DefaultPassword, "password for every demo account")
	flag.Parse()

	path := *dbPath
	if path == "" {
		path = "rewards.db"
		if cfg, _ := config.Load(""); cfg != nil && cfg.DBPath != "" {
			path = cfg.DBPath
		}
	}

	store, err := sqlite.New(path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	res, err := seed.Demo(context.Background(), store, seed.Options{Password: *password, Now: time.Now()})
	if errors.Is(err, seed.ErrAlreadySeeded) {
		log.Printf("Nothing to do: %v", err)
		return
	}
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}
	log.Printf("Seeded %s: %d users, %d promotions, %d events, %d transactions",
		path, len(res.Users), len(res.Promotions), len(res.Events), res.Transactions)
}
