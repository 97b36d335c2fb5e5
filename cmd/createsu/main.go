/*
main.go - Bootstrap a superuser

USAGE:
  createsu [-db rewards.db] <utorid> <email> <password>

The account is created verified, so it can log in straight away. The
password must satisfy the same policy as any other password.
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/campus/rewards-engine/auth"
	"github.com/campus/rewards-engine/config"
	"github.com/campus/rewards-engine/loyalty"
	"github.com/campus/rewards-engine/store/sqlite"
)

func main() {
	dbPath := flag.String("db", "", "SQLite database path (defaults to REWARDS_DB or config)")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: createsu [-db path] <utorid> <email> <password>")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 3 {
		flag.Usage()
		os.Exit(2)
	}
	utorid, email, password := flag.Arg(0), flag.Arg(1), flag.Arg(2)

	path := *dbPath
	if path == "" {
		path = databasePath()
	}

	if err := auth.ValidatePassword(password); err != nil {
		log.Fatalf("Rejected password: %v", err)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		log.Fatalf("Failed to hash password: %v", err)
	}

	store, err := sqlite.New(path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	u := &loyalty.User{
		Utorid:       strings.TrimSpace(utorid),
		Email:        strings.TrimSpace(email),
		Name:         strings.TrimSpace(utorid),
		Role:         loyalty.RoleSuperuser,
		Verified:     true,
		PasswordHash: hash,
		CreatedAt:    time.Now(),
	}
	if err := store.CreateUser(context.Background(), u); err != nil {
		log.Fatalf("Failed to create superuser: %v", err)
	}
	log.Printf("Created superuser %s (id %d) in %s", u.Utorid, u.ID, path)
}

// databasePath falls back to the server's configuration. The JWT secret is
// not needed here, so validation errors are ignored.
func databasePath() string {
	cfg, err := config.Load("")
	if cfg == nil || cfg.DBPath == "" {
		if err != nil {
			log.Printf("Using default database: %v", err)
		}
		return "rewards.db"
	}
	return cfg.DBPath
}
