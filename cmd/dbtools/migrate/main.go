// cmd/dbtools/migrate/main.go
//
// Applies the schema migrations embedded in the store package to a
// SQLite database. The server migrates automatically on startup; this
// tool exists for rolling back and for inspecting schema state.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"

	"github.com/ihor-metko/courtflow/internal/store"
)

func main() {
	var (
		dbPath  = flag.String("db", "", "Path to SQLite database")
		command = flag.String("command", "", "Command to run (up, down, steps, version, force)")
		arg     = flag.String("arg", "", "Argument for steps (signed count) and force (version)")
	)
	flag.Parse()

	if *dbPath == "" || *command == "" {
		flag.Usage()
		os.Exit(1)
	}

	m, err := store.OpenMigrator(*dbPath)
	if err != nil {
		log.Fatalf("Migration init failed: %v", err)
	}
	defer m.Close()

	switch *command {
	case "up":
		if err := m.Up(); err != nil && err != migrate.ErrNoChange {
			log.Fatalf("Migration up failed: %v", err)
		}
	case "down":
		if err := m.Down(); err != nil && err != migrate.ErrNoChange {
			log.Fatalf("Migration down failed: %v", err)
		}
	case "steps":
		n, err := strconv.Atoi(*arg)
		if err != nil {
			log.Fatalf("steps requires a signed integer -arg: %v", err)
		}
		if err := m.Steps(n); err != nil && err != migrate.ErrNoChange {
			log.Fatalf("Migration steps failed: %v", err)
		}
	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			log.Fatalf("Get version failed: %v", err)
		}
		fmt.Printf("Version: %d, Dirty: %v\n", version, dirty)
	case "force":
		v, err := strconv.Atoi(*arg)
		if err != nil {
			log.Fatalf("force requires an integer -arg: %v", err)
		}
		if err := m.Force(v); err != nil {
			log.Fatalf("Force failed: %v", err)
		}
	default:
		log.Fatalf("Unknown command: %s", *command)
	}
}
