package main

import (
	"flag"
	"log"

	"github.com/uptrace/bun/migrate"

	"github.com/curatelabs/tcr-middleware/pkg/config"
	"github.com/curatelabs/tcr-middleware/pkg/migrations/registrydb"
	"github.com/curatelabs/tcr-middleware/pkg/pgutil"
	mghelper "github.com/curatelabs/tcr-middleware/pkg/pgutil/migrations"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Usage = mghelper.Usage
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("error reading configuration file: %s", err.Error())
	}

	// Connect to database
	db, err := pgutil.ConnectDB(&cfg.Database)
	if err != nil {
		log.Fatalf("error connecting to database: %s", err.Error())
	}
	defer db.Close()

	log.Printf("Running migrations for registry database (%s)...\n", cfg.Database.Database)

	migrator := migrate.NewMigrator(db, registrydb.Migrations)

	err = mghelper.RunMigrations(migrator, flag.Args()...)
	if err != nil {
		mghelper.Exitf(err.Error())
	}
}
