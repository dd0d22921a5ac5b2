package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/mcdev12/pixelplace/go/internal/db/migrate"
	"github.com/mcdev12/pixelplace/go/internal/dbconfig"
)

func main() {
	direction := flag.String("direction", "up", "up or down")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not load .env file: %v\n", err)
	}

	cfg := dbconfig.NewConfigFromEnv()
	if err := migrate.Run(cfg.DSN(), *direction); err != nil {
		fmt.Fprintf(os.Stderr, "migrate %s: %v\n", *direction, err)
		os.Exit(1)
	}
	fmt.Printf("Migrations %s complete for %s/%s\n", *direction, cfg.Host, cfg.Database)
}
