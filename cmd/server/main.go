package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/dmitrijs2005/mediaflow/internal/server"
	"github.com/dmitrijs2005/mediaflow/internal/server/config"
	_ "github.com/joho/godotenv/autoload"
)

// bounds database, migrations and bucket checks at boot
const startupTimeout = time.Minute

func main() {
	cfg := config.LoadConfig()

	startCtx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	app, err := server.NewApp(startCtx, cfg)
	cancel()
	if err != nil {
		log.Printf("mediaflow server: %v", err)
		os.Exit(1)
	}

	// App.Run installs its own signal handler and returns once drained.
	app.Run(context.Background())
}
