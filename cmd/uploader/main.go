package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/mediaflow/internal/client/cli"
	"github.com/dmitrijs2005/mediaflow/internal/client/config"
	"github.com/dmitrijs2005/mediaflow/internal/flagx"
	_ "github.com/joho/godotenv/autoload"
)

// flags that consume the following argument
var valueFlags = []string{"-a", "-p", "-e", "-n", "-t", "-c", "-config"}

func main() {

	cfg := config.LoadConfig()
	app, err := cli.NewApp(cfg)

	if err != nil {
		log.Fatalf("%v", err)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	// the first interrupt drains the queue, the second kills the process
	go func() {
		<-ctx.Done()
		stop()
		app.Cancel()
	}()

	code := app.Run(context.WithoutCancel(ctx), flagx.Positional(os.Args[1:], valueFlags))
	stop()
	os.Exit(code)

}
