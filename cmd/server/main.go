package main

import (
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/timeledger/internal/server"
	"github.com/dmitrijs2005/timeledger/internal/server/config"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig(os.Args[1:])

	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	app, err := server.NewApp(ctx, cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}

	app.Run(ctx)

}
