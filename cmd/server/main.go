// Command server runs the authcore HTTP service.
package main

import (
	"context"
	"log"

	"github.com/dmitrijs2005/authcore/internal/server"
	"github.com/dmitrijs2005/authcore/internal/server/config"
)

func main() {
	cfg := config.LoadConfig()

	app, err := server.NewApp(cfg)
	if err != nil {
		log.Fatalf("authcore: %v", err)
	}

	app.Run(context.Background())
}
