package main

import (
	"context"
	"errors"
	"log"
	"os"

	"github.com/dmitrijs2005/authkeeper/internal/authctl"
	"github.com/dmitrijs2005/authkeeper/internal/server"
	"github.com/dmitrijs2005/authkeeper/internal/server/config"
)

func main() {

	ctx := context.Background()
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("%v", err)
	}

	app, err := server.NewApp(cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}

	err = authctl.NewApp(app, os.Stdin, os.Stdout).Run(ctx, os.Args[1:])
	_ = app.Close()

	if err != nil {
		if errors.Is(err, authctl.ErrUsage) {
			log.Printf("%v", err)
			os.Exit(2)
		}
		log.Fatalf("%v", err)
	}
}
