package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/archofall1/ai-ap/internal/api"
	"github.com/archofall1/ai-ap/internal/bootstrap"
	"github.com/archofall1/ai-ap/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {
	cfgPath := os.Getenv("AIAP_CONFIG")
	app, err := bootstrap.New(context.Background(), cfgPath)
	if bootstrap.IsMissingCredential(err) {
		fmt.Fprintln(os.Stderr, app.Credential.MissingMessage())
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}
	defer app.Close()

	dispatcher := worker.NewDispatcher(app.Config.BasicConfig.QueueSize)
	defer dispatcher.Stop()

	handlers := api.NewHandler(app.Conversation, dispatcher, app.Config.BasicConfig.RequestsPerMinute)

	router := gin.Default()
	handlers.RegisterRoutes(router)

	addr := app.Config.BasicConfig.ServerAddress
	if addr == "" {
		addr = ":8090"
	}

	if err := router.Run(addr); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
