package main

import (
	"os"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/ticketloop/purchases-service/internal/server"
)

func main() {
	log.SetFormatter(&log.JSONFormatter{})
	log.SetOutput(os.Stdout)

	if err := godotenv.Load(".env"); err != nil {
		log.Warn("No .env file found, using environment variables")
	}

	if err := server.Start(); err != nil {
		log.WithError(err).Fatal("Server failed to start")
	}
}
