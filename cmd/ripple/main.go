package main

import (
	"log"

	"github.com/joho/godotenv"

	"ripple/internal/app"
)

func main() {
	// Optional .env for local development; env vars always win.
	_ = godotenv.Load()

	if err := app.Run(); err != nil {
		log.Fatal(err)
	}
}
