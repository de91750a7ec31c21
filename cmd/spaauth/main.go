package main

import (
	"log"

	"github.com/aussiebroadwan/spaauth/internal/app"
)

func main() {
	cfg := app.LoadConfig()

	if err := app.New(cfg).Run(); err != nil {
		log.Fatalf("application error: %v", err)
	}
}
