// seed inserts the development user for local testing. Run via go run ./cmd/seed.
// Idempotent: skips the insert if the dev user already exists.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	"otp-auth-service/internal/config"
	"otp-auth-service/internal/db"
	"otp-auth-service/internal/identity/service"
	"otp-auth-service/internal/platform/autherr"
	"otp-auth-service/internal/security"
	userrepo "otp-auth-service/internal/user/repository"
)

const (
	devUsername = "ann"
	devEmail    = "ann@example.com"
	devName     = "Ann"
	devPassword = "correct"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	users := userrepo.NewPostgresRepository(conn)
	// Only Register is used, so the session, OTP and token collaborators stay unset.
	auth := service.NewAuthService(service.Deps{
		Users:  users,
		Hasher: security.NewHasher(cfg.BcryptCost),
	})

	_, err = auth.Register(context.Background(), service.RegisterInput{
		Username: devUsername,
		Email:    devEmail,
		Name:     devName,
		Password: devPassword,
	})
	switch {
	case errors.Is(err, autherr.ErrCredentialTaken):
		log.Printf("Seed already applied (%s exists). Skipping.", devUsername)
		return
	case err != nil:
		log.Fatalf("create dev user: %v", err)
	}

	log.Println("Seed completed successfully.")
	fmt.Printf("Dev login: %s / %s\n", devUsername, devPassword)
}
