// Command seed creates a demo account with a handful of simulated soil
// samples in the PostgreSQL database named by DATABASE_URL.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"math/rand/v2"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/soillink/soillink/internal/config"
	"github.com/soillink/soillink/internal/logger"
	"github.com/soillink/soillink/internal/secrets"
	"github.com/soillink/soillink/internal/soil"
	"github.com/soillink/soillink/internal/store"
)

func main() {
	var (
		email    = flag.String("email", "demo@soillink.local", "demo account email")
		password = flag.String("password", "demo12345", "demo account password")
		samples  = flag.Int("samples", 8, "number of samples to create")
		admin    = flag.Bool("admin", false, "give the demo account the admin role")
	)
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found (falling back to system env)")
	}
	cfg := config.Load()
	logger.Init(cfg.LogLevel)

	if err := secrets.RequireEnv("DATABASE_URL"); err != nil {
		logger.Error("Cannot seed without a database", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	logger.Info("Seeding database", "url", secrets.MaskURL(cfg.DatabaseURL))
	st, err := store.OpenPostgres(ctx, cfg.DatabaseURL, store.PostgresOptions{})
	if err != nil {
		logger.Error("Failed to open database", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	if err := seed(ctx, st, *email, *password, *samples, *admin); err != nil {
		logger.Error("Seeding failed", "error", err)
		os.Exit(1)
	}
}

func seed(ctx context.Context, st store.Store, email, password string, n int, admin bool) error {
	u, err := st.UserByEmail(ctx, email)
	switch {
	case errors.Is(err, store.ErrNotFound):
		hash, err := store.HashPassword(password)
		if err != nil {
			return err
		}
		role := store.RoleUser
		if admin {
			role = store.RoleAdmin
		}
		u, err = st.CreateUser(ctx, store.User{Name: "Demo Grower", Email: email, PasswordHash: hash, Role: role})
		if err != nil {
			return err
		}
		logger.Info("Created demo user", "user_id", u.ID, "email", email)
	case err != nil:
		return err
	default:
		logger.Info("Demo user already exists", "user_id", u.ID)
	}

	rng := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))
	now := time.Now().UTC()
	for i := range n {
		sub := soil.Submission{Name: fieldNames[i%len(fieldNames)], Location: "Demo farm"}
		// Spread samples over the past weeks so the dashboard has history
		at := now.Add(-time.Duration(n-i) * 72 * time.Hour)
		if _, err := st.CreateSample(ctx, soil.Generate(rng, u.ID, sub, at)); err != nil {
			return err
		}
	}
	logger.Info("Seeded samples", "user_id", u.ID, "count", n)
	return nil
}

var fieldNames = []string{"North field", "South field", "Greenhouse bed", "Orchard row", "Kitchen garden"}
