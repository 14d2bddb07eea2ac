// Package store persists users and their soil samples.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/soillink/soillink/internal/soil"
)

var (
	// ErrNotFound is returned when a user or sample does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateEmail is returned when registering an email twice.
	ErrDuplicateEmail = errors.New("email is already registered")
)

// Roles.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is a registered account. PasswordHash is a bcrypt hash.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Store is the persistence boundary used by the HTTP handlers.
type Store interface {
	// CreateUser assigns ID and CreatedAt, lower-cases the email and
	// rejects duplicates with ErrDuplicateEmail.
	CreateUser(ctx context.Context, u User) (User, error)
	UserByEmail(ctx context.Context, email string) (User, error)
	UserByID(ctx context.Context, id string) (User, error)

	// CreateSample assigns the sample ID.
	CreateSample(ctx context.Context, s soil.Sample) (soil.Sample, error)
	// SampleByID only returns samples owned by userID.
	SampleByID(ctx context.Context, userID, id string) (soil.Sample, error)
	// ListSamples returns the user's samples newest first; limit 0 means all.
	ListSamples(ctx context.Context, userID string, limit int) ([]soil.Sample, error)
	CountSamples(ctx context.Context, userID string) (int, error)
	// Totals counts every user and sample.
	Totals(ctx context.Context) (users, samples int, err error)

	Ping(ctx context.Context) error
	Close() error
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
