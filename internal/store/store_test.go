package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/soillink/soillink/internal/circuitbreaker"
	"github.com/soillink/soillink/internal/metrics"
	"github.com/soillink/soillink/internal/soil"
)

// testStore exercises the Store contract against any implementation.
func testStore(t *testing.T, s Store) {
	ctx := context.Background()
	suffix := time.Now().UnixNano()
	email := fmt.Sprintf("Grower%d@Example.com", suffix)

	u, err := s.CreateUser(ctx, User{Name: "Grower", Email: "  " + email, PasswordHash: "x"})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if u.ID == "" || u.Role != RoleUser || u.CreatedAt.IsZero() {
		t.Fatalf("unexpected user %+v", u)
	}
	if u.Email != NormalizeEmail(email) {
		t.Errorf("email not normalized: %q", u.Email)
	}

	if _, err := s.CreateUser(ctx, User{Name: "Again", Email: NormalizeEmail(email), PasswordHash: "x"}); !errors.Is(err, ErrDuplicateEmail) {
		t.Errorf("duplicate email: got %v", err)
	}

	byEmail, err := s.UserByEmail(ctx, email)
	if err != nil || byEmail.ID != u.ID {
		t.Fatalf("UserByEmail: %+v %v", byEmail, err)
	}
	if _, err := s.UserByID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("UserByID(missing) = %v", err)
	}

	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 3; i++ {
		smp, err := s.CreateSample(ctx, soil.Sample{
			UserID: u.ID, Name: fmt.Sprintf("bed %d", i), PHLevel: 6.5, SubmittedAt: base.Add(time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatalf("CreateSample: %v", err)
		}
		if smp.ID == "" || smp.Status != soil.StatusCompleted {
			t.Fatalf("unexpected sample %+v", smp)
		}
		ids = append(ids, smp.ID)
	}

	list, err := s.ListSamples(ctx, u.ID, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != ids[2] || list[1].ID != ids[1] {
		t.Errorf("ListSamples not newest first: %+v", list)
	}
	all, _ := s.ListSamples(ctx, u.ID, 0)
	if len(all) != 3 {
		t.Errorf("ListSamples(0) returned %d", len(all))
	}
	if n, _ := s.CountSamples(ctx, u.ID); n != 3 {
		t.Errorf("CountSamples = %d", n)
	}

	got, err := s.SampleByID(ctx, u.ID, ids[0])
	if err != nil || got.Name != "bed 0" {
		t.Errorf("SampleByID: %+v %v", got, err)
	}

	other, _ := s.CreateUser(ctx, User{Name: "Other", Email: fmt.Sprintf("other%d@example.com", suffix), PasswordHash: "x"})
	if _, err := s.SampleByID(ctx, other.ID, ids[0]); !errors.Is(err, ErrNotFound) {
		t.Errorf("sample visible to another user: %v", err)
	}
	if _, err := s.CreateSample(ctx, soil.Sample{UserID: "nobody", Name: "x"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("sample for unknown user: %v", err)
	}

	users, samples, err := s.Totals(ctx)
	if err != nil || users < 2 || samples < 3 {
		t.Errorf("Totals = %d, %d, %v", users, samples, err)
	}
	if err := s.Ping(ctx); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	testStore(t, NewMemoryStore())
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	s, err := OpenPostgres(context.Background(), dsn, PostgresOptions{})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	testStore(t, s)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatal(err)
	}
	if hash == "correct horse" || !CheckPassword(hash, "correct horse") {
		t.Error("hash does not verify")
	}
	if CheckPassword(hash, "wrong") {
		t.Error("wrong password accepted")
	}
}

func TestIsInfrastructureError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{ErrNotFound, false},
		{fmt.Errorf("lookup: %w", ErrDuplicateEmail), false},
		{context.Canceled, false},
		{errors.New("connection refused"), true},
		{circuitbreaker.ErrCircuitOpen, true},
	}
	for _, tt := range tests {
		if got := isInfrastructureError(tt.err); got != tt.want {
			t.Errorf("isInfrastructureError(%v) = %v", tt.err, got)
		}
	}
}

func TestTotalsSource(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	u, _ := s.CreateUser(ctx, User{Name: "a", Email: "a@example.com"})
	s.CreateSample(ctx, soil.Sample{UserID: u.ID, Name: "x"})

	if err := (TotalsSource{Store: s}).CollectMetrics(ctx); err != nil {
		t.Fatal(err)
	}
	if got := testutil.ToFloat64(metrics.UsersTotal); got != 1 {
		t.Errorf("users gauge = %v", got)
	}
	if got := testutil.ToFloat64(metrics.SoilSamplesTotal); got != 1 {
		t.Errorf("samples gauge = %v", got)
	}
}
