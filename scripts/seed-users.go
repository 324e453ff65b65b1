package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/starterkit/starterkit/internal/model"
	"github.com/starterkit/starterkit/internal/repository"
	"github.com/starterkit/starterkit/internal/service"
)

type seededUser struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

func main() {
	var (
		databaseURL = flag.String("database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
		emailsInput = flag.String("emails", "", "Comma-separated emails to insert")
		count       = flag.Int("count", 0, "Number of generated users to insert (seed+N@domain)")
		domain      = flag.String("domain", "example.com", "Domain for generated emails")
		format      = flag.String("format", "plain", "Output format: plain or json")
	)
	flag.Parse()

	if *databaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	emails := buildEmails(*emailsInput, *count, *domain)
	if len(emails) == 0 {
		fmt.Fprintln(os.Stderr, "nothing to seed; pass -emails or -count")
		os.Exit(1)
	}
	for _, email := range emails {
		if err := service.ValidateEmail(email); err != nil {
			fmt.Fprintf(os.Stderr, "invalid email %q: %v\n", email, err)
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	repo, err := repository.New(ctx, *databaseURL,
		repository.WithMaxConns(2),
		repository.WithMinConns(0),
	)
	if err != nil {
		fmt.Fprintln(os.Stderr, "connect database:", err)
		os.Exit(1)
	}
	defer repo.Close()

	svc := service.NewUserService(repo, nil, nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	created := make([]*model.User, 0, len(emails))
	for _, email := range emails {
		user, err := svc.CreateUser(ctx, service.CreateUserInput{Email: email})
		if err != nil {
			fmt.Fprintf(os.Stderr, "create user %s: %v\n", email, err)
			os.Exit(1)
		}
		created = append(created, user)
	}

	switch strings.ToLower(*format) {
	case "plain":
		for _, u := range created {
			fmt.Printf("%d\t%s\n", u.ID, u.Email)
		}
	case "json":
		out := make([]seededUser, len(created))
		for i, u := range created {
			out[i] = seededUser{ID: u.ID, Email: u.Email, CreatedAt: u.CreatedAt}
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
	default:
		fmt.Fprintln(os.Stderr, "invalid format; use plain or json")
		os.Exit(1)
	}

	if total, err := repo.CountUsers(ctx); err == nil {
		fmt.Fprintf(os.Stderr, "seeded %d users, %d in total\n", len(created), total)
	}
}

func buildEmails(input string, count int, domain string) []string {
	var emails []string
	for _, part := range strings.Split(input, ",") {
		if email := strings.TrimSpace(part); email != "" {
			emails = append(emails, email)
		}
	}

	stamp := time.Now().UTC().Format("20060102150405")
	for i := 1; i <= count; i++ {
		emails = append(emails, fmt.Sprintf("seed+%s-%d@%s", stamp, i, domain))
	}
	return emails
}
