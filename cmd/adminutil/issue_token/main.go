package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"

	"github.com/sudo-init-do/skillmarket/internal/auth"
	"github.com/sudo-init-do/skillmarket/internal/config"
)

func main() {
	identity := flag.String("wallet", "", "Wallet address to issue a token for")
	ttl := flag.Duration("ttl", 0, "Token lifetime (defaults to JWT_TTL)")
	flag.Parse()

	if *identity == "" {
		log.Fatalf("usage: go run ./cmd/adminutil/issue_token -wallet 0x...")
	}

	// Only the auth settings are needed here, so the full Load validation is skipped.
	_ = godotenv.Load()
	var cfg config.AuthConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.JWTSecret == "" {
		log.Fatalf("JWT_SECRET is required")
	}
	lifetime := cfg.JWTTTL
	if *ttl > 0 {
		lifetime = *ttl
	}

	issuer, err := auth.NewIssuer([]byte(cfg.JWTSecret), lifetime, cfg.AdminWallets)
	if err != nil {
		log.Fatalf("issuer: %v", err)
	}
	tok, err := issuer.Issue(*identity)
	if err != nil {
		log.Fatalf("issue token: %v", err)
	}

	fmt.Printf("identity: %s\nrole:     %s\nexpires:  %s\n\n%s\n",
		tok.Identity, tok.Role, tok.ExpiresAt.Format(time.RFC3339), tok.Token)
}
