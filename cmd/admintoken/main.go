package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/example/promo-checkout/internal/auth"
)

// Issues an operator bearer token for the /admin endpoints.
func main() {
	email := flag.String("email", "", "operator email to embed in the token")
	ttl := flag.Duration("ttl", 12*time.Hour, "token lifetime")
	flag.Parse()

	if *email == "" {
		log.Fatal("usage: admintoken -email ops@example.com [-ttl 12h]")
	}
	secret := os.Getenv("ADMIN_JWT_SECRET")
	if secret == "" {
		log.Fatal("ADMIN_JWT_SECRET environment variable is required")
	}

	token, expiresAt, err := auth.NewJWTService(secret, *ttl).GenerateToken(*email)
	if err != nil {
		log.Fatalf("failed to sign token: %v", err)
	}

	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires %s\n", expiresAt.Format(time.RFC3339))
}
