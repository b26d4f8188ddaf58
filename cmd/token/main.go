package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/wolfman30/salon-scheduler/internal/http/middleware"
	"github.com/wolfman30/salon-scheduler/internal/tenancy"
)

// Mints a bearer token for calling the API when AUTH_JWT_SECRET is set.
//
//	go run ./cmd/token -org salon-1 -kind agent -id concierge
func main() {
	_ = godotenv.Load()

	orgID := flag.String("org", "", "organization the token is scoped to")
	kind := flag.String("kind", "staff", "actor kind: staff, agent or system")
	id := flag.String("id", "", "actor id recorded on audit entries")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	secret := os.Getenv("AUTH_JWT_SECRET")
	if secret == "" {
		fmt.Fprintln(os.Stderr, "AUTH_JWT_SECRET environment variable not set")
		os.Exit(1)
	}
	if *orgID == "" || *id == "" {
		flag.Usage()
		os.Exit(2)
	}

	token, err := middleware.IssueToken(secret, tenancy.Actor{Kind: *kind, ID: *id}, *orgID, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sign token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
