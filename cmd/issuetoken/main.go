// Command issuetoken prints a bearer token for one protocol account, signed
// with the service's configured JWT secret.
package main

import (
	"flag"
	"fmt"
	"lc_escrow/internal/config"
	"lc_escrow/pkg/crypto"
	"os"
	"time"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	account := flag.String("account", "", "account address to authenticate as")
	ttl := flag.Duration("ttl", 0, "token lifetime, defaults to auth.token_ttl")
	flag.Parse()

	if err := run(*configPath, *account, *ttl); err != nil {
		fmt.Fprintf(os.Stderr, "issuetoken: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, account string, ttl time.Duration) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = cfg.Auth.TokenTTL
	}
	signer, err := crypto.NewSigner(cfg.Auth.JWTSecret, nil)
	if err != nil {
		return err
	}
	token, err := signer.IssueToken(account, ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
