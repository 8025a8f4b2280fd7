// Command admin-password manages the admin console credential.
//
// Without flags it reads a password from the first line of stdin and prints
// an Argon2id hash for FULFILLMENT_ADMIN_PASSWORD_HASH. With -verify it checks
// the stdin password against the configured hash instead and reports whether
// the hash should be regenerated with the current cost settings.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"

	"github.com/angelmondragon/digital-fulfillment/pkg/config"
	"github.com/angelmondragon/digital-fulfillment/pkg/security"
)

func main() {
	verify := flag.Bool("verify", false, "verify stdin against FULFILLMENT_ADMIN_PASSWORD_HASH")
	flag.Parse()

	var pw config.PasswordConfig
	if err := envconfig.Process(config.EnvPrefix, &pw); err != nil {
		exitf("parsing password config: %v", err)
	}
	password, err := readPassword(os.Stdin)
	if err != nil {
		exitf("reading password from stdin: %v", err)
	}

	if !*verify {
		hash, err := security.HashPassword(password, pw)
		if err != nil {
			exitf("hashing password: %v", err)
		}
		fmt.Println(hash)
		return
	}

	var admin config.AdminConfig
	if err := envconfig.Process(config.EnvPrefix, &admin); err != nil {
		exitf("parsing admin config: %v", err)
	}
	hash := strings.TrimSpace(admin.PasswordHash)
	if !security.LooksLikeArgonHash(hash) {
		exitf("FULFILLMENT_ADMIN_PASSWORD_HASH is not an argon2id hash")
	}
	ok, err := security.VerifyPassword(password, hash)
	if err != nil {
		exitf("verifying password: %v", err)
	}
	if !ok {
		exitf("password does not match")
	}
	stale, err := security.NeedsRehash(hash, pw)
	if err != nil {
		exitf("inspecting hash: %v", err)
	}
	fmt.Println("password matches")
	if stale {
		fmt.Println("hash parameters differ from the configured ones; consider regenerating it")
	}
}

func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", fmt.Errorf("empty password")
	}
	return password, nil
}

func exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
