// Command vaultpin generates the VAULT_PIN_* environment values for a new vault PIN.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	pkgauth "github.com/smartcore/vaultgate/pkg/auth"
)

func main() {
	algorithm := flag.String("algorithm", pkgauth.AlgorithmArgon2id, "hash algorithm: argon2id, sha256 or bcrypt")
	flag.Parse()

	pin, err := readPin()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if err := pkgauth.ValidatePin(pin); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	salt, hash, err := pkgauth.HashSecret(*algorithm, pin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Round-trip before printing so a bad hash is never provisioned
	ref, err := pkgauth.NewReferenceSecret(*algorithm, salt, hash)
	if err != nil || !ref.Verify(pin) {
		fmt.Fprintln(os.Stderr, "error: generated material does not verify")
		os.Exit(1)
	}

	fmt.Printf("VAULT_PIN_ALGORITHM=%s\n", *algorithm)
	if salt != "" {
		fmt.Printf("VAULT_PIN_SALT=%s\n", salt)
	}
	fmt.Printf("VAULT_PIN_HASH=%s\n", hash)
}

// readPin prompts twice on a terminal, or reads one line from piped stdin
func readPin() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return "", fmt.Errorf("read pin: %w", err)
		}
		return strings.TrimSpace(line), nil
	}

	fmt.Fprint(os.Stderr, "New vault PIN: ")
	first, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read pin: %w", err)
	}

	fmt.Fprint(os.Stderr, "Confirm PIN: ")
	second, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read pin: %w", err)
	}

	if string(first) != string(second) {
		return "", fmt.Errorf("pins do not match")
	}
	return strings.TrimSpace(string(first)), nil
}
