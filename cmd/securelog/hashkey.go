package main

import (
	"bufio"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"
)

var (
	hashKeyGenerate bool
	hashKeyCost     int
)

var hashKeyCmd = &cobra.Command{
	Use:   "hash-key",
	Short: "Hash an API key for ingest.auth.api_key_hashes",
	Long: `Print the bcrypt hash of an API key for use in ingest.auth.api_key_hashes.

The key is read from the terminal without echo, or from stdin when it is
not a terminal. With --generate a random key is created and printed along
with its hash; store the key with the producer and the hash in the config.`,
	Args: cobra.NoArgs,
	RunE: runHashKey,
}

func init() {
	hashKeyCmd.Flags().BoolVar(&hashKeyGenerate, "generate", false, "Generate a random key")
	hashKeyCmd.Flags().IntVar(&hashKeyCost, "cost", bcrypt.DefaultCost, "bcrypt cost")
}

func runHashKey(cmd *cobra.Command, args []string) error {
	var key []byte
	var err error

	switch {
	case hashKeyGenerate:
		key, err = generateKey()
	case isTerminal(cmd.InOrStdin()):
		key, err = promptKey(cmd.ErrOrStderr())
	default:
		key, err = readKey(cmd.InOrStdin())
	}
	if err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword(key, hashKeyCost)
	if err != nil {
		return fmt.Errorf("failed to hash key: %w", err)
	}

	out := cmd.OutOrStdout()
	if hashKeyGenerate {
		fmt.Fprintf(out, "key:  %s\n", key)
		fmt.Fprintf(out, "hash: %s\n", hash)
		return nil
	}
	fmt.Fprintln(out, string(hash))
	return nil
}

// generateKey returns 32 random bytes, base64url encoded
func generateKey() ([]byte, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return []byte(base64.RawURLEncoding.EncodeToString(raw)), nil
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// promptKey reads the key twice without echo
func promptKey(prompt io.Writer) ([]byte, error) {
	fd := int(os.Stdin.Fd())

	fmt.Fprint(prompt, "API key: ")
	key, err := term.ReadPassword(fd)
	fmt.Fprintln(prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to read key: %w", err)
	}

	fmt.Fprint(prompt, "Repeat:  ")
	again, err := term.ReadPassword(fd)
	fmt.Fprintln(prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to read key: %w", err)
	}

	if string(key) != string(again) {
		return nil, errors.New("keys do not match")
	}
	return validateKey(key)
}

// readKey reads the first line of r
func readKey(r io.Reader) ([]byte, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read key: %w", err)
	}
	return validateKey([]byte(strings.TrimRight(line, "\r\n")))
}

func validateKey(key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, errors.New("empty key")
	}
	// bcrypt ignores input past 72 bytes
	if len(key) > 72 {
		return nil, errors.New("key must be at most 72 bytes")
	}
	return key, nil
}
