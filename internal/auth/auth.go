// Package auth resolves the bearer credential attached to service requests.
package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// DefaultTokenEnv is the environment variable consulted before the token file.
const DefaultTokenEnv = "REHEARSE_TOKEN"

// ErrNoCredential indicates no credential source produced a token.
var ErrNoCredential = errors.New("no credential configured")

// Provider yields the current credential for one request.
type Provider interface {
	Token(ctx context.Context) (string, error)
}

// Static is a fixed credential.
type Static string

func (s Static) Token(context.Context) (string, error) {
	token := strings.TrimSpace(string(s))
	if token == "" {
		return "", ErrNoCredential
	}
	return token, nil
}

// Resolver reads the credential on every call: the environment variable wins,
// otherwise the token file is used.
type Resolver struct {
	Env  string
	File string

	lookupEnv func(string) (string, bool)
	readFile  func(string) ([]byte, error)
}

// NewResolver constructs a resolver for the given env var and token file.
func NewResolver(env string, file string) *Resolver {
	if strings.TrimSpace(env) == "" {
		env = DefaultTokenEnv
	}
	return &Resolver{
		Env:       env,
		File:      file,
		lookupEnv: os.LookupEnv,
		readFile:  os.ReadFile,
	}
}

func (r *Resolver) Token(context.Context) (string, error) {
	token, _, err := r.Resolve()
	return token, err
}

// Resolve returns the token plus a description of where it came from.
func (r *Resolver) Resolve() (string, string, error) {
	if value, ok := r.lookupEnv(r.Env); ok {
		if token := strings.TrimSpace(value); token != "" {
			return token, "env " + r.Env, nil
		}
	}

	if strings.TrimSpace(r.File) == "" {
		return "", "", fmt.Errorf("%w: set %s or configure auth.token_file", ErrNoCredential, r.Env)
	}

	data, err := r.readFile(r.File)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", "", fmt.Errorf("%w: set %s or create %s", ErrNoCredential, r.Env, r.File)
		}
		return "", "", fmt.Errorf("read token file %q: %w", r.File, err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", "", fmt.Errorf("%w: token file %s is empty", ErrNoCredential, r.File)
	}
	return token, "file " + r.File, nil
}
