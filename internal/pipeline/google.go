package pipeline

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/auth/credentials"
	gspeech "cloud.google.com/go/speech/apiv1"
	"google.golang.org/api/option"

	"github.com/rbright/rehearse/internal/speech"
)

const (
	cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"
	speechEndpointPort = 443
)

// dialGoogle opens StreamingRecognize with detected credentials. A
// configured credentials file wins over Application Default Credentials.
func dialGoogle(cfg Config) openStreamFunc {
	return func(ctx context.Context) (recognizeStream, func() error, error) {
		opts, err := clientOptions(cfg)
		if err != nil {
			return nil, nil, err
		}

		client, err := gspeech.NewClient(ctx, opts...)
		if err != nil {
			return nil, nil, speech.Unavailablef("create speech client: %w", err)
		}
		stream, err := client.StreamingRecognize(ctx)
		if err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("open streaming recognize: %w", err)
		}
		return stream, client.Close, nil
	}
}

func clientOptions(cfg Config) ([]option.ClientOption, error) {
	creds, err := credentials.DetectDefault(&credentials.DetectOptions{
		CredentialsFile: strings.TrimSpace(cfg.CredentialsFile),
		Scopes:          []string{cloudPlatformScope},
	})
	if err != nil {
		return nil, speech.Unavailablef("detect speech credentials: %w", err)
	}

	opts := []option.ClientOption{option.WithAuthCredentials(creds)}
	if endpoint := regionalEndpoint(cfg.Location); endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	return opts, nil
}

// regionalEndpoint returns the endpoint for a non-global location.
func regionalEndpoint(location string) string {
	location = strings.TrimSpace(location)
	if location == "" || location == DefaultLocation {
		return ""
	}
	return fmt.Sprintf("%s-speech.googleapis.com:%d", location, speechEndpointPort)
}

// CheckCredentials reports whether speech credentials can be detected and
// returns the endpoint that would be dialed.
func CheckCredentials(cfg Config) (string, error) {
	if _, err := clientOptions(cfg); err != nil {
		return "", err
	}
	if endpoint := regionalEndpoint(cfg.Location); endpoint != "" {
		return endpoint, nil
	}
	return "speech.googleapis.com:443", nil
}
