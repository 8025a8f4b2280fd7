// Package gcp holds the pieces shared by the Google Cloud clients.
package gcp

import (
	"strings"

	"google.golang.org/api/option"

	"github.com/angelmondragon/digital-fulfillment/pkg/config"
)

// ClientOptions picks credentials for a Google Cloud client. Inline JSON wins
// over a credentials file; with neither set the library falls back to
// application default credentials, and to the emulator when
// PUBSUB_EMULATOR_HOST is set.
func ClientOptions(cfg config.GCPConfig) []option.ClientOption {
	if js := strings.TrimSpace(cfg.CredentialsJSON); js != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(js))}
	}
	if file := strings.TrimSpace(cfg.ApplicationCredentials); file != "" {
		return []option.ClientOption{option.WithCredentialsFile(file)}
	}
	return nil
}
