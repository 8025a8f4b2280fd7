package instance

import (
	"os"
	"strings"
)

// ID names the running process in logs. FULFILLMENT_INSTANCE_ID wins, then the
// platform dyno name, then the host name, then "<kind>-0".
func ID(kind string) string {
	for _, key := range []string{"FULFILLMENT_INSTANCE_ID", "DYNO"} {
		if id := strings.TrimSpace(os.Getenv(key)); id != "" {
			return id
		}
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	if kind == "" {
		kind = "worker"
	}
	return kind + "-0"
}
