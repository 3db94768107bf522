package instance

import (
	"os"

	"github.com/angelmondragon/storefront-backend/pkg/env"
)

// ID identifies this process in logs and lock owners. STOREFRONT_INSTANCE_ID
// wins, then the platform dyno name, then the hostname.
func ID(service string) string {
	if id := env.First("", "STOREFRONT_INSTANCE_ID", "DYNO"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return service + "-0"
}
