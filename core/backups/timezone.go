package backups

import (
	"os"
	"strings"
	"time"

	"meridian-cmp/config"
)

// scheduleLocation resolves the timezone cron expressions are evaluated
// in: configured zone first, then TZ, then UTC.
func scheduleLocation(cfg *config.AppConfig) *time.Location {
	zone := ""
	if cfg != nil {
		zone = strings.TrimSpace(cfg.Timezone)
	}
	if zone == "" {
		zone = strings.TrimSpace(os.Getenv("TZ"))
	}
	if zone != "" {
		if loc, err := time.LoadLocation(zone); err == nil {
			return loc
		}
	}
	return time.UTC
}
