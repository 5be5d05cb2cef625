// Package security masks credentials before configuration is shown or logged.
package security

import (
	"net/url"
	"strings"

	"synth-exchange/internal/config"
)

// MaskCredential masks a credential, keeping a few characters at each end
// for recognition.
func MaskCredential(value string) string {
	if len(value) == 0 {
		return ""
	}
	if len(value) <= 4 {
		return strings.Repeat("*", len(value))
	}
	if len(value) <= 8 {
		return value[:2] + strings.Repeat("*", len(value)-2)
	}
	return value[:4] + strings.Repeat("*", len(value)-8) + value[len(value)-4:]
}

// RedactURL hides userinfo and query values in raw. Unparseable input is
// masked whole.
func RedactURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return MaskCredential(raw)
	}
	if u.User != nil {
		u.User = url.User("***")
	}
	if u.RawQuery != "" {
		q := u.Query()
		for k := range q {
			q.Set(k, "***")
		}
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// RedactConfig returns a copy of cfg safe to print.
func RedactConfig(cfg config.Config) config.Config {
	cfg.Redis.Password = MaskCredential(cfg.Redis.Password)
	cfg.Notifications.Webhook.URL = RedactURL(cfg.Notifications.Webhook.URL)
	return cfg
}
