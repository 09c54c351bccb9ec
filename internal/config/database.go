// internal/config/database.go
package config

import (
	"strings"
)

var dsnEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

// DSN renders a libpq keyword/value connection string. Empty values are
// left out and values with spaces or quotes are quoted.
func (d *DatabaseConfig) DSN() string {
	params := [][2]string{
		{"host", d.Host},
		{"port", d.Port},
		{"user", d.User},
		{"password", d.Password},
		{"dbname", d.Database},
		{"sslmode", d.SSLMode},
		{"TimeZone", "UTC"},
	}

	parts := make([]string, 0, len(params))
	for _, p := range params {
		if p[1] == "" {
			continue
		}
		parts = append(parts, p[0]+"="+dsnValue(p[1]))
	}
	return strings.Join(parts, " ")
}

func dsnValue(v string) string {
	if !strings.ContainsAny(v, ` '\`) {
		return v
	}
	return "'" + dsnEscaper.Replace(v) + "'"
}
