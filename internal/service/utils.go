package service

import "strings"

// sanitizeUTF8 strips invalid byte sequences before persistence; Postgres
// rejects text containing broken UTF-8.
func sanitizeUTF8(s string) string {
	return strings.ToValidUTF8(s, "")
}
