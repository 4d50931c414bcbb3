package store

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

// maxSchemaNameLength is Postgres's identifier length ceiling (63 bytes);
// names longer than this are truncated by DeriveSchemaName.
const maxSchemaNameLength = 63

// truncatedPrefixLength plus a "_" separator and an 8-hex-char hash suffix
// is 54+1+8 = 63 characters, exactly maxSchemaNameLength.
const truncatedPrefixLength = 54

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// DeriveSchemaName maps a DID to a deterministic, safe Postgres schema
// name (spec §3): lowercase, non-alphanumeric runs collapse to a single
// underscore, a leading digit gets a safe prefix, and names over 63 chars
// are truncated to 54 with "_" and an 8-character hex hash of the full
// sanitized name appended. Pure and deterministic; memoize per process if called on
// a hot path.
func DeriveSchemaName(did string) string {
	sanitized := nonAlnum.ReplaceAllString(strings.ToLower(did), "_")
	sanitized = strings.Trim(sanitized, "_")
	if sanitized == "" {
		sanitized = "default"
	}
	if sanitized[0] >= '0' && sanitized[0] <= '9' {
		sanitized = "did_" + sanitized
	}

	if len(sanitized) <= maxSchemaNameLength {
		return sanitized
	}

	sum := sha256.Sum256([]byte(sanitized))
	hash := hex.EncodeToString(sum[:])[:8]
	prefix := sanitized[:truncatedPrefixLength]
	return prefix + "_" + hash
}

// sanitizeIdentifier restricts a string to alphanumeric and underscore
// characters before it is interpolated into DDL/DML that cannot use bind
// parameters for identifiers (schema and table names).
func sanitizeIdentifier(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
