package tenancy

import "regexp"

var (
	slugPattern      = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)
	namespacePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{2,62}$`)
)

// reservedNames can never be used as a slug or namespace. The list covers
// Postgres system schemas plus identifiers the platform claims for itself.
var reservedNames = map[string]bool{
	"public":             true,
	"pg_catalog":         true,
	"information_schema": true,
	"pg_toast":           true,
	"admin":              true,
	"root":               true,
	"system":             true,
	"postgres":           true,
	"template0":          true,
	"template1":          true,
	"platform":           true,
	"api":                true,
	"www":                true,
	"app":                true,
	"health":             true,
	"docs":               true,
}

// ValidateSlug checks the user-facing tenant identifier: lowercase letters,
// digits and hyphens, starting and ending alphanumeric, at most 63 chars.
func ValidateSlug(slug string) error {
	if slug == "" {
		return &ValidationError{Field: "slug", Reason: "must not be empty"}
	}
	if reservedNames[slug] {
		return &ValidationError{Field: "slug", Reason: "name is reserved"}
	}
	if !slugPattern.MatchString(slug) {
		return &ValidationError{
			Field:  "slug",
			Reason: "must contain only lowercase letters, digits and hyphens, and start/end alphanumeric",
		}
	}
	return nil
}

// ValidateNamespace checks a derived schema name before it is ever
// interpolated into DDL or a search_path statement.
func ValidateNamespace(namespace string) error {
	if namespace == "" {
		return &ValidationError{Field: "namespace", Reason: "must not be empty"}
	}
	if reservedNames[namespace] {
		return &ValidationError{Field: "namespace", Reason: "name is reserved"}
	}
	if !namespacePattern.MatchString(namespace) {
		return &ValidationError{
			Field:  "namespace",
			Reason: "must start with a letter and contain only lowercase letters, digits and underscores (3-63 chars)",
		}
	}
	return nil
}
