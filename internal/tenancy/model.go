package tenancy

import (
	"strings"
	"time"
)

// NamespacePrefix is prepended to the slug when deriving a tenant's schema
// name. Slugs use hyphens, schema names use underscores; since slugs can
// never contain underscores the mapping stays injective.
const NamespacePrefix = "tenant_"

// Tenant is a control-plane registry record. One row exists per namespace;
// the namespace physically exists whenever Status != deleted.
type Tenant struct {
	ID              int64      `json:"id" db:"id"`
	Slug            string     `json:"slug" db:"slug"`
	NamespaceName   string     `json:"namespace_name" db:"namespace_name"`
	DisplayName     string     `json:"display_name" db:"display_name"`
	Status          Status     `json:"status" db:"status"`
	AdminEmail      *string    `json:"admin_email,omitempty" db:"admin_email"`
	MaxUsers        *int       `json:"max_users,omitempty" db:"max_users"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	StatusChangedAt *time.Time `json:"status_changed_at,omitempty" db:"status_changed_at"`
}

// NewTenant carries the caller-supplied fields of a provisioning request.
type NewTenant struct {
	Slug        string  `json:"slug"`
	DisplayName string  `json:"display_name"`
	AdminEmail  *string `json:"admin_email,omitempty"`
	MaxUsers    *int    `json:"max_users,omitempty"`
}

// DeriveNamespace maps a slug to its schema name. The mapping is a pure
// function of the slug.
func DeriveNamespace(slug string) string {
	return NamespacePrefix + strings.ReplaceAll(slug, "-", "_")
}

func (t *Tenant) IsActive() bool {
	return t.Status == StatusActive
}
