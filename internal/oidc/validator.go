package oidc

import (
	"fmt"
	"slices"
	"strings"

	"github.com/al-bashkir/securelog/internal/config"
)

// DefaultRoleClaim is the claim path used when none is configured.
const DefaultRoleClaim = "realm_access.roles"

// Validator enforces role requirements on verified token claims.
type Validator struct {
	rolePath      []string
	requiredRoles []string
}

// NewValidator creates a validator for the role settings in cfg.
func NewValidator(cfg *config.AuthConfig) *Validator {
	claim := cfg.RoleClaim
	if claim == "" {
		claim = DefaultRoleClaim
	}
	return &Validator{
		rolePath:      strings.Split(claim, "."),
		requiredRoles: slices.Clone(cfg.RequiredRoles),
	}
}

// ValidateRoles checks that the producer has at least one of the required
// roles. It is a no-op when no roles are configured.
func (v *Validator) ValidateRoles(claims map[string]interface{}) error {
	if len(v.requiredRoles) == 0 {
		return nil
	}

	roles, err := v.roles(claims)
	if err != nil {
		return fmt.Errorf("failed to extract roles: %w", err)
	}

	for _, want := range v.requiredRoles {
		if slices.Contains(roles, want) {
			return nil
		}
	}

	return fmt.Errorf("producer does not have required roles: %v", v.requiredRoles)
}

// roles follows the role claim path through nested objects and returns the
// string members of the array it ends at. Other members are ignored.
func (v *Validator) roles(claims map[string]interface{}) ([]string, error) {
	var node interface{} = claims
	for i, part := range v.rolePath {
		obj, ok := node.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("claim %q is not an object", strings.Join(v.rolePath[:i], "."))
		}
		if node, ok = obj[part]; !ok {
			return nil, fmt.Errorf("claim %q not found", strings.Join(v.rolePath[:i+1], "."))
		}
	}

	claim := strings.Join(v.rolePath, ".")
	switch list := node.(type) {
	case []string:
		return list, nil
	case []interface{}:
		roles := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				roles = append(roles, s)
			}
		}
		return roles, nil
	default:
		return nil, fmt.Errorf("claim %q is not a string array", claim)
	}
}
