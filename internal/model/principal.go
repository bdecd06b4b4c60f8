package model

import "strings"

// Principal is the authenticated actor supplied by the auth layer.
type Principal struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

// SystemPrincipal performs background work such as the purge sweep.
var SystemPrincipal = Principal{ID: "system", DisplayName: "System", Role: "system"}

func (p Principal) Name() string {
	if name := strings.TrimSpace(p.DisplayName); name != "" {
		return name
	}
	return p.ID
}

func (p Principal) Valid() bool {
	return strings.TrimSpace(p.ID) != ""
}

type AuthClaims struct {
	UserID  string `json:"sub"`
	Role    string `json:"role"`
	TokenID string `json:"jti"`
}
