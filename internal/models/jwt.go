package models

// JWTClaims represents the claims extracted from a verified access token
type JWTClaims struct {
	Sub   string `json:"sub"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role,omitempty"` // custom claim, empty means reporter
	Exp   int64  `json:"exp"`
	Iss   string `json:"iss"`
}
