package auth

import "github.com/golang-jwt/jwt/v5"

// Claims is the JWT claims structure for comptoir sessions. It embeds
// jwt.RegisteredClaims for the standard fields (exp, iat) and adds the
// account identity carried through the BO API.
type Claims struct {
	jwt.RegisteredClaims
	AccountID string `json:"account_id"`
	Username  string `json:"username"`
	Group     string `json:"group"`
}
