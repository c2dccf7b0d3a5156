package domain

// CredentialPair is the access/refresh token pair issued by POST /auth/login.
// Both halves are secrets: they never appear in logs or fmt output.
type CredentialPair struct {
	AccessToken  SecretString `json:"accessToken"`
	RefreshToken SecretString `json:"refreshToken"`
}

// IsZero reports whether the pair carries no access token.
func (p CredentialPair) IsZero() bool {
	return p.AccessToken.IsEmpty()
}
