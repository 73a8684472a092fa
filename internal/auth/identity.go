package auth

// Identity is what an external sign-in provider asserts about a user. It
// carries facts only; linking and session decisions happen elsewhere.
type Identity struct {
	Provider       string // registry name, e.g. "google"
	ProviderUserID string // provider-scoped subject
	Email          string
	EmailVerified  bool
	Name           string
	Picture        string
}
