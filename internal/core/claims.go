package core

// ClaimSet is the full decoded claim set of a verified identity token.
// It is produced once per exchange call, owned by that call, and never
// cached or shared. Values are the usual JSON shapes: string, float64,
// bool, []any, map[string]any.
type ClaimSet map[string]any

// String returns the named claim as a string, or "" if absent or not a string.
func (c ClaimSet) String(name string) string {
	s, _ := c[name].(string)
	return s
}

// Issuer returns the 'iss' claim.
func (c ClaimSet) Issuer() string {
	return c.String("iss")
}

// Subject returns the 'sub' claim.
func (c ClaimSet) Subject() string {
	return c.String("sub")
}
