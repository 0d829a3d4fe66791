package domain

// SecurityContext carries the caller identity presented with every privileged
// operation. Handlers build it from the authenticated request; services treat
// it as untrusted input until checked against stored session state.
type SecurityContext struct {
	UserID        uint
	Username      string
	IP            string
	UserAgent     string
	SecurityLevel string
	Permissions   []string
	Metadata      map[string]string
}

func (c SecurityContext) HasPermission(required string) bool {
	for _, p := range c.Permissions {
		if p == required {
			return true
		}
	}
	return false
}
