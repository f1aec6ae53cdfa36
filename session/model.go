package session

// Session is the server-held record behind an opaque session identifier.
//
// CreatedAt never changes after creation. ExpiresAt is the idle deadline and
// slides forward on each validated access, capped at CreatedAt plus the
// store's absolute lifetime. All timestamps are unix seconds.
type Session struct {
	SessionID   string
	PrincipalID string
	Roles       []string

	CreatedAt  int64
	ExpiresAt  int64
	LastSeenAt int64
	Revoked    bool
}
