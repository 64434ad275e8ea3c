package webgate

import "context"

// Directory resolves usernames to stored principals. Implementations must
// be safe for concurrent use; the engine calls Lookup on every credential
// login and every session resolution.
type Directory interface {
	// Lookup returns the principal for username, or (nil, nil) when no such
	// account exists. A non-nil error means the backend failed, not that
	// the account is missing.
	Lookup(ctx context.Context, username string) (*Principal, error)
}

// InMemoryDirectory is a fixed account table, resolved at build time.
// Suited to tests, demos, and deployments with a handful of accounts.
type InMemoryDirectory struct {
	principals map[string]*Principal
}

// NewInMemoryDirectory copies the given principals into a directory.
// Duplicate usernames keep the last entry.
func NewInMemoryDirectory(principals []Principal) *InMemoryDirectory {
	table := make(map[string]*Principal, len(principals))
	for i := range principals {
		p := principals[i]
		p.Roles = append([]string(nil), p.Roles...)
		table[p.Username] = &p
	}
	return &InMemoryDirectory{principals: table}
}

// Lookup implements [Directory].
func (d *InMemoryDirectory) Lookup(_ context.Context, username string) (*Principal, error) {
	p, ok := d.principals[username]
	if !ok {
		return nil, nil
	}
	out := *p
	out.Roles = append([]string(nil), p.Roles...)
	return &out, nil
}
