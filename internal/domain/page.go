package domain

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// Page is a keyset page request: Cursor is the last id of the previous page.
type Page struct {
	Limit  int
	Cursor string
}

// Normalize clamps Limit into [1, MaxPageLimit].
func (p Page) Normalize() Page {
	switch {
	case p.Limit <= 0:
		p.Limit = DefaultPageLimit
	case p.Limit > MaxPageLimit:
		p.Limit = MaxPageLimit
	}
	return p
}
