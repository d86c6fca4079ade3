package pagination

// Limits bounds page sizes.
type Limits struct {
	// Default applies when the request carries no positive limit.
	Default int
	// Max caps non-privileged callers.
	Max int
	// MaxPrivileged caps privileged callers. Zero means uncapped.
	MaxPrivileged int
}

// DefaultLimits returns a page size of 10 for everybody except privileged callers.
func DefaultLimits() Limits {
	return Limits{
		Default:       10,
		Max:           10,
		MaxPrivileged: 0,
	}
}

// Clamp returns the page size to query for requested by caller.
func (l Limits) Clamp(requested int, caller Caller) int {
	limit := requested
	if limit <= 0 {
		limit = l.Default
	}
	if caller.Privileged() {
		if l.MaxPrivileged > 0 && limit > l.MaxPrivileged {
			limit = l.MaxPrivileged
		}
		return limit
	}
	if l.Max > 0 && limit > l.Max {
		limit = l.Max
	}
	return limit
}

func (l Limits) normalized() Limits {
	if l.Default <= 0 {
		l.Default = 10
	}
	if l.Max <= 0 {
		l.Max = l.Default
	}
	if l.Default > l.Max {
		l.Default = l.Max
	}
	return l
}
