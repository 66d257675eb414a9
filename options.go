package setsketch

// Option is a functional option for configuring a Filter at construction.
type Option func(*filterConfig)

type filterConfig struct {
	family     HashFamilyID
	atomicAdds bool
}

func defaultFilterConfig() *filterConfig {
	return &filterConfig{
		family: FamilyXXH3,
	}
}

// WithHashFamily selects the 64-bit hash family used for probes.
// Default is FamilyXXH3.
func WithHashFamily(id HashFamilyID) Option {
	return func(c *filterConfig) {
		c.family = id
	}
}

// WithAtomicInserts makes AddHash use atomic fetch-OR word writes and
// MayContain use atomic loads, so multiple goroutines may insert into
// (and query) the same filter concurrently. Membership queries racing
// with inserts may observe stale zeros, which only produces conservative
// false negatives relative to in-flight inserts.
func WithAtomicInserts() Option {
	return func(c *filterConfig) {
		c.atomicAdds = true
	}
}
