package dmstorage

// probe loads a candidate value from one source. It returns "" when the
// source has nothing to offer.
type probe[S comparable] struct {
	source S
	load   func() string
}

// cachedValue resolves a value from an ordered list of sources. The first
// accepted value wins and is kept until invalidate is called. When no source
// yields a value, the next get probes again.
type cachedValue[S comparable] struct {
	probes []probe[S]
	accept func(string) bool
	none   S

	value  string
	source S
}

func newCachedValue[S comparable](none S, accept func(string) bool, probes ...probe[S]) *cachedValue[S] {
	if accept == nil {
		accept = func(v string) bool { return v != "" }
	}
	return &cachedValue[S]{
		probes: probes,
		accept: accept,
		none:   none,
		source: none,
	}
}

func (c *cachedValue[S]) get() (string, S) {
	if c.source != c.none {
		return c.value, c.source
	}
	for _, p := range c.probes {
		if v := p.load(); v != "" && c.accept(v) {
			c.value, c.source = v, p.source
			break
		}
	}
	return c.value, c.source
}

func (c *cachedValue[S]) set(value string, source S) {
	c.value, c.source = value, source
}

func (c *cachedValue[S]) invalidate() {
	c.value, c.source = "", c.none
}
