package framework

// Capabilities is a list of strings naming the protocol features an
// environment supports along one axis (transports, security schemes, or
// stream multiplexers). The meanings of the strings are defined by the
// matrix configuration.
type Capabilities []string

// Has returns true if the specified string appears in the list.
func (cs Capabilities) Has(name string) bool {
	for _, c := range cs {
		if c == name {
			return true
		}
	}
	return false
}

// Intersect returns the elements of cs that also appear in other, preserving
// the order of cs.
func (cs Capabilities) Intersect(other Capabilities) Capabilities {
	var ret Capabilities
	for _, c := range cs {
		if other.Has(c) {
			ret = append(ret, c)
		}
	}
	return ret
}
