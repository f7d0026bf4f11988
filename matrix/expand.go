package matrix

import "github.com/p2p-interop/harness/framework"

// Expand produces every test case declared by the spec, in declaration order:
// environment pairs in the order the environments are listed (every ordered
// pair, including an environment against itself), crossed with the spec's
// tuples or, if none were declared, with the union of the capabilities
// advertised by the two sides. Cases whose tuple is not supported by both
// sides are still produced; the runner records them as skipped so that the
// report names every cell.
func Expand(spec *Spec) []TestCase {
	var cases []TestCase
	for _, dialer := range spec.Environments {
		for _, listener := range spec.Environments {
			tuples := spec.Tuples
			if len(tuples) == 0 {
				tuples = pairTuples(dialer, listener)
			}
			for _, tuple := range tuples {
				cases = append(cases, TestCase{
					Dialer:    dialer,
					Listener:  listener,
					Transport: tuple.Transport,
					Security:  tuple.Security,
					Muxer:     tuple.Muxer,
				})
			}
		}
	}
	return cases
}

// pairTuples enumerates the capability tuples worth testing for one ordered
// environment pair: the union of both sides' transports, crossed with the
// union of securities and muxers for negotiated transports. Using the union
// rather than the intersection keeps unsupported combinations visible in the
// report as skips.
func pairTuples(dialer, listener *Environment) []Tuple {
	transports := union(dialer.Capabilities.Transports, listener.Capabilities.Transports)
	securities := union(dialer.Capabilities.Securities, listener.Capabilities.Securities)
	muxers := union(dialer.Capabilities.Muxers, listener.Capabilities.Muxers)

	var tuples []Tuple
	for _, transport := range transports {
		t := Transport(transport)
		if t.Standalone() {
			// Security and muxing are built into the transport. The tuple
			// still carries representative values so case IDs stay uniform.
			tuples = append(tuples, Tuple{Transport: t, Security: SecurityNoise, Muxer: MuxerYamux})
			continue
		}
		for _, security := range securities {
			for _, muxer := range muxers {
				tuples = append(tuples, Tuple{
					Transport: t,
					Security:  Security(security),
					Muxer:     Muxer(muxer),
				})
			}
		}
	}
	return tuples
}

func union(a, b framework.Capabilities) framework.Capabilities {
	ret := append(framework.Capabilities(nil), a...)
	for _, c := range b {
		if !ret.Has(c) {
			ret = append(ret, c)
		}
	}
	return ret
}
