// Package framework contains low-level test harness infrastructure that is not
// specific to any one protocol capability: loggers that capture per-case output,
// and the capability-list type shared by the matrix model and the drivers.
//
// The general model is:
//
// 1. The harness launches two participants (a listener and a dialer) for every
// matrix cell, in whatever execution environment the cell calls for.
//
// 2. Participants bootstrap through an external rendezvous store and then run a
// round-trip probe over the negotiated connection.
//
// 3. All output a participant produces is captured per test case, so that the
// runner can attach it to the case result and reporters can choose whether to
// display it.
package framework
