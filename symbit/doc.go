/*
Package symbit provides the four-attribute symbolic bit used throughout
pinisim to track, for every wire of every cycle, a concrete value together
with the information needed to decide non-interference: whether the value
is independent of secrets, whether it is a specific fresh random bit, and
which secret shares it may depend on with and without glitches.

The package is pure value semantics: every transfer function takes
SymbolicBit values and returns a new SymbolicBit, never mutating its
arguments. Callers (the cells and pinisim packages) are responsible for any
bookkeeping that spans more than a single gate evaluation, such as
random-id reuse across a cycle.
*/
package symbit
