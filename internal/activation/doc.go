// Package activation models function calls observed during capture.
//
// An Activation is the in-memory record of one call: its timing, bound
// arguments, globals, return value, the calls it made (in call order), the
// files it touched (in occurrence order), and the variable context the
// slicing engine later uses to answer "what produced this value".
//
// # Threading
//
// Activations are not safe for concurrent mutation. Each capturing goroutine
// owns one Stack and the tree under construction on it; trees built on
// different goroutines are independent.
//
// # Slice stack
//
// A single source line may issue nested calls, as in f(g(x)). The capture
// layer pushes a SliceMarker when it starts evaluating a sub-expression and
// pops it when done, so a completed call can be attributed to the exact call
// expression that triggered it. Push and pop must balance before the call
// finishes; an unbalanced stack is reported as a *SliceStackError while the
// activation's data stays intact.
package activation
