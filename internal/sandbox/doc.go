// Package sandbox implements the isolated execution context formulas run in.
//
// ARCHITECTURE:
//
// A Boundary owns at most one mounted worker. The worker is a goroutine that
// owns a goja JavaScript runtime; nothing else holds a reference to it. The
// runtime has no filesystem, network, timer or module access, and no host
// object is installed into it apart from a console that records lines.
//
// Message Flow:
//  1. Evaluate stamps the request with Clock.Next() and registers a pending entry
//  2. The request envelope is marshaled to JSON and sent to the worker's inbox
//  3. The worker runs the source, renders the value as expression text
//     (strings quoted, functions as source), and replies with a JSON
//     response envelope on its outbox
//  4. The receive goroutine correlates the reply by evaluation id
//
// Lifecycle: Unmounted -> Loading -> Ready <-> Evaluating.
//
// TIMEOUTS:
//
// The host races every reply against a timer of timeout_ms. Whoever removes
// the pending entry first decides the outcome; a late reply finds no entry
// and is dropped. The worker interrupts the runtime after the same duration
// so a runaway formula cannot wedge the context for later requests.
//
// SCOPE:
//
// The global scope survives across evaluations of one mount. Dependency
// injection depends on this; it is not reset between requests. Bound
// dependency globals can only be changed by a later __bind.
package sandbox
