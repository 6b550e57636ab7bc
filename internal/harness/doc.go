// Package harness runs scenario suites against function components.
//
// A suite declares one function and the scenarios that exercise it. Each
// scenario becomes a call expression, is evaluated through the engine on a
// sandbox boundary, and is compared to its expected result.
//
// # Suite Format
//
// Suites are YAML files with the following structure:
//
//	name: clamp
//	description: "Clamp a value into a range"
//	component:
//	  arguments:
//	    - x
//	    - name: lo
//	      default: "0"
//	    - name: hi
//	      default: "1"
//	  body: |
//	    const v = x < lo ? lo : x
//	    v > hi ? hi : v
//	scenarios:
//	  - description: below range
//	    values: { x: "-3" }
//	    expected: "0"
//	  - description: over a series
//	    values:
//	      x: { value: [0.5, 2], usage: iterate_over }
//	    expected: { labels: [0.5, 2], results: [0.5, 1] }
//
// Scalar values are source text and are used verbatim; "'abc'" is a string,
// "abc" is an identifier. Sequences and mappings are written as JSON.
//
// # Iteration
//
// At most one value per scenario may use iterate_over. Its value must be an
// array; the function is called once per element and the scenario result is
// a labeled series whose labels are the array. Results that are not finite
// numbers become null.
//
// # Deterministic Testing
//
// RunWithGolden executes a suite on a fresh boundary with a deterministic
// wall clock (testutil.DeterministicClock) and compares a canonical snapshot
// of the outcome against testdata/golden/<suite>.golden.
package harness
