// Package harness records synthetic trials described in YAML fixtures.
//
// A fixture describes a call tree the way a capture would have observed it:
// which functions ran, in what order, with which arguments and return
// values, and which files they opened. The harness plays the fixture through
// an activation.Stack on a deterministic clock, saves the trial to a
// provenance store, reads it back and checks the fixture's assertions
// against what was persisted.
//
// # Fixture Format
//
//	name: pipeline
//	description: "load, clean and plot a CSV"
//	script: analysis.sh
//	files:
//	  in.csv: "a,b\n1,2\n"
//	root:
//	  name: main
//	  line: 1
//	  calls:
//	    - name: load
//	      line: 3
//	      arguments: { path: in.csv }
//	      files:
//	        - { name: in.csv, mode: r }
//	      returns: rows
//	      assign: data
//	  returns: 0
//	assertions:
//	  - type: call_order
//	    calls: [main, load]
//	  - type: file_snapshot
//	    file: in.csv
//	    content: "a,b\n1,2\n"
//
// Fixtures are decoded strictly (unknown keys are errors), validated
// against an embedded CUE schema and checked by CheckFixture before they
// run.
//
// # Assertion Types
//
//   - call_order: the depth-first call sequence starts with the given names
//   - call_count: a function was called exactly N times
//   - returns: the first call to a function returned the given value
//   - file_snapshot: the last snapshot of a file has the given content
//   - status: the trial status (finished or unfinished)
//   - query: the first row of a SQL query contains the given columns
//
// # Determinism
//
// Every Enter, Return and file access advances the clock by step_ms
// (default 1ms). Trial ids come from the fixture or a fixed default, so
// the same fixture always produces the same trace snapshot.
package harness
