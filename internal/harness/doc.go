// Package harness runs a parser conformance check end to end.
//
// One Run is one invocation of the tool:
//
//  1. Validate the single input (--top) or load the fixture sets.
//  2. Build the parser once.
//  3. Stop (build-only), run the single input, or run every fixture in order.
//  4. Classify each exit code, append it to the batch log and, when a
//     history store is attached, record the run.
//
// Nothing is built when step 1 fails, and nothing runs when the build
// fails. The batch log is created only after a successful build.
//
// # Scenario Format
//
// The harness is itself tested with YAML scenarios:
//
//	name: accept_passes
//	description: "An accepted fixture the parser accepts passes"
//	tree: |
//	  -- test.c --
//	  int main(void) { return 0; }
//	  -- yes/y_basic_ok.json --
//	  accept
//	  -- no/.keep --
//	options:
//	  restrict: basic
//	expect:
//	  records:
//	    - fixture: y_basic_ok.json
//	      verdict: Pass
//	  report: true
//
// Fixture contents drive the fake parser from internal/testutil: a file
// starting with "accept" exits 0, "reject" exits 2, anything else exits 1.
//
// # Deterministic Testing
//
// Scenario runs use testutil.DeterministicClock and testutil.FixedIDGenerator
// so batch log names, run IDs and golden summaries are reproducible.
package harness
