// Package harness runs declarative stream scenarios against the test
// orchestrator and checks their outcome.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: drop_delay
//	description: "Drop delay extends the run past the last dequeue"
//	seed: 1
//	clock_period: 10
//	stream:
//	  items: 10          # items pushed by the test body
//	  arrival_gap: 1     # rising edges between arrivals
//	  jitter: 0          # up to this many extra edges per arrival, from the seeded RNG
//	  drive_cycles: 2    # rising edges the driver spends on each item
//	  drop_delay: 10     # edges between the queue draining and its objection dropping
//	  timeout: 0         # edges without queue activity before an activity timeout
//	  stall_after: 0     # the driver hangs after driving this many items
//	  check_empty: true  # report residual items at the end of the run
//	levels:
//	  kill: critical
//	  fail: error
//	  print: warning
//	inject:
//	  - cycle: 50
//	    level: critical
//	    message: "scoreboard lost sync"
//	expect:
//	  pass: true
//	  end_time: 305
//	  events: { residual_work: 0 }
//	  residual: 0
//
// Scenarios are decoded strictly (unknown fields are errors) and then
// validated against an embedded CUE schema.
//
// # Determinism
//
// A scenario runs on a fresh kernel with a clock whose first rising edge is
// at clock_period/2. The only randomness is arrival jitter, drawn from the
// test's random source seeded with the scenario seed, so a scenario always
// produces the same trace. The trace holds every record at warning level or
// above and is compared against golden files with RunWithGolden.
package harness
