// Package sim implements the discrete-event kernel that drives a testbench.
//
// The kernel owns a single simulated time axis and a schedule of callbacks
// ordered by (time, sequence). Same-time callbacks run in the order they were
// scheduled, so a run is fully reproducible.
//
// ARCHITECTURE:
//
// Cooperative Processes:
// A Process is a goroutine that only executes while the kernel has handed it
// control. Process.Wait parks the goroutine and hands control back, so at any
// instant exactly one of {kernel loop, one process} is executing. State shared
// between processes needs no locking as long as it is only touched from
// kernel callbacks and process bodies.
//
// Triggers:
// A process suspends on a Trigger: a one-shot Event, a Delay, or a Signal edge.
// Firing a trigger never runs a waiter inline; it schedules the waiter's resume
// at the current time, after work that is already queued (a delta step).
//
// Termination:
// Run returns when Stop is requested, the schedule runs dry, the context is
// cancelled, or a process faults (returns an error or panics). Before Run
// returns, every suspended process is unwound so no goroutine outlives the
// kernel; Done is closed once that bookkeeping has finished.
package sim
