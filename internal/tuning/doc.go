// Package tuning is the operator-facing tuning interface of the GPU DVFS
// tables: per-step clocks and load thresholds (gpu_control) and per-step
// staycounts (gpu_staycount).
//
// Every store is a single parse, validate, mutate and apply transaction. A
// rejected write leaves the tables untouched; an accepted one drops the GPU
// to step 0 immediately so a tuning change never leaves it running at a stale
// higher clock.
//
// The interface does no locking of its own. The tables belong to the
// governor, and callers are expected to hold the governor's lock around each
// call (sysattr.Device does). Concurrent callers that bypass it can observe
// or produce torn table updates.
package tuning
