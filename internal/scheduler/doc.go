package scheduler

// Package scheduler owns the reminder obligations: one cancellable timer
// per (user, thread) pair, backed by the durable store.
//
// The in-memory registry is a derived cache. The store is authoritative:
// Reconcile() rebuilds every timer from stored rows at startup, and a row
// exists exactly while an obligation is pending.
//
// State machine per key: absent -> pending -> (fired | cancelled) -> absent.
