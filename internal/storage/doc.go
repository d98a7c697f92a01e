package storage

// Package storage persists reminder obligations and the append-only audit
// trail of obligation lifecycle events.
//
// It currently supports:
//   - A dependency-free file backend (snapshot + jsonl journal)
//   - SQLite (optional build tag)
//
// The store is the single source of truth for pending obligations: a row
// exists if and only if an obligation is logically pending.
