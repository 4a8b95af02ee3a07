// Package repository holds the strongly-typed persistence layer for
// tickets, scan logs and guard state.  The sentinel values below let the
// services distinguish missing rows and lost compare-and-set races from
// infrastructure faults.
package repository

import "errors"

// ErrTicketNotFound is returned when no ticket row matches the identifier.
// Handlers should translate this into an HTTP 404 response.
var ErrTicketNotFound = errors.New("ticket not found")

// ErrGuardStateNotFound is returned by Get when no guard row exists yet.
// Use Ensure to create the row lazily.
var ErrGuardStateNotFound = errors.New("guard state not found")

// ErrStateConflict is returned when a conditional state update finds the
// ticket in a different state than expected, meaning another scan won.
var ErrStateConflict = errors.New("ticket state changed concurrently")
