// Copyright 2025 Takhin Data, Inc.

// Package perr defines the sentinel error taxonomy shared by the partition
// service components. Hard errors abort the calling operation and are
// meant to be checked with errors.Is at the call site; recoverable errors
// are expected transient conditions that a caller retries or ignores
// rather than propagates as a failure.
package perr

import "errors"

// Hard errors. These indicate a request cannot be served under any
// retry and should be surfaced to the caller.
var (
	// ErrNotActive is returned when an operation that requires the
	// cluster to be in the ACTIVE state is invoked while it is FROZEN
	// or PASSIVE.
	ErrNotActive = errors.New("partition: cluster not active")

	// ErrMigrationDisallowed is returned when a migration is attempted
	// while migrations are paused (cluster state FROZEN, or an admin
	// pause is in effect).
	ErrMigrationDisallowed = errors.New("partition: migrations disallowed")

	// ErrNoDataMember is returned when an arrangement cannot be computed
	// because no non-lite data member is available to own partitions.
	ErrNoDataMember = errors.New("partition: no data member available")

	// ErrAlreadyInitialized is returned when an initial arrangement is
	// requested but the partition table already has a non-zero version.
	ErrAlreadyInitialized = errors.New("partition: table already initialized")

	// ErrLockTimeout is returned when a partition-level lock could not be
	// acquired within the configured timeout.
	ErrLockTimeout = errors.New("partition: lock acquire timeout")

	// ErrUnknownSender is returned when an RPC arrives from a member that
	// is not recognized as part of the current cluster membership.
	ErrUnknownSender = errors.New("partition: unknown sender")

	// ErrNotMaster is returned when an operation that only the master may
	// perform is invoked on a non-master member.
	ErrNotMaster = errors.New("partition: not master")

	// ErrShuttingDown is returned when an operation is rejected because
	// the member is in the process of shutting down.
	ErrShuttingDown = errors.New("partition: shutting down")
)

// Recoverable errors. These represent expected races the caller is
// expected to handle locally (retry, drop, or log at debug) rather than
// treat as a service failure.
var (
	// ErrStaleVersion is returned when an incoming partition state or
	// migration message carries a version older than what is already
	// applied locally.
	ErrStaleVersion = errors.New("partition: stale version")

	// ErrRPCTimeout is returned when a peer did not respond to an RPC
	// within its deadline.
	ErrRPCTimeout = errors.New("partition: rpc timeout")

	// ErrMemberLeft is returned when the target of an RPC has left the
	// cluster before or during the call.
	ErrMemberLeft = errors.New("partition: member left")

	// ErrTargetNotMember is returned when a migration or sync targets an
	// address that never joined, or already left, the cluster.
	ErrTargetNotMember = errors.New("partition: target not a cluster member")
)

// IsRecoverable reports whether err is one of the recoverable sentinel
// errors that a caller should retry or silently drop instead of treating
// as an operation failure.
func IsRecoverable(err error) bool {
	switch {
	case errors.Is(err, ErrStaleVersion),
		errors.Is(err, ErrRPCTimeout),
		errors.Is(err, ErrMemberLeft),
		errors.Is(err, ErrTargetNotMember):
		return true
	default:
		return false
	}
}
