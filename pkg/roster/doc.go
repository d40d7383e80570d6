// Package roster provides the shared state layer for dave: the Event and
// Participant types, the Redis key schema, the persistent event store, and the
// in-memory KnownState cache that the reconciler writes and the command router
// reads.
//
// All Redis keys are namespaced by group name so several bot instances can
// share one Redis server.
package roster
