// Package storage persists the delivery journal: one record per message that
// reached a terminal outcome.
//
// The journal is an audit trail. It is never replayed into channel queues.
package storage
