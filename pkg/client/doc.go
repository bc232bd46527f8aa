/*
Package client provides a sync client SDK for carry nodes.

A Client wraps a local *store.Store and drives push/pull cycles against a
remote carry server over plain HTTP+JSON — no gRPC, no mTLS. It is the
same code path cmd/carry's push and pull subcommands use, and is meant to
be embedded directly by applications that want to sync in-process rather
than shelling out to the CLI.

# Usage

	c := client.NewClient("http://peer.example.com:8080", st, client.Options{
		Strategy: reconcile.ClockWins,
	})

	// send pending local operations and acknowledge what the server accepted
	pushed, err := c.Push(ctx)

	// fetch and reconcile new remote operations since the last Pull
	pulled, err := c.Pull(ctx, 100)

	// or do both in the usual order
	pushed, pulled, err := c.Sync(ctx)

Push acknowledges accepted operations against the local store
(st.Acknowledge), clearing them from the pending queue. Pull advances the
client's internal sync token so the next call only fetches operations
after the last one it saw; a Client instance is therefore stateful across
calls and is not meant to be shared across unrelated sync targets.

# Design Notes

The wire payload types (pushPayload, pushResult, pullResult) mirror
pkg/server's request/response types field-for-field but are defined
locally rather than imported, keeping this package free of any dependency
on pkg/server's HTTP routing.
*/
package client
