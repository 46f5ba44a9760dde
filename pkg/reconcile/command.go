// Package reconcile implements the reconciliation engine: the single
// cooperative dispatcher that owns the entry tree and the activity
// cursor, consuming local filesystem events and remote activity-log
// events and applying each to the other side, while a pair of
// cancellation books keep the engine from replaying its own echoes.
package reconcile

import (
	"github.com/ncsync/ncsync/pkg/localwatch"
	"github.com/ncsync/ncsync/pkg/webdav"
)

// CommandKind discriminates the union of things the dispatcher can be
// asked to do. The dispatcher processes commands strictly in arrival
// order off a single queue; nothing runs concurrently with it.
type CommandKind uint8

const (
	// CommandLocEvent carries one coalesced local filesystem event.
	CommandLocEvent CommandKind = iota
	// CommandNCEvents carries a batch of remote activity-log events
	// together with the cursor they advance the engine to.
	CommandNCEvents
	// CommandUpdateExcFile signals that excludes.json changed on disk
	// and should be reloaded.
	CommandUpdateExcFile
	// CommandUpdateConfigFile signals that the configuration changed
	// and should be reloaded.
	CommandUpdateConfigFile
	// CommandHardRepair requests a hard repair: abort in-flight tasks
	// and restart from nothing.
	CommandHardRepair
	// CommandNormalRepair requests a normal repair: fresh tree and
	// cursor, diffed against the local filesystem.
	CommandNormalRepair
	// CommandNetworkConnect signals that the network prober observed
	// the server become reachable again.
	CommandNetworkConnect
	// CommandNetworkDisconnect signals that the network prober
	// observed the server become unreachable.
	CommandNetworkDisconnect
	// CommandTerminate requests that the dispatcher stop; Retry
	// indicates whether the caller should restart the run loop
	// afterward.
	CommandTerminate
	// CommandError carries a producer-task error for logging; it is
	// never fatal to the dispatcher by itself.
	CommandError
)

// Command is the tagged union consumed by Engine.Run. Only the fields
// relevant to Kind are populated.
type Command struct {
	Kind CommandKind

	LocalEvent localwatch.Event

	RemoteEvents []webdav.RemoteEvent
	NewCursor    string

	Err   error
	Retry bool
}
