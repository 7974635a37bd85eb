// Package editor synchronizes a room's shared document.
//
// The editing surface is reached only through the Buffer interface. Local
// edits enter via ApplyLocalChange (wired to Buffer.OnChange by Attach) and
// are cached and sent as code-change. Remote documents enter via
// HandleRemoteChange and HandleSync. While a remote document is being
// written into the buffer the Synchronizer is in ApplyingRemote, so the
// change callback that write triggers is not sent back to the room.
package editor
