// Package cache is the client-local edit cache: the last document a client
// typed in each room, kept so that re-entering a room restores local work.
//
// Three backends implement Store:
//   - FileStore: one JSON file per room under a directory (default)
//   - BoltStore: one bbolt database, bucket "documents", keyed by room
//   - MemoryStore: process lifetime only
//
// Open picks a backend by name, matching the join command's --cache flag.
// Entries are written only by local edits; remote content never reaches the
// cache.
package cache
