// Package history persists alert records so a user's sent alerts survive
// process restarts.
//
// FileRepository keeps every record in a single JSON file on disk guarded
// by a mutex, which is plenty for a single-user engine.
package history
