// Package core provides the dataset cleaning and aggregation logic.
//
// The package has no transport dependencies. It can be used by web
// handlers, CLI tools, or tests without modification.
//
// # Pipeline
//
// A [Loader] reads a source file and produces an immutable [Dataset]:
//
//  1. The source is opened by format: CSV is decoded as Latin-1 after an
//     optional BOM is skipped, XLSX is read from its first sheet.
//  2. Every row is checked by the [Validator]. Rows whose Track, Artist or
//     Album Name contain characters outside the accepted set, or whose
//     Artist is blacklisted, are dropped and counted.
//  3. The six metric columns are coerced with [Normalize], so every
//     surviving record carries finite numbers.
//
// # Serving
//
// The [Registry] holds at most one Dataset and swaps it atomically. The
// [Engine] takes one snapshot per query and computes the tracks view, top
// artists, platform comparison and debug info from it. Nothing is cached;
// aggregates are recomputed on demand.
//
// # Reloads
//
// [Service.Reload] resolves a path inside the data directory, bounds
// concurrent loads with a [ReloadLimiter], replaces the Dataset on success,
// records an audit entry for every attempt and publishes an [Event] to
// subscribers. [Service.StartReloadScheduler] triggers reloads when the
// source file changes.
//
// # Error Handling
//
// Load failures are [*LoadError] values whose kind matches [ErrNotFound],
// [ErrParseFailure] or [ErrMalformed] under errors.Is. [MapError] turns any
// error into a user-facing message with a support code:
//
//   - DATA001: no dataset loaded
//   - LOAD001-LOAD004: source missing, unreadable, malformed or too large
//   - REQ001-REQ003: invalid, cancelled or timed out requests
//   - RLD001: too many concurrent reloads
package core
