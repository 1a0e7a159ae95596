// Package core provides the business logic for bulk student imports.
//
// This package holds all domain logic independent of any transport. It is
// used by the web handlers, the operator CLI and tests without change.
//
// # Pipeline
//
// An import goes through these steps:
//
//  1. [ReadSpreadsheet] decodes the first sheet of an .xlsx or .csv file
//     into a [Sheet]; the first row is the header.
//  2. [ValidateRows] checks the required columns, then every row. Any error
//     blocks the whole import; at most [MaxValidationErrors] are kept.
//  3. [Service.StartImport] (or [Service.RunImport] for the CLI) commits
//     the rows one at a time, in sheet order. A row failing at commit time
//     is recorded and the next row runs.
//
// Per row, the student is created first with no class or guardian, since a
// guardian references its student. The guardian is then reused by exact
// name or created, the class resolved or created as "{niveau} A", and the
// student updated with both ids.
//
// # Sessions
//
// [Service.Prepare] returns an [ImportSession] whose state follows
//
//	idle -> validating -> blocked | ready -> importing -> completed
//
// with cancelled and failed as the other terminal states. Progress is
// broadcast to subscribers after every row via [Service.SubscribeProgress].
// One school runs at most one import at a time.
//
// # Normalizers
//
// [NormalizeDate] and [NormalizeRelation] are total: they never fail and
// report whether a default was applied so the caller can log it.
//
// # Error Handling
//
// Sentinel errors are wrapped with %w and tested with errors.Is. Technical
// errors are mapped to French messages with a support code by [MapError].
package core
