// Package domain defines the core business types for the sales agents.
//
// Types in this package are pure value objects. They are the shared language
// between the pollers, the lead store, and the reporting layer.
//
// Rules for this package:
//   - No imports from other internal/ packages
//   - No *sql.DB, no http.Request, no context.Context in struct fields
//   - Validation methods are allowed (they're pure functions on the type)
//   - Constants and enums belong here; the lead lifecycle transition table
//     lives here so no caller ever compares raw status strings
package domain
