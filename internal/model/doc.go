// Package model provides the core data types for SIBR storage.
//
// This package contains type definitions only. All other internal packages
// import model; model imports nothing internal. This keeps the data model
// as the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Objects are immutable once written and keyed by content Hash
//   - EntityUpdate rows are append-only provenance records
//   - UniqueView rows only ever widen FirstSeen/LastSeen or fill SearchText
//   - All timestamps are UTC with microsecond precision
package model
