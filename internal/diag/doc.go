// Package diag defines the diagnostic model shared by the script loader, the
// borrow simulator and the driver.
//
// # Purpose
//
//   - Provide deterministic, serialisable records for findings produced while
//     loading and replaying ownership scripts.
//   - Offer light-weight utilities (Reporter, Bag) that let producers emit
//     diagnostics without coupling to storage or formatting.
//
// # Scope
//
// Package diag does not format or print anything. Rendering lives in
// internal/diagfmt; orchestration lives in internal/driver and cmd/borrowsim.
//
// # Data model
//
// Diagnostic is the central record:
//
//   - Severity – Info, Warning, Error (severity.go).
//   - Code – numeric identifier with a stable string form (SCR1001, BRW4002).
//   - Message – short, human oriented text.
//   - Primary – source.Span of the offending script operation.
//   - Notes – secondary spans such as "value moved here".
//   - Fixes – "help:" suggestions, data only.
//
// Violations that a didactic script expects are reported at Info severity so
// the bag only carries errors when the replay disagrees with the script.
package diag
