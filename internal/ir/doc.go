// Package ir provides the shared data model for sandcalc.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal. This keeps the model the
// foundational layer with no circular dependencies.
//
// Key design constraints:
//   - A ComponentID (id + version) never changes once persisted; edits create a new version
//   - Temporary ids identify unsaved drafts and never reach sandboxed code
//   - Dependencies always pin an exact version, never "latest"
//   - Only JSON envelopes cross the sandbox boundary (see RequestEnvelope, ResponseEnvelope)
//   - All JSON tags use snake_case
package ir
