// Package config loads and validates the static TOML configuration supplied
// to every handler run.
//
// The configuration names the allowed input extensions, the default publish
// types for additions and deletions, the step parameter blocks (resolve,
// check, harvest, notify), the storage endpoints, and the archive policy.
// Validation happens once, before any handler executes; unknown strategy
// keys fail here rather than mid-pipeline.
package config
