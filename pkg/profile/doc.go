// Package profile holds per-device-type build configuration.
//
// A profile names the top-level keys to build, node paths to skip,
// enumerated leaves that must become lists or flat parameters, and extra
// parameters added to every device of the type. Profiles ship embedded as
// YAML; a user file can override them field by field.
//
// The "default" profile contributes its extra parameters to every type.
package profile
