// Package config defines the format-agnostic data model for provisioning
// rules and the Loader interface that format-specific front ends (HCL, or a
// caller-supplied model) implement.
package config
