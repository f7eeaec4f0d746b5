// Package config provides the configuration of urlvet: run options, the
// .urlvet file with per-site request overrides, the detection vocabulary and
// per-rule penalty overrides.
package config
