/*
Package config handles deployment configuration and pre-flight validation.

Configuration comes from two places: the process environment (credentials
and the optional release tag) and a fixed YAML service manifest describing
the fleet. Validation is a pure function over a key/value map and reports
every missing required key in a single ConfigurationError so an operator
fixes the environment once, not key by key.

The assembled Config struct is passed explicitly to every pipeline stage;
there is no package-level mutable state.
*/
package config
