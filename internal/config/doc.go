// Package config loads and validates the finmitrad configuration file. It
// applies defaults for anything the operator leaves unset and pulls the
// generation API key from the environment so credentials never live in the
// file itself.
package config
