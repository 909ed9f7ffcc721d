// Package config loads mcpc configuration from config.yaml files and
// MCPC_-prefixed environment variables via Viper.
//
// The file is searched in the working directory first, then the XDG config
// home. Every key has a sensible default, so running without any config
// file is the common case.
package config
