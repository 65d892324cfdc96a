// Package config resolves pgxpack settings from defaults, the optional
// ~/.pgxpack/config.yaml file, and PGXPACK_* environment variables into one
// explicit Config struct. Components receive that struct; nothing else in
// the program consults the environment.
package config
