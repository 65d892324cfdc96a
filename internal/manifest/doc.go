// Package manifest handles parsing and validation of pgxpack extension
// manifests (extensions.yaml). A manifest lists the extensions to build and
// publish in one run; files are validated against an embedded JSON Schema
// before any entry is parsed into a build request.
package manifest
