// Package builder turns an extension source archive into a single Debian
// package. Each build gets a fresh scratch directory, downloads and unpacks
// the source, prepares it according to the extension's recipe variant, runs
// a parallel make against the target PostgreSQL toolchain, and packages the
// install tree with checkinstall without installing anything on the host.
// All toolchain processes go through the Runner interface so tests can
// substitute a fake.
package builder
