// Package fixture discovers labeled parser fixtures on disk.
//
// # Layout
//
// A fixture root holds two fixed-name subdirectories:
//
//	<root>/yes/   inputs the parser must accept (exit 0)
//	<root>/no/    inputs the parser must reject (any non-zero exit)
//
// File names follow the convention <y|n>_<tag>..., for example
// y_basic_ok.json or n_basic_trailing_comma.json. The tag segment is what
// a restriction filter matches against: restricting to "basic" selects
// files starting with "y_basic" in the accept set and "n_basic" in the
// reject set.
//
// Every entry in either subdirectory must be a regular file. Anything else
// (a nested directory, a symlink) is reported as a StructureError instead of
// being skipped, since a silently ignored fixture would shrink the suite.
//
// The loader returns an immutable Set. Cases are never mutated after the
// scan; a corrected fixture requires a new Load.
package fixture
