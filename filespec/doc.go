// Package filespec implements the declarative file copy engine used by
// importers and exporters.
//
// A Spec describes one output file of an entity: the suffix and extension
// appended to the entity's fully-qualified name, an ordered list of
// candidate source paths and an optional copy/transform Step and Post
// step. Engine.Import resolves each Spec against a source root:
//
//  1. the destination is "<full-name>_<suffix><extension>" inside the entity
//  2. an existing destination is skipped, so imports are idempotent
//  3. the first existing candidate is used, later candidates are never read
//  4. sources whose name contains an exclusion token are skipped
//  5. the Step copies, runs "program source destination" or calls a
//     TransformFunc
//  6. the Post step runs on the destination only
//  7. no candidate and no synthesizing Step is a CodeMissingSourceFile error
//
// Engine.Export copies an entity's own files to another location through a
// Filter of include and exclude tokens, optionally substituting a new
// identifier for the fully-qualified name.
//
// All I/O goes through core.FS. Program steps hand OS paths to external
// programs and therefore require a local filesystem.
package filespec
