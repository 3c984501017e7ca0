// Package batch runs loudness analysis and tag writing across a set of
// files with bounded parallelism. Tracks belonging to the same album are
// gathered behind a completion barrier so the album gain is computed
// exactly once, after every member has resolved.
package batch
