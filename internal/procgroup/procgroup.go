// Package procgroup starts child processes in their own process group so a
// transcoder and anything it forks can be killed as one unit.
package procgroup
