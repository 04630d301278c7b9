// Package lockstate models the two-valued lock state of an interactive session and
// deduplicates raw samples into transitions.
package lockstate
