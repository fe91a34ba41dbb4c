// Package transport provides the per-task transport profile and the
// session-bearing HTTP client every capture phase issues requests through.
package transport
