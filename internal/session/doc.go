// Package session tracks, per user, the multi-step flow currently in
// progress and the inputs collected so far.
//
// Access is keyed by user id with one lock per key, so concurrent
// events for different users never serialize against each other.
package session
