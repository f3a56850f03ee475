// Package session houses implementations of core.SessionStore. The
// in-process runner uses the in-memory store for one session per run.
package session
