// Package testutil contains builders used across tests to construct events,
// agent definition documents and stored chat histories with little
// boilerplate. It is not intended for production usage.
package testutil
