// Package nocodb is a client-side object model over the NocoDB v2 REST API.
//
// It exposes Base, Table, Column and Record types mapping onto the remote
// resources, a pager that drives the offset/limit listing protocol to
// completion, batch record CRUD that resolves server echoes back into fully
// populated records, and the layered link-resolution algorithm that turns a
// relationship column into the records it points at despite the service's
// inconsistent relation-read response shapes.
//
// All network-touching methods take a context.Context and block for the
// duration of the exchange; the package starts no goroutines of its own.
// Records are immutable by convention: Update returns a new Record fetched
// fresh from the server and never mutates in place.
package nocodb
