// Package envapi is a client for the hub's team environment service API.
//
// Every request carries the service key in the X-API-Key header. Variables
// are addressed as /api/service/teams/{slug}/environment/{key}; the catalog
// in this package declares how the well-known variables are computed and
// which attributes (category, secure, editable) they are stored with.
package envapi
