// Package rusto implements the web client for the Rusto blog service: a thin
// presentation layer over the remote REST API.
//
// The core of the package is the session lifecycle. A TokenStore is the only
// holder of the bearer token, a SessionResolver turns tokens into cached user
// profiles, and SessionManager sequences login, register, logout and refresh
// so that reads issued right after an operation observe its outcome. HTTPAuth
// binds the lifecycle to fiber requests and provides the route guard; the
// controllers render the pages on top of it.
package rusto
