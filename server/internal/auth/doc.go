// Package auth provides API-key authentication for the sensorcal REST API.
//
// APIKey(mode, header, key) returns a gin middleware that compares the named
// request header against key. When mode != "apikey" or key == "", every
// request passes through, which keeps local development simple. A missing or
// wrong key aborts the request with 401 and a JSON error body.
package auth
