// Package google obtains and persists the OAuth2 credential used to read a
// Gmail mailbox.
//
// Tokens are cached per account as JSON files under the user cache
// directory (google-<account>.token). Authenticate reuses a valid cached
// token, refreshes an expired one through the token endpoint named in the
// client secret file, and otherwise runs an interactive loopback
// authorization with PKCE. Every token obtained or refreshed is written back
// to the cache, including refreshes that happen later during the run.
package google
