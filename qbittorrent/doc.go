// Package qbittorrent provides a client for the qBittorrent Web API.
//
// The package owns the authenticated session against qBittorrent and wraps
// the two WebAPI calls the deduplicator needs. It decodes responses into the
// wire types of the autobrr/go-qbittorrent library and exposes them as Entry
// values.
//
// # Features
//
//   - Cookie-based session with lazy login
//   - Exactly one re-login and retry on a 401/403 response
//   - Coalesced concurrent re-logins
//   - Typed errors for auth, transport and rejected deletions
//   - Push-channel URL derivation for the WebSocket trigger
//
// # Usage
//
//	session, err := qbittorrent.NewSession(url, username, password, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := session.Login(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	client := qbittorrent.NewClient(session, logger)
//	entries, err := client.ListEntries(ctx)
//
//	ok, err := client.DeleteEntry(ctx, entries[0].Hash, false)
package qbittorrent
