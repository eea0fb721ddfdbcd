// Package auth handles the operator's bearer credential on the client side.
//
// # Role
//
// The console authenticates to the backend with a JWT it was issued out of
// band. The server owns the signing secret and does all verification; this
// package only decodes the token the console already holds, so the UI can
// show who is logged in and warn before the credential runs out.
//
// # Usage
//
// Inspect a token:
//
//	info, err := auth.Inspect(token)
//	if errors.Is(err, auth.ErrExpiredToken) {
//	    // prompt for a fresh credential before connecting
//	}
//
// Warn ahead of expiry:
//
//	if info.ExpiresWithin(15 * time.Minute) {
//	    // surface a renewal hint in the status bar
//	}
//
// The subject claim is cross-checked against the configured admin_id at
// startup so a console never connects with someone else's credential.
package auth
