package model

import "time"

// Credential is what the credential store persists for one session.
//
// Token is created on successful authentication. RemoteDocID is set by the
// first successful Gist create or by reconnect discovery, and is removed only
// by an explicit disconnect. LastSync is nil until the first upload.
type Credential struct {
	Token       string
	RemoteDocID string
	LastSync    *time.Time
}

// Authenticated reports whether a non-empty token is present.
func (c Credential) Authenticated() bool {
	return c.Token != ""
}
