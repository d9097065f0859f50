package google

import (
	gmail "google.golang.org/api/gmail/v1"
)

// DefaultOAuthScopes are the scopes requested when none are configured.
// Reading newsletters never needs more than read-only mailbox access.
var DefaultOAuthScopes = []string{
	gmail.GmailReadonlyScope,
}
