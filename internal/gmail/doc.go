// Package gmail fetches newsletter messages from a Gmail mailbox and decodes
// their bodies.
//
// The client lists messages matching a search query restricted to a
// trailing window of days, fetches each message in full and selects its
// human-readable body with DecodeBody. Only the first result page is read
// unless FetchOptions.AllPages is set.
//
// Example usage:
//
//	httpClient, err := auth.Authenticate(ctx)
//	if err != nil {
//	    return err
//	}
//	client, err := gmail.NewClient(ctx, httpClient, gmail.WithAccount("default"))
//	if err != nil {
//	    return err
//	}
//	bodies, err := client.Fetch(ctx, 7, gmail.DefaultQuery)
package gmail
