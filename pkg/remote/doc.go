// Package remote is the HTTP client for the community backend.
//
// Every response passes through Decode, which classifies it as success,
// authentication required, forbidden or failure before any payload is
// read. Success payloads are unwrapped from the envelope's "result" field,
// then "data", then the body itself.
//
//	client, err := remote.New("https://api.example.com",
//	    remote.WithTimeout(10*time.Second),
//	    remote.WithRateLimit(5, 10),
//	)
//	res, err := client.LikePost(ctx, 42)
//	switch {
//	case errors.Is(err, remote.ErrAuthRequired):
//	    // send the user to the login page
//	case err != nil:
//	    // show err
//	}
//
// Page indexes are 0-based on this side of the package. Each list endpoint
// has a wire base (WithPageBase) and the client translates at the boundary.
package remote
