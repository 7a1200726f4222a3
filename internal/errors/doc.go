// Package errors provides the structured error taxonomy shared by the agora
// client packages.
//
// Every failure that leaves a remote call, the mutation executor or the
// configuration loader is an *Error carrying:
//   - a registered code (e.g. "A101") with a short message
//   - a Kind used for control flow (auth required, forbidden, remote failure,
//     busy, validation, config)
//   - the HTTP status and the server's own code/message when available
//   - the wrapped cause, for errors.Is/As
//
// # Kinds
//
//   - KindAuthRequired: 401, or a redirect / HTML page where JSON was expected
//   - KindForbidden: 403
//   - KindRemoteFailure: any other non-2xx, a failed envelope, a network error
//   - KindBusy: a mutation for the same key is already pending (client-local)
//   - KindValidation: the request was rejected before it was sent
//   - KindConfig: configuration could not be loaded or is invalid
//
// # Usage
//
//	err := errors.New("A103").
//	    WithStatus(500).
//	    WithServer("POST_500", "database unavailable")
//
//	if errors.IsKind(err, errors.KindRemoteFailure) {
//	    ...
//	}
//
//	fmt.Println(err.Format())
//	// ERROR A103: Remote request failed
//	//
//	//   status 500 · server code POST_500
//	//   database unavailable
package errors
