package remote

import (
	"errors"
	"net/http"
	"testing"
)

func header(ct string) http.Header {
	h := make(http.Header)
	if ct != "" {
		h.Set("Content-Type", ct)
	}
	return h
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		contentType string
		body        string
		kind        OutcomeKind
		payload     string
		serverCode  string
		serverMsg   string
		malformed   bool
	}{
		{
			name: "result envelope", status: 200, contentType: "application/json",
			body:    `{"isSuccess":true,"code":"COMMON200","message":"ok","result":{"likeCount":11}}`,
			kind:    OutcomeSuccess,
			payload: `{"likeCount":11}`, serverCode: "COMMON200", serverMsg: "ok",
		},
		{
			name: "data envelope", status: 200, contentType: "application/json",
			body:    `{"data":{"likeCount":3}}`,
			kind:    OutcomeSuccess,
			payload: `{"likeCount":3}`,
		},
		{
			name: "result wins over data", status: 200,
			body:    `{"result":1,"data":2}`,
			kind:    OutcomeSuccess,
			payload: `1`,
		},
		{
			name: "null result falls through to data", status: 200,
			body:    `{"result":null,"data":[1,2]}`,
			kind:    OutcomeSuccess,
			payload: `[1,2]`,
		},
		{
			name: "bare body", status: 200,
			body:    `{"likeCount":7}`,
			kind:    OutcomeSuccess,
			payload: `{"likeCount":7}`,
		},
		{
			name: "bare array", status: 200,
			body:    `[1,2,3]`,
			kind:    OutcomeSuccess,
			payload: `[1,2,3]`,
		},
		{
			name: "empty body", status: 204,
			kind: OutcomeSuccess,
		},
		{
			name: "isSuccess false", status: 200,
			body:       `{"isSuccess":false,"code":"POST4001","message":"already liked"}`,
			kind:       OutcomeFailure,
			serverCode: "POST4001", serverMsg: "already liked",
		},
		{
			name: "numeric code", status: 500,
			body:       `{"code":500,"message":"boom"}`,
			kind:       OutcomeFailure,
			serverCode: "500", serverMsg: "boom",
		},
		{
			name: "unauthorized", status: 401,
			body: `{"message":"login"}`,
			kind: OutcomeAuthRequired, serverMsg: "login",
		},
		{
			name: "found redirect", status: 302,
			kind: OutcomeAuthRequired,
		},
		{
			name: "html login page with 200", status: 200, contentType: "text/html; charset=utf-8",
			body: `<html><body>login</body></html>`,
			kind: OutcomeAuthRequired,
		},
		{
			name: "see other redirect", status: 303,
			kind: OutcomeAuthRequired,
		},
		{
			name: "not modified is not a redirect", status: 304,
			kind: OutcomeFailure,
		},
		{
			name: "html forbidden page", status: 403, contentType: "text/html",
			body: `<html>error</html>`,
			kind: OutcomeForbidden,
		},
		{
			name: "html gateway error", status: 502, contentType: "text/html",
			body: `<html>error</html>`,
			kind: OutcomeFailure,
		},
		{
			name: "html not found page", status: 404, contentType: "text/html; charset=utf-8",
			body: `<html>error</html>`,
			kind: OutcomeFailure,
		},
		{
			name: "forbidden", status: 403,
			body: `{"isSuccess":false,"code":"AUTH403","message":"not yours"}`,
			kind: OutcomeForbidden, serverCode: "AUTH403", serverMsg: "not yours",
		},
		{
			name: "not found", status: 404,
			body: `not json`,
			kind: OutcomeFailure,
		},
		{
			name: "malformed success", status: 200,
			body: `{"result":`,
			kind: OutcomeFailure, malformed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := Decode(tt.status, header(tt.contentType), []byte(tt.body))
			if o.Kind != tt.kind {
				t.Fatalf("Kind = %v, want %v", o.Kind, tt.kind)
			}
			if string(o.Payload) != tt.payload {
				t.Errorf("Payload = %s, want %s", o.Payload, tt.payload)
			}
			if o.ServerCode != tt.serverCode || o.ServerMessage != tt.serverMsg {
				t.Errorf("server = (%q, %q), want (%q, %q)", o.ServerCode, o.ServerMessage, tt.serverCode, tt.serverMsg)
			}
			if o.Malformed != tt.malformed {
				t.Errorf("Malformed = %v, want %v", o.Malformed, tt.malformed)
			}
			if o.Status != tt.status {
				t.Errorf("Status = %d, want %d", o.Status, tt.status)
			}
		})
	}
}

func TestOutcomeErr(t *testing.T) {
	tests := []struct {
		outcome  Outcome
		sentinel error
		code     string
	}{
		{Outcome{Kind: OutcomeAuthRequired, Status: 401}, ErrAuthRequired, "A101"},
		{Outcome{Kind: OutcomeForbidden, Status: 403}, ErrForbidden, "A102"},
		{Outcome{Kind: OutcomeFailure, Status: 500, ServerMessage: "boom"}, ErrRemoteFailure, "A103"},
		{Outcome{Kind: OutcomeFailure, Status: 200, Malformed: true}, ErrRemoteFailure, "A105"},
	}
	for _, tt := range tests {
		err := tt.outcome.Err()
		if !errors.Is(err, tt.sentinel) {
			t.Errorf("%v: Err() = %v, want kind of %v", tt.outcome.Kind, err, tt.sentinel)
		}
		var e *Error
		if !errors.As(err, &e) {
			t.Fatalf("Err() = %T, want *Error", err)
		}
		if e.Code != tt.code {
			t.Errorf("Code = %s, want %s", e.Code, tt.code)
		}
		if e.Status != tt.outcome.Status {
			t.Errorf("Status = %d, want %d", e.Status, tt.outcome.Status)
		}
	}

	if err := (Outcome{Kind: OutcomeSuccess}).Err(); err != nil {
		t.Errorf("success Err() = %v, want nil", err)
	}
}

func TestOperationNames(t *testing.T) {
	if OpLike.String() != "like" || OpListMyLikes.String() != "listMyLikes" {
		t.Errorf("unexpected names %s %s", OpLike, OpListMyLikes)
	}
	if Operation(99).Valid() {
		t.Error("Operation(99) should be invalid")
	}
	if !OpDeleteComment.Mutates() || OpGetPost.Mutates() {
		t.Error("Mutates() misclassified")
	}
}
