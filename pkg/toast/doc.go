// Package toast provides feedback notifications for the client.
//
// Toasts are handed to an Emitter, so the same calls work for a terminal
// (Log), a UI event queue (Channel) or both (Multi).
//
//	notify := toast.Multi(toast.Log(logger), ui)
//
//	if err := svc.DeletePost(ctx, id); err != nil {
//	    toast.FromError(notify, err)
//	    return
//	}
//	toast.Success(notify, "Post deleted")
//
// FromError maps the client's error kinds to messages: a sign-in prompt
// for authentication errors, a permission message for forbidden, and the
// server's message (when it sent one) for other failures. Busy errors are
// not shown.
package toast
