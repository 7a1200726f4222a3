package community

import (
	"github.com/agora-dev/agora/pkg/livefeed"
	"github.com/agora-dev/agora/pkg/query"
)

// DetailGroup is the first segment of every post-detail view key.
const DetailGroup = "communityDetail"

// Query keys of the community views.
func KeyPost(id int) query.Key { return query.K("post", id) }
func KeyPosts(page int) query.Key { return query.K("posts", page) }
func KeyMyPosts(page int) query.Key { return query.K("myPosts", page) }
func KeyMyLikes(page int) query.Key { return query.K("myLikes", page) }
func KeyComments(postID int) query.Key { return query.K("comments", postID) }
func KeyDetail(postID int) query.Key { return query.K(DetailGroup, postID) }

// PlanLike is invalidated after a like or unlike of post id succeeds.
func PlanLike(id int) query.Matcher {
	return query.Any(
		query.Group("post", id),
		query.Group("posts"),
		query.Group("myPosts"),
		query.Group("myLikes"),
	)
}

// PlanEditPost is invalidated after post id was edited.
func PlanEditPost(id int) query.Matcher {
	return query.Any(
		query.Group("post", id),
		query.Group("posts"),
		query.Group("myPosts"),
		query.Prefix(DetailGroup),
	)
}

// PlanDeletePost is invalidated after post id was deleted.
func PlanDeletePost(id int) query.Matcher {
	return query.Any(
		query.Group("post", id),
		query.Group("posts"),
		query.Group("myPosts"),
		query.Group("myLikes"),
		query.Prefix(DetailGroup),
	)
}

// PlanCreateComment is invalidated after a comment was added to post id.
func PlanCreateComment(postID int) query.Matcher {
	return query.Any(
		query.Group("post", postID),
		query.Group("comments", postID),
		query.Prefix(DetailGroup),
	)
}

// PlanEditComment is invalidated after a comment on postID was edited or
// deleted.
func PlanEditComment(postID int) query.Matcher {
	return query.Any(
		query.Prefix(DetailGroup),
		query.Group("comments", postID),
	)
}

// PlanDeleteComment is the same plan as PlanEditComment.
func PlanDeleteComment(postID int) query.Matcher {
	return PlanEditComment(postID)
}

// PlanForEvent maps a live feed event to the plan of the mutation that
// caused it. Reports are not broadcast.
func PlanForEvent(ev livefeed.Event) query.Matcher {
	if ev.PostID <= 0 {
		return nil
	}
	switch ev.Type {
	case livefeed.EventPostLiked, livefeed.EventPostUnliked:
		return PlanLike(ev.PostID)
	case livefeed.EventPostEdited:
		return PlanEditPost(ev.PostID)
	case livefeed.EventPostDeleted:
		return PlanDeletePost(ev.PostID)
	case livefeed.EventCommentCreated:
		return PlanCreateComment(ev.PostID)
	case livefeed.EventCommentEdited, livefeed.EventCommentDeleted:
		return PlanEditComment(ev.PostID)
	}
	return nil
}
