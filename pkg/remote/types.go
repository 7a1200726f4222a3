package remote

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Limits on user-supplied content.
const (
	MaxTitleLength   = 100
	MaxContentLength = 5000
	MaxCommentLength = 1000
	MaxReasonLength  = 500
	MaxPageSize      = 100
)

// Post is a community post as returned by the backend.
type Post struct {
	ID           int       `json:"postId"`
	Title        string    `json:"title"`
	Content      string    `json:"content"`
	Writer       string    `json:"writer"`
	LikeCount    int       `json:"likeCount"`
	Liked        bool      `json:"liked"`
	CommentCount int       `json:"commentCount"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Comment is a comment on a post.
type Comment struct {
	ID        int       `json:"commentId"`
	PostID    int       `json:"postId"`
	Content   string    `json:"content"`
	Writer    string    `json:"writer"`
	CreatedAt time.Time `json:"createdAt"`
}

// LikeResult is the server's view of a post's like state after a like or
// unlike.
type LikeResult struct {
	Liked     bool `json:"liked"`
	LikeCount int  `json:"likeCount"`
}

// Report is a report record. Reports are created only by the server; the
// client keeps no mutable copy.
type Report struct {
	ReportID   int       `json:"reportId"`
	SubjectID  int       `json:"subjectId"`
	ReportedAt time.Time `json:"reportedAt"`
}

// PostInput is the payload of OpEditPost.
type PostInput struct {
	Title   string `json:"title" validate:"notblank,max=100"`
	Content string `json:"content" validate:"notblank,max=5000"`
}

// CommentInput is the payload of OpCreateComment and the body of an
// OpEditComment.
type CommentInput struct {
	Content string `json:"content" validate:"notblank,max=1000"`
}

// ReportInput is the payload of report operations.
type ReportInput struct {
	Reason string `json:"reason" validate:"notblank,max=500"`
}

// CommentRef addresses a comment for OpEditComment, OpDeleteComment and
// OpReportComment. Body, if set, is sent as the request body.
type CommentRef struct {
	CommentID int `validate:"gt=0"`
	Body      any
}

// PageRequest selects a page. Index is always 0-based; the client
// translates it to each endpoint's wire convention.
type PageRequest struct {
	Index int `validate:"gte=0"`
	Size  int `validate:"gt=0,lte=100"`
}

// Page is one page of a list. Index is 0-based regardless of the
// endpoint's wire convention.
type Page[T any] struct {
	Items         []T
	Index         int
	ListSize      int
	TotalPage     int
	TotalElements int
	IsFirst       bool
	IsLast        bool
}

// Number returns the 1-based page number for display.
func (p Page[T]) Number() int {
	return p.Index + 1
}

// HasNext reports whether another page follows.
func (p Page[T]) HasNext() bool {
	return !p.IsLast && p.Index+1 < p.TotalPage
}

// validate is the validator instance for request payloads.
var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("notblank", validateNotBlank)
}

// validateNotBlank rejects strings that are empty after trimming spaces.
func validateNotBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

// ValidateInput checks a payload against the same rules the client applies
// before sending it.
func ValidateInput(v any) error {
	return validate.Struct(v)
}
