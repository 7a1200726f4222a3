package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agora-dev/agora/pkg/remote"
)

func postCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "post",
		Short: "Read, edit or delete a post",
	}

	get := &cobra.Command{
		Use:   "get <post-id>",
		Short: "Show a post with its comments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("post id", args[0])
			if err != nil {
				return err
			}
			a, err := newApp(cmd, flags)
			if err != nil {
				return err
			}
			defer a.close()
			ctx, cancel := a.timeout(cmd)
			defer cancel()

			d, err := a.svc.Detail(id).Load(ctx)
			if err != nil {
				return err
			}
			printPost(a.out, d.Post)
			if d.Post.Content != "" {
				fmt.Fprintf(a.out, "\n%s\n", d.Post.Content)
			}
			if len(d.Comments) > 0 {
				fmt.Fprintln(a.out)
			}
			for _, c := range d.Comments {
				info(a.out, "[%d] %s: %s", c.ID, c.Writer, c.Content)
			}
			return nil
		},
	}

	var title, content string
	edit := &cobra.Command{
		Use:   "edit <post-id>",
		Short: "Replace a post's title and content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("post id", args[0])
			if err != nil {
				return err
			}
			a, err := newApp(cmd, flags)
			if err != nil {
				return err
			}
			defer a.close()
			ctx, cancel := a.timeout(cmd)
			defer cancel()

			h, err := a.svc.EditPost(id, remote.PostInput{Title: title, Content: content})
			_, err = a.settle(ctx, h, err)
			return err
		},
	}
	edit.Flags().StringVarP(&title, "title", "t", "", "New title")
	edit.Flags().StringVarP(&content, "content", "m", "", "New content")
	_ = edit.MarkFlagRequired("title")
	_ = edit.MarkFlagRequired("content")

	del := &cobra.Command{
		Use:   "delete <post-id>",
		Short: "Delete a post",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("post id", args[0])
			if err != nil {
				return err
			}
			a, err := newApp(cmd, flags)
			if err != nil {
				return err
			}
			defer a.close()
			ctx, cancel := a.timeout(cmd)
			defer cancel()

			h, err := a.svc.DeletePost(id)
			_, err = a.settle(ctx, h, err)
			return err
		},
	}

	cmd.AddCommand(get, edit, del)
	return cmd
}

func commentCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "comment",
		Short: "Add, edit or delete a comment",
	}

	add := &cobra.Command{
		Use:   "add <post-id> <text>...",
		Short: "Comment on a post",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			postID, err := parseID("post id", args[0])
			if err != nil {
				return err
			}
			a, err := newApp(cmd, flags)
			if err != nil {
				return err
			}
			defer a.close()
			ctx, cancel := a.timeout(cmd)
			defer cancel()

			h, err := a.svc.CreateComment(postID, strings.Join(args[1:], " "))
			res, err := a.settle(ctx, h, err)
			if err != nil {
				return err
			}
			if c, ok := res.Value.(remote.Comment); ok {
				success(a.out, "Comment #%d added to post #%d", c.ID, postID)
			}
			return nil
		},
	}

	edit := &cobra.Command{
		Use:   "edit <post-id> <comment-id> <text>...",
		Short: "Replace a comment's text",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			postID, commentID, err := parseCommentArgs(args)
			if err != nil {
				return err
			}
			a, err := newApp(cmd, flags)
			if err != nil {
				return err
			}
			defer a.close()
			ctx, cancel := a.timeout(cmd)
			defer cancel()

			h, err := a.svc.EditComment(postID, commentID, strings.Join(args[2:], " "))
			_, err = a.settle(ctx, h, err)
			return err
		},
	}

	del := &cobra.Command{
		Use:   "delete <post-id> <comment-id>",
		Short: "Delete a comment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			postID, commentID, err := parseCommentArgs(args)
			if err != nil {
				return err
			}
			a, err := newApp(cmd, flags)
			if err != nil {
				return err
			}
			defer a.close()
			ctx, cancel := a.timeout(cmd)
			defer cancel()

			h, err := a.svc.DeleteComment(postID, commentID)
			_, err = a.settle(ctx, h, err)
			return err
		},
	}

	cmd.AddCommand(add, edit, del)
	return cmd
}

func reportCmd(flags *globalFlags) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Report a post or comment",
	}
	cmd.PersistentFlags().StringVarP(&reason, "reason", "r", "", "Why the content should be reviewed")
	_ = cmd.MarkPersistentFlagRequired("reason")

	post := &cobra.Command{
		Use:   "post <post-id>",
		Short: "Report a post",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("post id", args[0])
			if err != nil {
				return err
			}
			a, err := newApp(cmd, flags)
			if err != nil {
				return err
			}
			defer a.close()
			ctx, cancel := a.timeout(cmd)
			defer cancel()

			h, err := a.svc.ReportPost(id, reason)
			_, err = a.settle(ctx, h, err)
			return err
		},
	}

	comment := &cobra.Command{
		Use:   "comment <post-id> <comment-id>",
		Short: "Report a comment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			postID, commentID, err := parseCommentArgs(args)
			if err != nil {
				return err
			}
			a, err := newApp(cmd, flags)
			if err != nil {
				return err
			}
			defer a.close()
			ctx, cancel := a.timeout(cmd)
			defer cancel()

			h, err := a.svc.ReportComment(postID, commentID, reason)
			_, err = a.settle(ctx, h, err)
			return err
		},
	}

	cmd.AddCommand(post, comment)
	return cmd
}

func parseCommentArgs(args []string) (postID, commentID int, err error) {
	if postID, err = parseID("post id", args[0]); err != nil {
		return 0, 0, err
	}
	if commentID, err = parseID("comment id", args[1]); err != nil {
		return 0, 0, err
	}
	return postID, commentID, nil
}
