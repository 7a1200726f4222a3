package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agora-dev/agora/pkg/query"
	"github.com/agora-dev/agora/pkg/remote"
)

func postsCmd(flags *globalFlags) *cobra.Command {
	var (
		page int
		mine bool
	)

	cmd := &cobra.Command{
		Use:   "posts",
		Short: "List posts",
		Long: `List the community board, newest first.

Examples:
  agora posts
  agora posts --page 2
  agora posts --mine -u alice`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, flags, page, func(a *app, index int) *query.Query[remote.Page[remote.Post]] {
				if mine {
					return a.svc.MyPosts(index)
				}
				return a.svc.Posts(index)
			})
		},
	}
	cmd.Flags().IntVarP(&page, "page", "p", 1, "Page number, starting at 1")
	cmd.Flags().BoolVar(&mine, "mine", false, "Only your own posts")
	return cmd
}

func likesCmd(flags *globalFlags) *cobra.Command {
	var page int

	cmd := &cobra.Command{
		Use:   "likes",
		Short: "List the posts you liked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, flags, page, func(a *app, index int) *query.Query[remote.Page[remote.Post]] {
				return a.svc.MyLikes(index)
			})
		},
	}
	cmd.Flags().IntVarP(&page, "page", "p", 1, "Page number, starting at 1")
	return cmd
}

type pageQuery func(a *app, index int) *query.Query[remote.Page[remote.Post]]

func runList(cmd *cobra.Command, flags *globalFlags, number int, q pageQuery) error {
	if number < 1 {
		return fmt.Errorf("page must be at least 1, got %d", number)
	}
	a, err := newApp(cmd, flags)
	if err != nil {
		return err
	}
	defer a.close()
	ctx, cancel := a.timeout(cmd)
	defer cancel()

	p, err := q(a, number-1).Load(ctx)
	if err != nil {
		return err
	}
	if len(p.Items) == 0 {
		info(a.out, "No posts.")
		return nil
	}
	for _, post := range p.Items {
		printPost(a.out, post)
	}
	fmt.Fprintf(a.out, "\nPage %d of %d", p.Number(), max(p.TotalPage, 1))
	if p.HasNext() {
		fmt.Fprintf(a.out, " (next: --page %d)", p.Number()+1)
	}
	fmt.Fprintln(a.out)
	return nil
}
