package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/agora-dev/agora/pkg/optimistic"
)

type likeMode int

const (
	likeOn likeMode = iota
	likeOff
	likeToggle
)

func likeCmd(flags *globalFlags, mode likeMode) *cobra.Command {
	use, short := "like <post-id>", "Like a post"
	switch mode {
	case likeOff:
		use, short = "unlike <post-id>", "Remove your like from a post"
	case likeToggle:
		use, short = "toggle <post-id>", "Flip your like on a post"
	}

	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("post id", args[0])
			if err != nil {
				return err
			}
			return runLike(cmd, flags, id, mode)
		},
	}
}

func runLike(cmd *cobra.Command, flags *globalFlags, id int, mode likeMode) error {
	a, err := newApp(cmd, flags)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := a.timeout(cmd)
	defer cancel()

	post, err := a.svc.Post(id).Load(ctx)
	if err != nil {
		return err
	}
	rec := a.svc.Like(post)

	if (mode == likeOn && post.Liked) || (mode == likeOff && !post.Liked) {
		info(a.out, "Nothing to do: %s", describe(rec.State()))
		return nil
	}

	var predicted optimistic.State
	if err := a.loop.Do(ctx, func() {
		rec.Toggle()
		predicted = rec.State()
	}); err != nil {
		return err
	}
	info(a.out, "Showing %s", describe(predicted))

	if err := rec.Wait(ctx); err != nil {
		return err
	}
	if err := a.loop.Flush(ctx); err != nil {
		return err
	}
	if err := a.exec.LastError(optimistic.Key(id)); err != nil {
		info(a.out, "Rolled back to %s", describe(rec.State()))
		return shown{err}
	}
	success(a.out, "Post #%d: %s", id, describe(rec.State()))
	return nil
}

func describe(s optimistic.State) string {
	if s.Liked {
		return fmt.Sprintf("liked (%d likes)", s.LikeCount)
	}
	return fmt.Sprintf("not liked (%d likes)", s.LikeCount)
}

func parseID(name, s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", name, s)
	}
	return id, nil
}
