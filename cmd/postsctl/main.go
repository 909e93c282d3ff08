// Command postsctl reads and edits users and posts through the query cache.
//
//	postsctl users [-page N] [-size M]
//	postsctl count
//	postsctl user ID
//	postsctl posts USER
//	postsctl create USER TITLE BODY
//	postsctl delete USER POST
//
// Settings come from QUERYCACHE_* environment variables.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/unkn0wn-root/querycache/config"
	"github.com/unkn0wn-root/querycache/internal/app"
	"github.com/unkn0wn-root/querycache/queries"
	"github.com/unkn0wn-root/querycache/resource"
	"github.com/unkn0wn-root/querycache/transport"
)

var errUsage = errors.New("usage")

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 2
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	a, err := app.New(ctx, cfg, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer func() {
		if err := a.Close(context.WithoutCancel(ctx)); err != nil {
			fmt.Fprintf(stderr, "Error: close: %v\n", err)
		}
	}()

	out, err := dispatch(ctx, a.Service, args[0], args[1:])
	switch {
	case errors.Is(err, errUsage):
		usage(stderr)
		return 2
	case err != nil:
		if ae, ok := transport.AsApplicationError(err); ok {
			fmt.Fprintf(stderr, "Error: %s\n", ae.Message)
		} else {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return 1
	}
	if out == nil {
		return 0
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintf(stderr, "Error: encode output: %v\n", err)
		return 1
	}
	return 0
}

func dispatch(ctx context.Context, s *queries.Service, cmd string, args []string) (any, error) {
	switch cmd {
	case "users":
		fs := flag.NewFlagSet("users", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		page := fs.Int("page", 0, "page number (0-based)")
		size := fs.Int("size", 10, "page size")
		if err := fs.Parse(args); err != nil || fs.NArg() != 0 {
			return nil, errUsage
		}
		users, err := s.FetchUsers(ctx, *page, *size)
		if err != nil {
			return nil, err
		}
		if len(users) == *size {
			// best effort; a failed fetch is logged by the client
			_ = s.PrefetchUsers(ctx, *page+1, *size)
		}
		return users, nil

	case "count":
		if len(args) != 0 {
			return nil, errUsage
		}
		n, err := s.UsersCount(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]int{"count": n}, nil

	case "user":
		if len(args) != 1 {
			return nil, errUsage
		}
		u, err := s.FetchUser(ctx, args[0])
		if err != nil {
			return nil, err
		}
		if u == nil {
			return nil, fmt.Errorf("user %s not found", args[0])
		}
		return u, nil

	case "posts":
		if len(args) != 1 {
			return nil, errUsage
		}
		return s.FetchPosts(ctx, args[0])

	case "create":
		if len(args) != 3 {
			return nil, errUsage
		}
		return s.CreatePost(ctx, resource.CreatePostRequest{UserID: args[0], Title: args[1], Body: args[2]})

	case "delete":
		if len(args) != 2 {
			return nil, errUsage
		}
		in := queries.DeletePostInput{UserID: args[0], PostID: args[1]}
		if _, err := s.FetchPosts(ctx, in.UserID); err != nil {
			return nil, err
		}
		if err := s.DeletePost(ctx, in); err != nil {
			return nil, err
		}
		return s.FetchPosts(ctx, in.UserID)

	default:
		return nil, errUsage
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, `usage:
  postsctl users [-page N] [-size M]
  postsctl count
  postsctl user ID
  postsctl posts USER
  postsctl create USER TITLE BODY
  postsctl delete USER POST`)
}
