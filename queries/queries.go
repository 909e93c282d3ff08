// Package queries is the catalogue of cached reads and mutations over the
// users/posts API: the keys they live under, how they fetch, and how the
// post mutations keep the cache consistent.
package queries

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/unkn0wn-root/querycache"
	"github.com/unkn0wn-root/querycache/codec"
	"github.com/unkn0wn-root/querycache/resource"
)

func PostsKey(userID string) querycache.Key { return querycache.Key{"posts", userID} }

func UsersPageKey(page, size int) querycache.Key { return querycache.Key{"users", page, size} }

func UsersCountKey() querycache.Key { return querycache.Key{"users", "count"} }

func UserKey(userID string) querycache.Key { return querycache.Key{"user", userID} }

type Options struct {
	// Codec names the codec used for list and user values ("json", "cbor",
	// "msgpack"). The users count is always protobuf.
	Codec  string
	Logger querycache.Logger

	// MaxDecode refuses cached list and user values larger than this many
	// bytes. Set it when the provider is shared with other processes.
	MaxDecode int
}

// DeletePostInput names the post and the user whose list holds it.
type DeletePostInput struct {
	UserID string
	PostID string
}

type Service struct {
	c     *querycache.Client
	users *resource.UsersClient
	posts *resource.PostsClient
	log   querycache.Logger

	postsCodec codec.Codec[[]resource.Post]
	usersCodec codec.Codec[[]resource.User]
	userCodec  codec.Codec[*resource.User]
	countCodec codec.Codec[*wrapperspb.Int64Value]

	createPost *querycache.Mutation[resource.CreatePostRequest, resource.Post]
	deletePost *querycache.Mutation[DeletePostInput, struct{}]
}

func New(c *querycache.Client, t resource.Transport, opts Options) (*Service, error) {
	if c == nil || t == nil {
		return nil, fmt.Errorf("queries: client and transport are required")
	}
	s := &Service{
		c:     c,
		users: resource.NewUsersClient(t),
		posts: resource.NewPostsClient(t),
		log:   opts.Logger,
		countCodec: codec.NewProtobuf(func() *wrapperspb.Int64Value {
			return &wrapperspb.Int64Value{}
		}),
	}
	if s.log == nil {
		s.log = querycache.NopLogger{}
	}
	var err error
	if s.postsCodec, err = valueCodec[[]resource.Post](opts); err != nil {
		return nil, err
	}
	if s.usersCodec, err = valueCodec[[]resource.User](opts); err != nil {
		return nil, err
	}
	if s.userCodec, err = valueCodec[*resource.User](opts); err != nil {
		return nil, err
	}

	s.createPost = querycache.NewMutation(c, querycache.MutationOptions[resource.CreatePostRequest, resource.Post]{
		Fn: s.posts.Create,
		OnSuccess: func(ctx context.Context, in resource.CreatePostRequest, _ resource.Post) {
			c.InvalidateQueries(ctx, PostsKey(in.UserID))
		},
	})
	s.deletePost = querycache.NewMutation(c, querycache.MutationOptions[DeletePostInput, struct{}]{
		Fn: func(ctx context.Context, in DeletePostInput) (struct{}, error) {
			return struct{}{}, s.posts.Delete(ctx, in.PostID)
		},
		Hooks: querycache.MutationHooks[DeletePostInput]{
			OnBeforeCommit: s.removePostOptimistically,
			OnSettled: func(ctx context.Context, in DeletePostInput, _ error) {
				c.InvalidateQueries(ctx, PostsKey(in.UserID))
			},
		},
	})
	return s, nil
}

func (s *Service) Client() *querycache.Client { return s.c }

// PostsQuery lists a user's posts; an empty user id disables it.
func (s *Service) PostsQuery(userID string) querycache.QueryOptions[[]resource.Post] {
	return querycache.QueryOptions[[]resource.Post]{
		Key: PostsKey(userID),
		Fn: func(ctx context.Context) ([]resource.Post, error) {
			return s.posts.ListByUser(ctx, userID)
		},
		Codec:    s.postsCodec,
		Disabled: userID == "",
	}
}

func (s *Service) Posts(ctx context.Context, userID string) querycache.Result[[]resource.Post] {
	return querycache.Query(ctx, s.c, s.PostsQuery(userID))
}

func (s *Service) FetchPosts(ctx context.Context, userID string) ([]resource.Post, error) {
	return querycache.Fetch(ctx, s.c, s.PostsQuery(userID))
}

func (s *Service) UsersQuery(page, size int) querycache.QueryOptions[[]resource.User] {
	return querycache.QueryOptions[[]resource.User]{
		Key: UsersPageKey(page, size),
		Fn: func(ctx context.Context) ([]resource.User, error) {
			return s.users.List(ctx, page, size)
		},
		Codec: s.usersCodec,
	}
}

func (s *Service) Users(ctx context.Context, page, size int) querycache.Result[[]resource.User] {
	return querycache.Query(ctx, s.c, s.UsersQuery(page, size))
}

func (s *Service) FetchUsers(ctx context.Context, page, size int) ([]resource.User, error) {
	return querycache.Fetch(ctx, s.c, s.UsersQuery(page, size))
}

// PrefetchUsers warms a users page, typically the one after the page on
// screen, without marking it as an active query.
func (s *Service) PrefetchUsers(ctx context.Context, page, size int) error {
	return querycache.Prefetch(ctx, s.c, s.UsersQuery(page, size))
}

// UsersCount is cached as a protobuf Int64Value.
func (s *Service) UsersCount(ctx context.Context) (int, error) {
	v, err := querycache.Fetch(ctx, s.c, querycache.QueryOptions[*wrapperspb.Int64Value]{
		Key: UsersCountKey(),
		Fn: func(ctx context.Context) (*wrapperspb.Int64Value, error) {
			n, err := s.users.Count(ctx)
			if err != nil {
				return nil, err
			}
			return wrapperspb.Int64(int64(n)), nil
		},
		Codec: s.countCodec,
	})
	if err != nil {
		return 0, err
	}
	return int(v.GetValue()), nil
}

// UserQuery finds one user by walking the user pages. A user that does not
// exist is cached as nil.
func (s *Service) UserQuery(userID string) querycache.QueryOptions[*resource.User] {
	return querycache.QueryOptions[*resource.User]{
		Key: UserKey(userID),
		Fn: func(ctx context.Context) (*resource.User, error) {
			u, err := s.users.Find(ctx, userID)
			if errors.Is(err, resource.ErrUserNotFound) {
				return nil, nil
			}
			if err != nil {
				return nil, err
			}
			return &u, nil
		},
		Codec:    s.userCodec,
		Disabled: userID == "",
	}
}

func (s *Service) User(ctx context.Context, userID string) querycache.Result[*resource.User] {
	return querycache.Query(ctx, s.c, s.UserQuery(userID))
}

func (s *Service) FetchUser(ctx context.Context, userID string) (*resource.User, error) {
	return querycache.Fetch(ctx, s.c, s.UserQuery(userID))
}

// CreatePost creates a post and refetches that user's list once the server
// accepts it. The cache is not edited before the server answers.
func (s *Service) CreatePost(ctx context.Context, req resource.CreatePostRequest) (resource.Post, error) {
	return s.createPost.Execute(ctx, req)
}

// DeletePost removes the post from the cached list at once, restores the
// list if the server refuses, and refetches it either way.
func (s *Service) DeletePost(ctx context.Context, in DeletePostInput) error {
	_, err := s.deletePost.Execute(ctx, in)
	return err
}

func valueCodec[V any](opts Options) (codec.Codec[V], error) {
	c, err := codec.ByName[V](opts.Codec)
	if err != nil || opts.MaxDecode <= 0 {
		return c, err
	}
	return codec.LimitCodec[V]{Inner: c, MaxDecode: opts.MaxDecode}, nil
}

func (s *Service) CreatePostState() querycache.MutationState[resource.Post] {
	return s.createPost.State()
}

func (s *Service) DeletePostState() querycache.MutationState[struct{}] {
	return s.deletePost.State()
}

func (s *Service) removePostOptimistically(ctx context.Context, in DeletePostInput) (querycache.Snapshot, error) {
	k := PostsKey(in.UserID)
	if err := s.c.CancelQueries(ctx, k); err != nil {
		return querycache.Snapshot{}, err
	}
	snap, err := s.c.Store().Snapshot(ctx, k)
	if err != nil {
		return querycache.Snapshot{}, err
	}
	_, err = querycache.SetQueryData(ctx, s.c, k, s.postsCodec, func(old []resource.Post, ok bool) ([]resource.Post, bool) {
		if !ok {
			return nil, false
		}
		return slices.DeleteFunc(slices.Clone(old), func(p resource.Post) bool { return p.ID == in.PostID }), true
	})
	if err != nil {
		return snap, err
	}
	s.log.Debug("post removed optimistically", querycache.Fields{"user": in.UserID, "post": in.PostID})
	return snap, nil
}
