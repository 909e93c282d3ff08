package resource

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strconv"
)

const (
	findPageSize = 100
	findMaxPage  = 100
)

var ErrUserNotFound = errors.New("resource: user not found")

// Transport is the subset of *transport.Client the resource clients use.
type Transport interface {
	Get(ctx context.Context, path string, out any) error
	Post(ctx context.Context, path string, body, out any) error
	Delete(ctx context.Context, path string) error
}

type UsersClient struct{ t Transport }

func NewUsersClient(t Transport) *UsersClient { return &UsersClient{t: t} }

// List returns one page of users. Missing formatted addresses are derived
// from the address parts.
func (c *UsersClient) List(ctx context.Context, pageNumber, pageSize int) ([]User, error) {
	q := url.Values{}
	q.Set("pageNumber", strconv.Itoa(pageNumber))
	q.Set("pageSize", strconv.Itoa(pageSize))

	var users []User
	if err := c.t.Get(ctx, "/users?"+q.Encode(), &users); err != nil {
		return nil, err
	}
	for i := range users {
		if users[i].Address == "" {
			users[i].Address = users[i].FormattedAddress()
		}
	}
	return users, nil
}

func (c *UsersClient) Count(ctx context.Context) (int, error) {
	var out struct {
		Count int `json:"count"`
	}
	if err := c.t.Get(ctx, "/users/count", &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

// Find walks the user pages until it sees userID. It stops on a short page
// or after findMaxPage pages.
func (c *UsersClient) Find(ctx context.Context, userID string) (User, error) {
	for page := 0; page <= findMaxPage; page++ {
		users, err := c.List(ctx, page, findPageSize)
		if err != nil {
			return User{}, err
		}
		if i := slices.IndexFunc(users, func(u User) bool { return u.ID == userID }); i >= 0 {
			return users[i], nil
		}
		if len(users) < findPageSize {
			break
		}
	}
	return User{}, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
}

type PostsClient struct{ t Transport }

func NewPostsClient(t Transport) *PostsClient { return &PostsClient{t: t} }

func (c *PostsClient) ListByUser(ctx context.Context, userID string) ([]Post, error) {
	var posts []Post
	if err := c.t.Get(ctx, "/posts?userId="+url.QueryEscape(userID), &posts); err != nil {
		return nil, err
	}
	if posts == nil {
		posts = []Post{}
	}
	return posts, nil
}

func (c *PostsClient) Create(ctx context.Context, req CreatePostRequest) (Post, error) {
	var p Post
	if err := c.t.Post(ctx, "/posts", req, &p); err != nil {
		return Post{}, err
	}
	return p, nil
}

func (c *PostsClient) Delete(ctx context.Context, postID string) error {
	return c.t.Delete(ctx, "/posts/"+url.PathEscape(postID))
}
