package resource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

type call struct {
	method string
	path   string
	body   any
}

// fakeTransport answers from a path->JSON table.
type fakeTransport struct {
	calls   []call
	replies map[string]string
	err     error
}

func (f *fakeTransport) Get(_ context.Context, path string, out any) error {
	f.calls = append(f.calls, call{method: "GET", path: path})
	if f.err != nil {
		return f.err
	}
	raw, ok := f.replies[path]
	if !ok {
		raw = "[]"
	}
	return json.Unmarshal([]byte(raw), out)
}

func (f *fakeTransport) Post(_ context.Context, path string, body, out any) error {
	f.calls = append(f.calls, call{method: "POST", path: path, body: body})
	if f.err != nil {
		return f.err
	}
	return json.Unmarshal([]byte(f.replies[path]), out)
}

func (f *fakeTransport) Delete(_ context.Context, path string) error {
	f.calls = append(f.calls, call{method: "DELETE", path: path})
	return f.err
}

func TestListByUserPath(t *testing.T) {
	ft := &fakeTransport{replies: map[string]string{
		"/posts?userId=user1": `[{"id":"1","user_id":"user1","title":"Test Post","body":"Test Body","created_at":"2024-01-01T00:00:00Z"}]`,
	}}
	posts, err := NewPostsClient(ft).ListByUser(context.Background(), "user1")
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(posts) != 1 || posts[0].UserID != "user1" || posts[0].Title != "Test Post" {
		t.Fatalf("posts=%+v", posts)
	}
	if ts, err := posts[0].Created(); err != nil || ts.Year() != 2024 {
		t.Fatalf("Created=%v err=%v", ts, err)
	}

	_, _ = NewPostsClient(ft).ListByUser(context.Background(), "a b&c")
	if got := ft.calls[1].path; got != "/posts?userId=a+b%26c" {
		t.Fatalf("escaped path=%q", got)
	}
}

func TestCreateAndDeletePost(t *testing.T) {
	ft := &fakeTransport{replies: map[string]string{
		"/posts": `{"id":"2","user_id":"user1","title":"New Post","body":"New Body","created_at":"2024-01-02T00:00:00Z"}`,
	}}
	pc := NewPostsClient(ft)
	req := CreatePostRequest{Title: "New Post", Body: "New Body", UserID: "user1"}
	p, err := pc.Create(context.Background(), req)
	if err != nil || p.ID != "2" {
		t.Fatalf("Create=%+v err=%v", p, err)
	}
	if ft.calls[0].body != req {
		t.Fatalf("body=%+v", ft.calls[0].body)
	}
	b, _ := json.Marshal(req)
	if string(b) != `{"title":"New Post","body":"New Body","userId":"user1"}` {
		t.Fatalf("wire body=%s", b)
	}

	if err := pc.Delete(context.Background(), "post/1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got := ft.calls[1]; got.method != "DELETE" || got.path != "/posts/post%2F1" {
		t.Fatalf("delete call=%+v", got)
	}
}

func TestDeletePropagatesError(t *testing.T) {
	sentinel := errors.New("Post not found")
	ft := &fakeTransport{err: sentinel}
	if err := NewPostsClient(ft).Delete(context.Background(), "invalid-id"); !errors.Is(err, sentinel) {
		t.Fatalf("err=%v", err)
	}
}

func TestUsersListAndCount(t *testing.T) {
	ft := &fakeTransport{replies: map[string]string{
		"/users?pageNumber=2&pageSize=25": `[
			{"id":"u1","name":"Ada","street":"1 Main St","city":"Springfield","state":"IL","zipcode":"62701"},
			{"id":"u2","name":"Bob","address":"kept as sent","street":"x"},
			{"id":"u3","name":"Cy","city":"Paris"}
		]`,
		"/users/count": `{"count":123}`,
	}}
	uc := NewUsersClient(ft)
	users, err := uc.List(context.Background(), 2, 25)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{"1 Main St, IL, Springfield, 62701", "kept as sent", "Paris"}
	for i, w := range want {
		if users[i].Address != w {
			t.Fatalf("users[%d].Address=%q want %q", i, users[i].Address, w)
		}
	}
	n, err := uc.Count(context.Background())
	if err != nil || n != 123 {
		t.Fatalf("Count=%d err=%v", n, err)
	}
}

func TestFindWalksPages(t *testing.T) {
	page := func(start, n int) string {
		us := make([]User, n)
		for i := range us {
			us[i] = User{ID: fmt.Sprintf("u%d", start+i)}
		}
		b, _ := json.Marshal(us)
		return string(b)
	}
	ft := &fakeTransport{replies: map[string]string{
		"/users?pageNumber=0&pageSize=100": page(0, 100),
		"/users?pageNumber=1&pageSize=100": page(100, 100),
		"/users?pageNumber=2&pageSize=100": page(200, 7),
	}}
	uc := NewUsersClient(ft)

	u, err := uc.Find(context.Background(), "u150")
	if err != nil || u.ID != "u150" {
		t.Fatalf("Find=%+v err=%v", u, err)
	}
	if len(ft.calls) != 2 {
		t.Fatalf("pages fetched=%d want 2", len(ft.calls))
	}

	ft.calls = nil
	if _, err := uc.Find(context.Background(), "nobody"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("err=%v want ErrUserNotFound", err)
	}
	if len(ft.calls) != 3 {
		t.Fatalf("short page should stop the walk: calls=%d", len(ft.calls))
	}
}
