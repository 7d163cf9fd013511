package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nasermirzaei89/backtalk/articles"
	"github.com/nasermirzaei89/backtalk/db/sqlite3"
	"github.com/nasermirzaei89/backtalk/discuss"
	"github.com/nasermirzaei89/backtalk/identity"
	"github.com/nasermirzaei89/backtalk/live"
	"github.com/nasermirzaei89/backtalk/web"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testAPI struct {
	server *httptest.Server
	tokens *identity.TokenManager
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	ctx := context.Background()
	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"

	db, err := sqlite3.NewDB(ctx, dsn)
	require.NoError(t, err)

	t.Cleanup(func() {
		err := db.Close()
		if err != nil {
			t.Logf("failed to close db: %v", err)
		}
	})

	require.NoError(t, sqlite3.MigrateUp(ctx, db))

	articleRepo := sqlite3.NewArticleRepository(db)
	postRepo := sqlite3.NewPostRepository(db)

	articlesSvc := articles.NewService(articleRepo)

	hub := live.NewHub()
	discussSvc := discuss.NewService(postRepo, articlesSvc, live.NewAnnouncer(hub))
	composer := discuss.NewComposer(postRepo)

	tokens := identity.NewTokenManager([]byte("test-secret"), time.Hour)

	handler := web.NewHandler(articlesSvc, discussSvc, composer, tokens, hub.Handler())

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return &testAPI{server: server, tokens: tokens}
}

func (api *testAPI) token(t *testing.T, userID string, roles ...string) string {
	t.Helper()

	token, err := api.tokens.Issue(identity.Principal{ID: userID, Roles: roles})
	require.NoError(t, err)

	return token
}

// do sends a request and decodes the JSON response body into target when
// target is not nil.
func (api *testAPI) do(t *testing.T, method, path, token string, body, target any) *http.Response {
	t.Helper()

	var reqBody io.Reader

	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)

		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, api.server.URL+path, reqBody)
	require.NoError(t, err)

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := api.server.Client().Do(req)
	require.NoError(t, err)

	defer func() {
		require.NoError(t, res.Body.Close())
	}()

	if target != nil {
		require.NoError(t, json.NewDecoder(res.Body).Decode(target))
	}

	return res
}

func (api *testAPI) createArticle(t *testing.T, token string) map[string]any {
	t.Helper()

	var article map[string]any

	res := api.do(t, http.MethodPost, "/articles", token, map[string]any{
		"title":     "Test Article " + t.Name(),
		"content":   "body",
		"published": true,
	}, &article)
	require.Equal(t, http.StatusCreated, res.StatusCode)

	return article
}

func (api *testAPI) createPost(t *testing.T, token string, body map[string]any) map[string]any {
	t.Helper()

	var post map[string]any

	res := api.do(t, http.MethodPost, "/posts", token, body, &post)
	require.Equal(t, http.StatusCreated, res.StatusCode)

	return post
}

func TestArticleEndpoints(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	authorToken := api.token(t, "user-1")

	t.Run("create requires authentication", func(t *testing.T) {
		res := api.do(t, http.MethodPost, "/articles", "", map[string]any{"title": "Nope"}, nil)
		assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	})

	t.Run("invalid token is rejected", func(t *testing.T) {
		res := api.do(t, http.MethodPost, "/articles", "garbage", map[string]any{"title": "Nope"}, nil)
		assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	})

	var articleID string

	t.Run("create and fetch", func(t *testing.T) {
		var article map[string]any

		res := api.do(t, http.MethodPost, "/articles", authorToken, map[string]any{
			"title":     "Hello World",
			"content":   "body",
			"published": true,
		}, &article)
		require.Equal(t, http.StatusCreated, res.StatusCode)

		articleID = article["id"].(string)
		assert.Equal(t, "hello-world", article["slug"])
		assert.Equal(t, "user-1", article["authorId"])

		var fetched map[string]any

		res = api.do(t, http.MethodGet, "/articles/"+articleID, "", nil, &fetched)
		require.Equal(t, http.StatusOK, res.StatusCode)
		assert.Equal(t, "Hello World", fetched["title"])
	})

	t.Run("duplicate slug conflicts", func(t *testing.T) {
		res := api.do(t, http.MethodPost, "/articles", authorToken, map[string]any{
			"title": "Hello World",
		}, nil)
		assert.Equal(t, http.StatusConflict, res.StatusCode)
	})

	t.Run("search by title", func(t *testing.T) {
		var found []map[string]any

		res := api.do(t, http.MethodGet, "/articles?title=hello", "", nil, &found)
		require.Equal(t, http.StatusOK, res.StatusCode)
		require.Len(t, found, 1)
		assert.Equal(t, articleID, found[0]["id"])
	})

	t.Run("missing article is 404", func(t *testing.T) {
		res := api.do(t, http.MethodGet, "/articles/missing", "", nil, nil)
		assert.Equal(t, http.StatusNotFound, res.StatusCode)
	})
}

func TestPostEndpoints(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	authorToken := api.token(t, "author-1")
	strangerToken := api.token(t, "stranger-1")
	adminToken := api.token(t, "admin-1", discuss.RoleAdmin)

	article := api.createArticle(t, authorToken)
	articleID := article["id"].(string)

	t.Run("create requires authentication", func(t *testing.T) {
		res := api.do(t, http.MethodPost, "/posts", "", map[string]any{
			"content":   "anonymous",
			"articleId": articleID,
		}, nil)
		assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	})

	t.Run("post without anchor is 400", func(t *testing.T) {
		res := api.do(t, http.MethodPost, "/posts", authorToken, map[string]any{"content": "floating"}, nil)
		assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	})

	t.Run("post on unknown article is 404", func(t *testing.T) {
		res := api.do(t, http.MethodPost, "/posts", authorToken, map[string]any{
			"content":   "lost",
			"articleId": "missing",
		}, nil)
		assert.Equal(t, http.StatusNotFound, res.StatusCode)
	})

	comment := api.createPost(t, authorToken, map[string]any{
		"content":   "first comment",
		"articleId": articleID,
	})
	commentID := comment["id"].(string)

	reply := api.createPost(t, strangerToken, map[string]any{
		"content":  "a reply",
		"parentId": commentID,
	})
	replyID := reply["id"].(string)

	t.Run("search replies of a post", func(t *testing.T) {
		var found []map[string]any

		res := api.do(t, http.MethodGet, "/posts?onlyReplies=true&postId="+commentID, "", nil, &found)
		require.Equal(t, http.StatusOK, res.StatusCode)
		require.Len(t, found, 1)
		assert.Equal(t, replyID, found[0]["id"])
	})

	t.Run("onlyReplies without postId is 400", func(t *testing.T) {
		res := api.do(t, http.MethodGet, "/posts?onlyReplies=true", "", nil, nil)
		assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	})

	t.Run("article thread includes reply counts", func(t *testing.T) {
		var thread []map[string]any

		res := api.do(t, http.MethodGet, "/articles/"+articleID+"/thread", "", nil, &thread)
		require.Equal(t, http.StatusOK, res.StatusCode)
		require.Len(t, thread, 1)
		assert.Equal(t, commentID, thread[0]["id"])
		assert.EqualValues(t, 1, thread[0]["replyCount"])
	})

	t.Run("post thread lists replies", func(t *testing.T) {
		var thread map[string]any

		res := api.do(t, http.MethodGet, "/posts/"+commentID+"/thread", "", nil, &thread)
		require.Equal(t, http.StatusOK, res.StatusCode)

		replies := thread["replies"].([]any)
		require.Len(t, replies, 1)
	})

	t.Run("stranger cannot edit", func(t *testing.T) {
		res := api.do(t, http.MethodPatch, "/posts/"+commentID, strangerToken, map[string]any{
			"content": "defaced",
		}, nil)
		assert.Equal(t, http.StatusForbidden, res.StatusCode)
	})

	t.Run("author edits own post", func(t *testing.T) {
		var updated map[string]any

		res := api.do(t, http.MethodPatch, "/posts/"+commentID, authorToken, map[string]any{
			"content": "first comment, edited",
		}, &updated)
		require.Equal(t, http.StatusOK, res.StatusCode)
		assert.Equal(t, "first comment, edited", updated["content"])
	})

	t.Run("delete with replies tombstones", func(t *testing.T) {
		res := api.do(t, http.MethodDelete, "/posts/"+commentID, authorToken, nil, nil)
		require.Equal(t, http.StatusNoContent, res.StatusCode)

		var fetched map[string]any

		res = api.do(t, http.MethodGet, "/posts/"+commentID, "", nil, &fetched)
		require.Equal(t, http.StatusOK, res.StatusCode)
		assert.Equal(t, "deleted", fetched["content"])
	})

	t.Run("admin purges childless reply", func(t *testing.T) {
		res := api.do(t, http.MethodDelete, "/posts/"+replyID, adminToken, nil, nil)
		require.Equal(t, http.StatusNoContent, res.StatusCode)

		res = api.do(t, http.MethodGet, "/posts/"+replyID, "", nil, nil)
		assert.Equal(t, http.StatusNotFound, res.StatusCode)
	})

	t.Run("malformed body is 400", func(t *testing.T) {
		req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, api.server.URL+"/posts", strings.NewReader("{"))
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+authorToken)

		res, err := api.server.Client().Do(req)
		require.NoError(t, err)
		require.NoError(t, res.Body.Close())

		assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	})
}

func TestLiveEndpoint(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	authorToken := api.token(t, "author-1")

	article := api.createArticle(t, authorToken)
	articleID := article["id"].(string)

	wsURL := "ws" + strings.TrimPrefix(api.server.URL, "http") + "/live?articleId=" + articleID

	conn, res, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, res.Body.Close())

		err := conn.Close()
		if err != nil {
			t.Logf("failed to close websocket: %v", err)
		}
	})

	// The server registers the subscription right after the handshake; give
	// it a moment before publishing the first event.
	time.Sleep(100 * time.Millisecond)

	comment := api.createPost(t, authorToken, map[string]any{
		"content":   "live comment",
		"articleId": articleID,
	})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var event struct {
		Event   string          `json:"event"`
		Payload json.RawMessage `json:"payload"`
	}

	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, "newComment", event.Event)

	var payload map[string]any

	require.NoError(t, json.Unmarshal(event.Payload, &payload))
	assert.Equal(t, comment["id"], payload["id"])

	t.Run("reply event carries parent id", func(t *testing.T) {
		api.createPost(t, authorToken, map[string]any{
			"content":  "live reply",
			"parentId": comment["id"].(string),
		})

		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		require.NoError(t, conn.ReadJSON(&event))
		assert.Equal(t, "newReply", event.Event)

		var replyPayload struct {
			ParentID string         `json:"parentId"`
			Reply    map[string]any `json:"reply"`
		}

		require.NoError(t, json.Unmarshal(event.Payload, &replyPayload))
		assert.Equal(t, comment["id"], replyPayload.ParentID)
		assert.Equal(t, "live reply", replyPayload.Reply["content"])
	})
}
