package controllers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kvfeed/kvfeed/auth"
	"github.com/kvfeed/kvfeed/feed"
	"github.com/kvfeed/kvfeed/kv"
	"github.com/kvfeed/kvfeed/models"
	"github.com/kvfeed/kvfeed/utils"
)

// PostController handles the feed surface: listing posts, creating posts
// behind the auth gate, and applying like updates.
type PostController struct {
	feed *feed.Store
	gate *auth.Delegate
}

// NewPostController creates a new PostController instance.
func NewPostController(feedStore *feed.Store, gate *auth.Delegate) *PostController {
	return &PostController{feed: feedStore, gate: gate}
}

// ListPosts returns every stored post, newest first.
func (p *PostController) ListPosts(ctx *gin.Context) {
	posts, err := p.feed.List(ctx.Request.Context())
	if err != nil {
		utils.Sugar.Errorf("list posts failed: %v", err)
		utils.Error(ctx, http.StatusBadGateway, "could not read posts from store")
		return
	}
	ctx.JSON(http.StatusOK, posts)
}

// CreatePost gates the write through the auth delegate, then stores the post
// with a server-assigned timestamp. When the gate registered a new user, the
// auth server's session cookie is relayed verbatim on the response.
func (p *PostController) CreatePost(ctx *gin.Context) {
	var post models.Post
	if err := ctx.ShouldBindJSON(&post); err != nil {
		utils.Error(ctx, http.StatusBadRequest, "invalid request payload")
		return
	}
	// Usernames match byte for byte everywhere (no trimming or case
	// folding), so the only input rejected here beyond absence is the key
	// separator, which would make the post key ambiguous.
	if post.Username == "" {
		utils.Error(ctx, http.StatusBadRequest, "no username present in new post")
		return
	}
	if strings.Contains(post.Username, feed.KeySep) {
		utils.Error(ctx, http.StatusBadRequest, "username contains a reserved character")
		return
	}
	post.Title = utils.Sanitize(post.Title)
	post.Content = utils.Sanitize(post.Content)

	rctx := ctx.Request.Context()
	// Registration timestamp for a first-time user. The post's own time is
	// stamped independently inside feed.Store.Create, so the two can differ
	// by the gap between the clock reads; the registry value is
	// informational only, so the divergence is tolerated.
	now := time.Now().UTC().Format(time.RFC3339Nano)
	gated, err := p.gate.GatePost(rctx, post.Username, ctx.GetHeader("Cookie"), now)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrRejected):
			utils.Error(ctx, http.StatusUnauthorized, "could not verify user")
		case errors.Is(err, auth.ErrVerifyUnavailable):
			utils.Sugar.Warnf("verification call failed for %q: %v", post.Username, err)
			utils.Error(ctx, http.StatusUnauthorized, "could not verify user")
		case errors.Is(err, kv.ErrUnavailable):
			utils.Sugar.Errorf("registry lookup failed for %q: %v", post.Username, err)
			utils.Error(ctx, http.StatusBadGateway, "could not reach store")
		default:
			utils.Sugar.Errorf("auth gate failed for %q: %v", post.Username, err)
			utils.Error(ctx, http.StatusBadGateway, "authentication service unavailable")
		}
		return
	}

	stored, err := p.feed.Create(rctx, post)
	if err != nil {
		utils.Sugar.Errorf("store post failed: %v", err)
		utils.Error(ctx, http.StatusBadGateway, "could not store post")
		return
	}

	if gated.SetCookie != "" {
		ctx.Header("Set-Cookie", gated.SetCookie)
	}
	ctx.JSON(http.StatusOK, stored)
}

// UpdateLikes overwrites a post with the incoming body, which carries the
// already-incremented like count. The post is located purely by
// reconstructing its key from its own username and time fields. There is no
// identity gate here; whether likes are meant to be anonymous is an open
// product question and the permissive behavior is kept as-is.
func (p *PostController) UpdateLikes(ctx *gin.Context) {
	var post models.Post
	if err := ctx.ShouldBindJSON(&post); err != nil {
		utils.Error(ctx, http.StatusBadRequest, "invalid request payload")
		return
	}
	if post.Username == "" || post.Time == "" {
		utils.Error(ctx, http.StatusBadRequest, "username and time are required to locate the post")
		return
	}
	// Same boundary as creation: a separator in the username would
	// reconstruct a key no create path could ever have produced.
	if strings.Contains(post.Username, feed.KeySep) {
		utils.Error(ctx, http.StatusBadRequest, "username contains a reserved character")
		return
	}

	if err := p.feed.ApplyLike(ctx.Request.Context(), post); err != nil {
		utils.Sugar.Errorf("apply like failed: %v", err)
		utils.Error(ctx, http.StatusBadGateway, "could not update post")
		return
	}
	ctx.JSON(http.StatusOK, post)
}
