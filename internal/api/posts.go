package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Brownie44l1/skinlens/internal/domain/entity"
)

type postRequest struct {
	Content string `json:"content"`
}

// The web client sends the post id as a string, so accept both forms.
type commentRequest struct {
	Post    json.Number `json:"post"`
	Comment string      `json:"comment"`
}

func (h *Handler) CreatePost(c *gin.Context) {
	var req postRequest
	if !h.bind(c, &req) {
		return
	}

	post, err := h.posts.Create(c.Request.Context(), currentUser(c), req.Content)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, newPostView(post))
}

func (h *Handler) ListPosts(c *gin.Context) {
	posts, err := h.posts.List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}

	views := make([]postView, 0, len(posts))
	for i := range posts {
		views = append(views, newPostView(&posts[i]))
	}
	c.JSON(http.StatusOK, views)
}

func (h *Handler) GetPost(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.fail(c, err)
		return
	}

	post, comments, err := h.posts.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}

	view := postDetailView{postView: newPostView(post), Comments: make([]commentView, 0, len(comments))}
	for i := range comments {
		view.Comments = append(view.Comments, newCommentView(&comments[i]))
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) CreateComment(c *gin.Context) {
	var req commentRequest
	if !h.bind(c, &req) {
		return
	}
	postID, err := parseID(req.Post.String())
	if err != nil {
		h.fail(c, fmt.Errorf("%w: post is required", entity.ErrInvalid))
		return
	}

	comment, err := h.posts.Comment(c.Request.Context(), currentUser(c), postID, req.Comment)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, newCommentView(comment))
}
