package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Brownie44l1/skinlens/internal/service"
)

type signupRequest struct {
	Username                string `json:"username"`
	Email                   string `json:"email"`
	Password                string `json:"password"`
	FamilyHistorySkinCancer bool   `json:"family_history_skin_cancer"`
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

func (h *Handler) Signup(c *gin.Context) {
	var req signupRequest
	if !h.bind(c, &req) {
		return
	}

	user, session, err := h.accounts.Signup(c.Request.Context(), service.SignupInput{
		Username:                req.Username,
		Email:                   req.Email,
		Password:                req.Password,
		FamilyHistorySkinCancer: req.FamilyHistorySkinCancer,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	h.log.Info("User signed up", zap.Int64("user_id", user.ID))
	c.JSON(http.StatusCreated, gin.H{
		"message": "User created successfully",
		"access":  session.AccessToken,
		"refresh": session.RefreshToken,
		"user":    newMeView(user),
	})
}

func (h *Handler) Login(c *gin.Context) {
	var req credentialsRequest
	if !h.bind(c, &req) {
		return
	}

	session, err := h.accounts.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newTokenView(session))
}

func (h *Handler) RefreshToken(c *gin.Context) {
	var req refreshRequest
	if !h.bind(c, &req) {
		return
	}

	session, err := h.accounts.Refresh(c.Request.Context(), req.Refresh)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newTokenView(session))
}

func (h *Handler) Signout(c *gin.Context) {
	if err := h.accounts.Signout(c.Request.Context(), c.GetString(tokenKey)); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Signed out"})
}

func (h *Handler) Me(c *gin.Context) {
	c.JSON(http.StatusOK, newMeView(currentUser(c)))
}
