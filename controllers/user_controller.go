package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kvfeed/kvfeed/identity"
	"github.com/kvfeed/kvfeed/models"
	"github.com/kvfeed/kvfeed/utils"
)

// UserController exposes the identity registry.
type UserController struct {
	registry *identity.Registry
}

func NewUserController(registry *identity.Registry) *UserController {
	return &UserController{registry: registry}
}

// ListUsers returns the registered usernames.
func (u *UserController) ListUsers(ctx *gin.Context) {
	users, err := u.registry.List(ctx.Request.Context())
	if err != nil {
		utils.Sugar.Errorf("list users failed: %v", err)
		utils.Error(ctx, http.StatusBadGateway, "could not read users from store")
		return
	}
	ctx.JSON(http.StatusOK, users)
}

// RegisterUser registers a username unconditionally and echoes the body. A
// repeat registration overwrites the timestamp, which is informational only.
func (u *UserController) RegisterUser(ctx *gin.Context) {
	var user models.User
	if err := ctx.ShouldBindJSON(&user); err != nil {
		utils.Error(ctx, http.StatusBadRequest, "invalid request payload")
		return
	}
	if user.Username == "" {
		utils.Error(ctx, http.StatusBadRequest, "no username present")
		return
	}
	if user.RegisteredAt == "" {
		user.RegisteredAt = time.Now().UTC().Format(time.RFC3339Nano)
	}

	if err := u.registry.Register(ctx.Request.Context(), user.Username, user.RegisteredAt); err != nil {
		utils.Sugar.Errorf("register user failed: %v", err)
		utils.Error(ctx, http.StatusBadGateway, "could not register user")
		return
	}
	ctx.JSON(http.StatusOK, user)
}
