package handler

import (
	"net/http"

	"procurement/internal/middleware"
	"procurement/internal/model"
	"procurement/internal/service"
	"procurement/pkg/response"

	"github.com/gin-gonic/gin"
)

type UserHandler struct {
	users        service.UserService
	auth         gin.HandlerFunc
	secureCookie bool
}

// NewUserHandler takes the authentication middleware because login itself is public.
func NewUserHandler(users service.UserService, auth gin.HandlerFunc, secureCookie bool) *UserHandler {
	return &UserHandler{users: users, auth: auth, secureCookie: secureCookie}
}

func (h *UserHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.POST("/auth/login", h.Login)
	router.GET("/auth/me", h.auth, h.GetMe)

	users := router.Group("/users", h.auth, middleware.RequireRole(model.RoleAdmin))
	{
		users.GET("", h.ListByRole)
		users.POST("", h.CreateUser)
	}
}

// Login handles POST /api/auth/login
// @Summary      Login user
// @Description  Authenticates by username and password, returning a JWT token
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.LoginDTO  true  "Login Credentials"
// @Success      200      {object}  response.Response{data=service.TokenResponse}
// @Failure      401      {object}  response.Response
// @Router       /api/auth/login [post]
func (h *UserHandler) Login(c *gin.Context) {
	var req service.LoginDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload")
		return
	}

	token, err := h.users.Login(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}

	middleware.SetTokenCookie(c, token.Token, int(service.DefaultTokenTTL.Seconds()), h.secureCookie)
	c.JSON(http.StatusOK, response.Success(http.StatusOK, token))
}

// GetMe handles GET /api/auth/me
// @Summary      Get current user
// @Tags         auth
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response{data=service.UserResponse}
// @Failure      401  {object}  response.Response
// @Router       /api/auth/me [get]
func (h *UserHandler) GetMe(c *gin.Context) {
	claims, _ := middleware.CurrentUser(c)
	user, err := h.users.GetByID(c.Request.Context(), claims.UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, user))
}

// ListByRole handles GET /api/users?role=
// @Summary      Users holding a role
// @Tags         users
// @Security     BearerAuth
// @Produce      json
// @Param        role  query     string  true  "Role"
// @Success      200   {object}  response.Response{data=[]service.UserResponse}
// @Router       /api/users [get]
func (h *UserHandler) ListByRole(c *gin.Context) {
	users, err := h.users.ListByRole(c.Request.Context(), model.Role(c.Query("role")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, users))
}

// CreateUser handles POST /api/users
// @Summary      Create a user
// @Tags         users
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateUserDTO  true  "User"
// @Success      201      {object}  response.Response{data=service.UserResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/users [post]
func (h *UserHandler) CreateUser(c *gin.Context) {
	var req service.CreateUserDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}
	user, err := h.users.CreateUser(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, user))
}
