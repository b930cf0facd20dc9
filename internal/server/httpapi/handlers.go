package httpapi

import (
	"net/http"

	"github.com/dmitrijs2005/authcore/internal/common"
	"github.com/gin-gonic/gin"
)

type credentialsRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type registeredUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

func (s *HTTPServer) ping(c *gin.Context) {
	respondMessage(c, http.StatusOK, "pong")
}

func (s *HTTPServer) register(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondMessage(c, http.StatusBadRequest, msgBadRequest)
		return
	}

	u, err := s.auth.Register(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, err, msgUnauthorized)
		return
	}

	respondData(c, http.StatusCreated, registeredUser{ID: u.ID, Email: u.Email})
}

func (s *HTTPServer) login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondMessage(c, http.StatusBadRequest, msgBadRequest)
		return
	}

	res, err := s.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, err, common.InvalidCredentialsMessage)
		return
	}

	http.SetCookie(c.Writer, res.Cookie.HTTP())
	respondData(c, http.StatusOK, res.Body)
}

func (s *HTTPServer) refresh(c *gin.Context) {
	token, err := c.Cookie(s.auth.CookieName())
	if err != nil || token == "" {
		respondMessage(c, http.StatusUnauthorized, msgUnauthorized)
		return
	}

	res, err := s.auth.Refresh(c.Request.Context(), token)
	if err != nil {
		respondError(c, err, msgUnauthorized)
		return
	}

	http.SetCookie(c.Writer, res.Cookie.HTTP())
	respondData(c, http.StatusOK, res.Body)
}

// logout always answers 200 with a clearing cookie, whether or not a valid
// refresh token came with the request.
func (s *HTTPServer) logout(c *gin.Context) {
	token, _ := c.Cookie(s.auth.CookieName())
	cookie := s.auth.Logout(c.Request.Context(), token)
	http.SetCookie(c.Writer, cookie.HTTP())
	respondMessage(c, http.StatusOK, msgLoggedOut)
}

func (s *HTTPServer) logoutAll(c *gin.Context) {
	subject := c.GetString(subjectKey)

	if err := s.auth.LogoutAll(c.Request.Context(), subject); err != nil {
		respondError(c, err, msgUnauthorized)
		return
	}

	cookie := s.auth.Logout(c.Request.Context(), "")
	http.SetCookie(c.Writer, cookie.HTTP())
	respondMessage(c, http.StatusOK, msgLoggedOutAll)
}
