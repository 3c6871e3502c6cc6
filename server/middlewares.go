package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/villagevault/villagevault/colors"
	"github.com/villagevault/villagevault/server/models"
)

type RequestContextKey string

const USER_CONTEXT_KEY = RequestContextKey("user")

type ResponseWriterWithStatus struct {
	http.ResponseWriter
	Status int
}

func (r *ResponseWriterWithStatus) WriteHeader(status int) {
	r.Status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack lets the socket endpoint upgrade through the logging middleware.
func (r *ResponseWriterWithStatus) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}

	r.Status = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		responseWriter := &ResponseWriterWithStatus{
			ResponseWriter: w,
			Status:         200,
		}

		defer func() {
			responseStatus := colors.Green(responseWriter.Status)
			if responseWriter.Status >= 400 {
				responseStatus = colors.Red(responseWriter.Status)
			}

			logg.Info(
				r.Method, " ",
				r.RequestURI, " ",
				responseStatus, " ",
				colors.Yellow(fmt.Sprintf("[%v]", time.Since(start))))
		}()

		next.ServeHTTP(responseWriter, r)
	})
}

func jsonContentMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// protectedRouteMiddleware resolves the bearer token to a verified user & adds
// it to the request context.
func (s *Server) protectedRouteMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))

		user, err := s.auth.Authenticate(r.Context(), token)
		if err != nil {
			writeError(w, err, "Internal server error")
			return
		}

		ctx := context.WithValue(r.Context(), USER_CONTEXT_KEY, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// sarpanchRouteMiddleware must run after protectedRouteMiddleware.
func sarpanchRouteMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := currentUser(r)
		if user == nil {
			writeResponse(w, ResponsePayload{Message: "Access denied. Please authenticate first."}, http.StatusUnauthorized)
			return
		}

		if !user.IsSarpanch() {
			writeResponse(w, ResponsePayload{Message: "Access denied. Insufficient permissions."}, http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func currentUser(r *http.Request) *models.User {
	user, _ := r.Context().Value(USER_CONTEXT_KEY).(*models.User)
	return user
}
