package api

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"trustbridge/backend/internal/store"
)

// DefaultSessionTTL matches the original shell's 15 minute session lifetime.
const DefaultSessionTTL = 15 * time.Minute

const identityKey = "identity"

// Identity is the authenticated caller consumed by the scoring endpoints.
type Identity struct {
	ID          uint
	DisplayName string
}

type session struct {
	userID    uint
	expiresAt time.Time
}

// SessionStore holds bearer tokens in memory with a sliding TTL.
type SessionStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	sessions map[string]session
	now      func() time.Time
}

// NewSessionStore constructs a session store. Non-positive TTLs fall back to
// the default lifetime.
func NewSessionStore(ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionStore{
		ttl:      ttl,
		sessions: make(map[string]session),
		now:      time.Now,
	}
}

// Create issues a fresh token for the user.
func (s *SessionStore) Create(userID uint) string {
	token := uuid.NewString()
	s.mu.Lock()
	s.sessions[token] = session{userID: userID, expiresAt: s.now().Add(s.ttl)}
	s.mu.Unlock()
	return token
}

// Resolve maps a token to its user id, refreshing the sliding expiry.
// Expired tokens are dropped.
func (s *SessionStore) Resolve(token string) (uint, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[token]
	if !ok {
		return 0, false
	}
	now := s.now()
	if now.After(sess.expiresAt) {
		delete(s.sessions, token)
		return 0, false
	}
	sess.expiresAt = now.Add(s.ttl)
	s.sessions[token] = sess
	return sess.userID, true
}

// Revoke drops a token.
func (s *SessionStore) Revoke(token string) {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
}

func (s *Server) handleRegister(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.renderError(c, http.StatusBadRequest, codeBadRequest, err)
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	req.FullName = strings.TrimSpace(req.FullName)
	if req.Username == "" || req.Email == "" || req.Password == "" {
		s.renderError(c, http.StatusBadRequest, codeBadRequest, errors.New("username, email and password are required"))
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, codeInternal, err)
		return
	}

	user := &store.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hash),
		FullName:     req.FullName,
	}
	if err := s.db.CreateUser(user); err != nil {
		s.renderError(c, http.StatusConflict, codeConflict, errors.New("username or email already exists"))
		return
	}

	logrus.WithField("username", user.Username).Info("user registered")
	c.JSON(http.StatusCreated, gin.H{"id": user.ID, "username": user.Username, "full_name": user.FullName})
}

func (s *Server) handleLogin(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.renderError(c, http.StatusBadRequest, codeBadRequest, err)
		return
	}

	user, err := s.db.UserByUsername(req.Username)
	if err == nil {
		err = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password))
	}
	if err != nil {
		s.renderError(c, http.StatusUnauthorized, codeUnauthorized, errors.New("invalid credentials"))
		return
	}

	token := s.sessions.Create(user.ID)
	c.JSON(http.StatusOK, AuthResponse{Token: token, FullName: user.FullName})
}

func (s *Server) handleLogout(c *gin.Context) {
	if token := bearerToken(c); token != "" {
		s.sessions.Revoke(token)
	}
	c.JSON(http.StatusOK, gin.H{"status": "logged out"})
}

// requireAuth resolves the bearer token into the Identity consumed by the
// scoring endpoints.
func (s *Server) requireAuth(c *gin.Context) {
	token := bearerToken(c)
	if token == "" {
		s.abortError(c, http.StatusUnauthorized, codeUnauthorized, errors.New("authentication required"))
		return
	}
	userID, ok := s.sessions.Resolve(token)
	if !ok {
		s.abortError(c, http.StatusUnauthorized, codeUnauthorized, errors.New("session expired or unknown"))
		return
	}
	user, err := s.db.UserByID(userID)
	if err != nil {
		s.abortError(c, http.StatusUnauthorized, codeUnauthorized, errors.New("account no longer exists"))
		return
	}
	c.Set(identityKey, Identity{ID: user.ID, DisplayName: user.FullName})
	c.Next()
}

func currentIdentity(c *gin.Context) Identity {
	value, _ := c.Get(identityKey)
	identity, _ := value.(Identity)
	return identity
}

// bearerToken accepts the Authorization header or, for websocket clients
// that cannot set headers, a token query parameter.
func bearerToken(c *gin.Context) string {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return strings.TrimSpace(c.Query("token"))
}
