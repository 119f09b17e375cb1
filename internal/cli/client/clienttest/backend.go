// Package clienttest provides an in-process fake of the College OS backend
// for tests of the CLI client, session manager and two-factor flow.
package clienttest

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"

	"github.com/collegeos/portal/internal/auth"
	"github.com/collegeos/portal/internal/cli/client"
)

// Secret is the JWT secret the fake signs session tokens with
const Secret = "clienttest-secret"

// User is an account known to the fake backend
type User struct {
	ID            string
	Name          string
	Email         string
	Role          auth.Role
	PasswordHash  []byte
	Verified      bool
	TOTPSecret    string
	PendingSecret string
	VerifyToken   string
	ResetToken    string
}

// Backend is a fake API server backed by in-memory accounts. Passwords are
// bcrypt hashed and two-factor codes are real TOTP codes.
type Backend struct {
	Server *httptest.Server

	mu       sync.Mutex
	users    map[string]*User
	alerts   []client.Alert
	rooms    []client.ChatRoom
	messages map[string][]client.ChatMessage
	notices  []client.Record
	calls    map[string]int

	failLogout bool
	failAlerts int
	cookieOnly bool
}

// New starts a fake backend that is closed when the test ends
func New(t testing.TB) *Backend {
	t.Helper()
	gin.SetMode(gin.TestMode)

	b := &Backend{
		users:    make(map[string]*User),
		messages: make(map[string][]client.ChatMessage),
		calls:    make(map[string]int),
	}

	b.Server = httptest.NewServer(b.router())
	t.Cleanup(b.Server.Close)
	return b
}

// URL is the API base URL of the fake
func (b *Backend) URL() string {
	return b.Server.URL + "/api"
}

// AddUser registers a verified account
func (b *Backend) AddUser(email, password, name string, role auth.Role) *User {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	u := &User{
		ID:           fmt.Sprintf("user-%d", len(b.users)+1),
		Name:         name,
		Email:        email,
		Role:         role,
		PasswordHash: hash,
		Verified:     true,
	}
	b.users[email] = u
	return u
}

// SetVerified marks an account's email as confirmed or not
func (b *Backend) SetVerified(email string, verified bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.users[email].Verified = verified
}

// SetRole changes an account's role server-side
func (b *Backend) SetRole(email string, role auth.Role) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.users[email].Role = role
}

// EnableTwoFactor turns on 2FA for an account and returns its secret
func (b *Backend) EnableTwoFactor(email string) string {
	key, err := totp.Generate(totp.GenerateOpts{Issuer: "College OS", AccountName: email})
	if err != nil {
		panic(err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.users[email].TOTPSecret = key.Secret()
	return key.Secret()
}

// User returns a copy of an account
func (b *Backend) User(email string) User {
	b.mu.Lock()
	defer b.mu.Unlock()
	return *b.users[email]
}

// Code returns the current TOTP code for secret
func Code(secret string) string {
	code, err := totp.GenerateCode(secret, time.Now())
	if err != nil {
		panic(err)
	}
	return code
}

// FailLogout makes /auth/logout answer 500
func (b *Backend) FailLogout(fail bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failLogout = fail
}

// CookieOnlyLogin makes /auth/login answer {email, role, name} and carry the
// token only in the Set-Cookie header
func (b *Backend) CookieOnlyLogin(on bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cookieOnly = on
}

// FailAlerts makes the next n alert listings fail
func (b *Backend) FailAlerts(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failAlerts = n
}

// AddAlert appends an alert to the feed
func (b *Backend) AddAlert(a client.Alert) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.alerts = append(b.alerts, a)
}

// AddNotice adds an item to the generic /notices collection
func (b *Backend) AddNotice(n client.Record) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notices = append(b.notices, n)
}

// AddRoom creates a chat room
func (b *Backend) AddRoom(room client.ChatRoom) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rooms = append(b.rooms, room)
}

// Messages returns the messages posted to a room
func (b *Backend) Messages(roomID string) []client.ChatMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]client.ChatMessage(nil), b.messages[roomID]...)
}

// Calls returns how many times "METHOD /path" was requested
func (b *Backend) Calls(route string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[route]
}

func (b *Backend) router() *gin.Engine {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		b.mu.Lock()
		b.calls[c.Request.Method+" "+strings.TrimPrefix(c.FullPath(), "/api")]++
		b.mu.Unlock()
		c.Next()
	})

	api := r.Group("/api")
	api.POST("/auth/login", b.login)
	api.POST("/auth/register", b.register)
	api.POST("/auth/logout", b.logout)
	api.POST("/auth/forgot-password", b.forgotPassword)
	api.POST("/auth/reset-password", b.resetPassword)
	api.GET("/auth/verify-email", b.verifyEmail)
	api.POST("/auth/resend-verification", b.resendVerification)

	authed := api.Group("")
	authed.Use(b.requireUser)
	{
		authed.GET("/auth/me", b.me)
		authed.GET("/auth/2fa/status", b.twoFactorStatus)
		authed.POST("/auth/2fa/setup", b.twoFactorSetup)
		authed.POST("/auth/2fa/verify", b.twoFactorVerify)
		authed.POST("/auth/2fa/disable", b.twoFactorDisable)
		authed.GET("/alerts", b.listAlerts)
		authed.GET("/notices", b.listNotices)
		authed.GET("/notices/:id", b.getNotice)
		authed.GET("/chat/rooms", b.listRooms)
		authed.GET("/chat/rooms/:id/messages", b.listMessages)
		authed.POST("/chat/rooms/:id/messages", b.postMessage)
	}
	return r
}

func (b *Backend) login(c *gin.Context) {
	var req client.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request"})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	u, ok := b.users[req.Email]
	if !ok || bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(req.Password)) != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid email or password"})
		return
	}
	if !u.Verified {
		c.JSON(http.StatusOK, gin.H{"emailVerificationRequired": true, "email": u.Email})
		return
	}
	if u.TOTPSecret != "" {
		if req.Code == "" {
			c.JSON(http.StatusOK, gin.H{"twoFactorRequired": true, "email": u.Email})
			return
		}
		if !totp.Validate(req.Code, u.TOTPSecret) {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "Invalid code"})
			return
		}
	}

	token, err := auth.GenerateToken(Secret, u.ID, u.Email, u.Role, time.Hour)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to generate token"})
		return
	}
	c.SetCookie(auth.TokenCookieName, token, 3600, "/", "", false, true)
	if b.cookieOnly {
		c.JSON(http.StatusOK, gin.H{"email": u.Email, "role": u.Role, "name": u.Name})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":            token,
		"id":               u.ID,
		"email":            u.Email,
		"role":             u.Role,
		"name":             u.Name,
		"twoFactorEnabled": u.TOTPSecret != "",
	})
}

func (b *Backend) requireUser(c *gin.Context) {
	token, _ := c.Cookie(auth.TokenCookieName)
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		token = strings.TrimPrefix(h, "Bearer ")
	}

	data, err := auth.NewVerifier(Secret).Verify(token)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Not authenticated"})
		return
	}

	b.mu.Lock()
	var user *User
	for _, u := range b.users {
		if u.ID == data.UserID {
			user = u
		}
	}
	b.mu.Unlock()

	if user == nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Not authenticated"})
		return
	}
	c.Set("user", user)
	c.Next()
}

func currentUser(c *gin.Context) *User {
	return c.MustGet("user").(*User)
}

func (b *Backend) me(c *gin.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	u := currentUser(c)
	c.JSON(http.StatusOK, client.User{
		ID:               u.ID,
		Name:             u.Name,
		Email:            u.Email,
		Role:             string(u.Role),
		TwoFactorEnabled: u.TOTPSecret != "",
	})
}

func (b *Backend) logout(c *gin.Context) {
	b.mu.Lock()
	fail := b.failLogout
	b.mu.Unlock()

	if fail {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Logout failed"})
		return
	}
	c.SetCookie(auth.TokenCookieName, "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

func (b *Backend) register(c *gin.Context) {
	var req client.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request"})
		return
	}

	b.mu.Lock()
	_, exists := b.users[req.Email]
	b.mu.Unlock()
	if exists {
		c.JSON(http.StatusConflict, gin.H{"message": "Email already registered"})
		return
	}

	u := b.AddUser(req.Email, req.Password, req.Name, auth.RoleStudent)
	b.mu.Lock()
	u.Verified = false
	u.VerifyToken = "verify-" + u.ID
	b.mu.Unlock()

	c.JSON(http.StatusCreated, gin.H{"message": "Registration successful. Please verify your email."})
}

func (b *Backend) forgotPassword(c *gin.Context) {
	var req struct {
		Email string `json:"email"`
	}
	_ = c.ShouldBindJSON(&req)

	b.mu.Lock()
	if u, ok := b.users[req.Email]; ok {
		u.ResetToken = "reset-" + u.ID
	}
	b.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{"message": "If that email exists, a reset link has been sent"})
}

func (b *Backend) resetPassword(c *gin.Context) {
	var req client.ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request"})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, u := range b.users {
		if u.ResetToken != "" && u.ResetToken == req.Token {
			hash, _ := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.MinCost)
			u.PasswordHash = hash
			u.ResetToken = ""
			c.JSON(http.StatusOK, gin.H{"message": "Password reset successful"})
			return
		}
	}
	c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid or expired reset token"})
}

func (b *Backend) verifyEmail(c *gin.Context) {
	token := c.Query("token")

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, u := range b.users {
		if u.VerifyToken != "" && u.VerifyToken == token {
			u.Verified = true
			u.VerifyToken = ""
			c.JSON(http.StatusOK, gin.H{"message": "Email verified"})
			return
		}
	}
	c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid verification link"})
}

func (b *Backend) resendVerification(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Verification email sent"})
}

func (b *Backend) twoFactorStatus(c *gin.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c.JSON(http.StatusOK, client.TwoFactorStatus{Enabled: currentUser(c).TOTPSecret != ""})
}

func (b *Backend) twoFactorSetup(c *gin.Context) {
	u := currentUser(c)
	key, err := totp.Generate(totp.GenerateOpts{Issuer: "College OS", AccountName: u.Email})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to generate secret"})
		return
	}

	img, err := key.Image(200, 200)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to render QR code"})
		return
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to render QR code"})
		return
	}

	b.mu.Lock()
	u.PendingSecret = key.Secret()
	b.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{
		"secret": key.Secret(),
		"qrCode": "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()),
	})
}

func (b *Backend) twoFactorVerify(c *gin.Context) {
	var req struct {
		Code string `json:"code"`
	}
	_ = c.ShouldBindJSON(&req)

	b.mu.Lock()
	defer b.mu.Unlock()
	u := currentUser(c)
	if u.PendingSecret == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "No 2FA setup in progress"})
		return
	}
	if !totp.Validate(req.Code, u.PendingSecret) {
		c.JSON(http.StatusOK, gin.H{"success": false, "message": "Invalid code"})
		return
	}
	u.TOTPSecret = u.PendingSecret
	u.PendingSecret = ""
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Two-factor authentication enabled"})
}

func (b *Backend) twoFactorDisable(c *gin.Context) {
	var req struct {
		Code string `json:"code"`
	}
	_ = c.ShouldBindJSON(&req)

	b.mu.Lock()
	defer b.mu.Unlock()
	u := currentUser(c)
	if u.TOTPSecret == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Two-factor authentication is not enabled"})
		return
	}
	if !totp.Validate(req.Code, u.TOTPSecret) {
		c.JSON(http.StatusOK, gin.H{"success": false, "message": "Invalid code"})
		return
	}
	u.TOTPSecret = ""
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Two-factor authentication disabled"})
}

func (b *Backend) listAlerts(c *gin.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failAlerts > 0 {
		b.failAlerts--
		c.JSON(http.StatusServiceUnavailable, gin.H{"message": "Service unavailable"})
		return
	}
	c.JSON(http.StatusOK, append([]client.Alert{}, b.alerts...))
}

func (b *Backend) listNotices(c *gin.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := []client.Record{}
	for _, n := range b.notices {
		if cat := c.Query("category"); cat != "" && n["category"] != cat {
			continue
		}
		out = append(out, n)
	}
	c.JSON(http.StatusOK, out)
}

func (b *Backend) getNotice(c *gin.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, n := range b.notices {
		if n["id"] == c.Param("id") {
			c.JSON(http.StatusOK, n)
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"message": "Notice not found"})
}

func (b *Backend) listRooms(c *gin.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c.JSON(http.StatusOK, append([]client.ChatRoom{}, b.rooms...))
}

func (b *Backend) listMessages(c *gin.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c.JSON(http.StatusOK, append([]client.ChatMessage{}, b.messages[c.Param("id")]...))
}

func (b *Backend) postMessage(c *gin.Context) {
	var req struct {
		Content string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Content == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Message content is required"})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	u := currentUser(c)
	roomID := c.Param("id")
	for _, room := range b.rooms {
		if room.ID == roomID && room.Broadcast && !u.Role.IsAdmin() {
			c.JSON(http.StatusForbidden, gin.H{"message": "Only admins can post in broadcast rooms"})
			return
		}
	}

	msg := client.ChatMessage{
		ID:         fmt.Sprintf("msg-%d", len(b.messages[roomID])+1),
		RoomID:     roomID,
		SenderID:   u.ID,
		SenderName: u.Name,
		Content:    req.Content,
		CreatedAt:  time.Now().UTC(),
	}
	b.messages[roomID] = append(b.messages[roomID], msg)
	c.JSON(http.StatusCreated, msg)
}
