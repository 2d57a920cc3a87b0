package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/cmsconsole/internal/password"
)

const (
	SessionName = "cmsconsole_session"

	sessionKeyUsername    = "username"
	sessionKeyResetWizard = "reset_wizard"
	contextKeyCurrentUser = "httpapi_current_user"
	jsonKeyError          = "error"
	authErrorUnauthorized = "unauthorized"
	logEventLoadSession   = "load_session"
	logEventSaveSession   = "save_session"
	minimumSecretLength   = 32
	defaultSessionMaxAge  = 12 * time.Hour
)

var (
	// ErrMissingSessionSecret indicates the cookie store was configured without a signing key.
	ErrMissingSessionSecret = errors.New("httpapi: missing session secret")
	// ErrShortSessionSecret indicates the signing key is too short to protect session cookies.
	ErrShortSessionSecret = errors.New("httpapi: session secret must be at least 32 bytes")
)

// CurrentUser is the signed-in console operator.
type CurrentUser struct {
	Username string
}

// AuthConfig configures session handling.
type AuthConfig struct {
	Secret       string
	SecureCookie bool
	MaxAge       time.Duration
	Logger       *zap.Logger
}

// AuthManager guards console routes with a signed cookie session.
type AuthManager struct {
	logger       *zap.Logger
	sessionStore *sessions.CookieStore
}

// NewAuthManager validates configuration and constructs an AuthManager.
func NewAuthManager(configuration AuthConfig) (*AuthManager, error) {
	secret := strings.TrimSpace(configuration.Secret)
	if secret == "" {
		return nil, ErrMissingSessionSecret
	}
	if len(secret) < minimumSecretLength {
		return nil, ErrShortSessionSecret
	}
	maxAge := configuration.MaxAge
	if maxAge <= 0 {
		maxAge = defaultSessionMaxAge
	}
	logger := configuration.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	store := sessions.NewCookieStore([]byte(secret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   configuration.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	}
	return &AuthManager{logger: logger, sessionStore: store}, nil
}

// RequireAuthenticatedJSON rejects anonymous API requests.
func (authManager *AuthManager) RequireAuthenticatedJSON() gin.HandlerFunc {
	return func(context *gin.Context) {
		if _, ok := authManager.ensureUser(context); !ok {
			context.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{jsonKeyError: authErrorUnauthorized})
			return
		}
		context.Next()
	}
}

// RequireAuthenticatedWeb redirects anonymous page requests to the login page.
func (authManager *AuthManager) RequireAuthenticatedWeb() gin.HandlerFunc {
	return func(context *gin.Context) {
		if _, ok := authManager.ensureUser(context); !ok {
			context.Redirect(http.StatusFound, RouteLogin)
			context.Abort()
			return
		}
		context.Next()
	}
}

// CurrentUserFromContext returns the user loaded by the auth middleware.
func CurrentUserFromContext(context *gin.Context) (*CurrentUser, bool) {
	value, exists := context.Get(contextKeyCurrentUser)
	if !exists {
		return nil, false
	}
	currentUser, ok := value.(*CurrentUser)
	return currentUser, ok
}

// SignIn stores username in a fresh session.
func (authManager *AuthManager) SignIn(context *gin.Context, username string) error {
	sessionInstance, _ := authManager.sessionStore.Get(context.Request, SessionName)
	sessionInstance.Values = map[interface{}]interface{}{sessionKeyUsername: username}
	if saveErr := sessionInstance.Save(context.Request, context.Writer); saveErr != nil {
		authManager.logger.Error(logEventSaveSession, zap.Error(saveErr))
		return saveErr
	}
	context.Set(contextKeyCurrentUser, &CurrentUser{Username: username})
	return nil
}

// SignOut expires the session cookie.
func (authManager *AuthManager) SignOut(context *gin.Context) error {
	sessionInstance, _ := authManager.sessionStore.Get(context.Request, SessionName)
	sessionInstance.Values = map[interface{}]interface{}{}
	sessionInstance.Options.MaxAge = -1
	return sessionInstance.Save(context.Request, context.Writer)
}

// ResetWizard loads the password reset progress from the session.
func (authManager *AuthManager) ResetWizard(context *gin.Context) password.WizardState {
	sessionInstance, sessionErr := authManager.sessionStore.Get(context.Request, SessionName)
	if sessionErr != nil {
		authManager.logger.Debug(logEventLoadSession, zap.Error(sessionErr))
		return password.NewWizardState()
	}
	encoded := extractString(sessionInstance.Values[sessionKeyResetWizard])
	if encoded == "" {
		return password.NewWizardState()
	}
	var state password.WizardState
	if decodeErr := json.Unmarshal([]byte(encoded), &state); decodeErr != nil || state.Step == 0 {
		return password.NewWizardState()
	}
	return state
}

// SaveResetWizard stores the password reset progress in the session.
func (authManager *AuthManager) SaveResetWizard(context *gin.Context, state password.WizardState) error {
	encoded, encodeErr := json.Marshal(state)
	if encodeErr != nil {
		return encodeErr
	}
	sessionInstance, _ := authManager.sessionStore.Get(context.Request, SessionName)
	sessionInstance.Values[sessionKeyResetWizard] = string(encoded)
	if saveErr := sessionInstance.Save(context.Request, context.Writer); saveErr != nil {
		authManager.logger.Error(logEventSaveSession, zap.Error(saveErr))
		return saveErr
	}
	return nil
}

func (authManager *AuthManager) ensureUser(context *gin.Context) (*CurrentUser, bool) {
	if currentUser, exists := CurrentUserFromContext(context); exists {
		return currentUser, true
	}

	sessionInstance, sessionErr := authManager.sessionStore.Get(context.Request, SessionName)
	if sessionErr != nil {
		authManager.logger.Warn(logEventLoadSession, zap.Error(sessionErr))
		return nil, false
	}

	username := extractString(sessionInstance.Values[sessionKeyUsername])
	if username == "" {
		return nil, false
	}

	currentUser := &CurrentUser{Username: username}
	context.Set(contextKeyCurrentUser, currentUser)
	return currentUser, true
}

func extractString(value interface{}) string {
	text, ok := value.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(text)
}
