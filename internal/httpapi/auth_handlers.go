package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/cmsconsole/internal/dyntable"
	"github.com/MarkoPoloResearchLab/cmsconsole/internal/gateway"
	"github.com/MarkoPoloResearchLab/cmsconsole/internal/model"
	"github.com/MarkoPoloResearchLab/cmsconsole/internal/password"
)

const (
	loginPageTitle          = "Login"
	forgotPageTitle         = "Forgot Password"
	templateLogin           = "login"
	templateForgot          = "forgot"
	loginErrorInvalid       = "Invalid username or password"
	loginErrorUnavailable   = "Login failed. Please try again."
	loginNoticeSignedOut    = "You have been signed out."
	activityActionLogin     = "login"
	logEventLoginFailed     = "login_failed"
	logEventResetStepFailed = "password_reset_step_failed"
	formKeyUsername         = "username"
	formKeyPassword         = "password"
	formKeyEmail            = "email"
	formKeyOTP              = "otp"
	formKeyNewPassword      = "newPassword"
	formKeyConfirm          = "confirmPassword"
	queryKeySignedOut       = "signed_out"
)

// Authenticator verifies console credentials.
type Authenticator interface {
	Login(ctx context.Context, username string, password string) error
}

// AuthHandlersConfig configures AuthHandlers.
type AuthHandlersConfig struct {
	Pages         *Pages
	Auth          *AuthManager
	Authenticator Authenticator
	Wizard        *password.Wizard
	Recorder      dyntable.ActivityRecorder
	Logger        *zap.Logger
}

// AuthHandlers serves login, logout and the password reset wizard.
type AuthHandlers struct {
	pages         *Pages
	auth          *AuthManager
	authenticator Authenticator
	wizard        *password.Wizard
	recorder      dyntable.ActivityRecorder
	logger        *zap.Logger
}

type loginPageData struct {
	Username string
	Error    string
	Notice   string
}

type forgotPageData struct {
	State           password.WizardState
	Step            int
	Suggested       string
	RedirectSeconds int
}

// NewAuthHandlers constructs AuthHandlers.
func NewAuthHandlers(configuration AuthHandlersConfig) *AuthHandlers {
	logger := configuration.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandlers{
		pages:         configuration.Pages,
		auth:          configuration.Auth,
		authenticator: configuration.Authenticator,
		wizard:        configuration.Wizard,
		recorder:      configuration.Recorder,
		logger:        logger,
	}
}

// RenderLogin shows the login form. Signed-in users go straight to the dashboard.
func (handlers *AuthHandlers) RenderLogin(context *gin.Context) {
	if _, signedIn := handlers.auth.ensureUser(context); signedIn {
		context.Redirect(http.StatusFound, RouteDashboard)
		return
	}
	data := loginPageData{}
	if context.Query(queryKeySignedOut) != "" {
		data.Notice = loginNoticeSignedOut
	}
	handlers.pages.RenderStandalone(context, http.StatusOK, loginPageTitle, templateLogin, data)
}

// Login verifies the credentials with the backend and opens a session.
func (handlers *AuthHandlers) Login(context *gin.Context) {
	username := strings.TrimSpace(context.PostForm(formKeyUsername))
	secret := context.PostForm(formKeyPassword)
	loginErr := handlers.authenticator.Login(context.Request.Context(), username, secret)
	handlers.record(context.Request.Context(), username, loginErr)
	if loginErr != nil {
		handlers.logger.Info(logEventLoginFailed, zap.String("username", username), zap.Error(loginErr))
		message := loginErrorUnavailable
		status := http.StatusBadGateway
		if errors.Is(loginErr, gateway.ErrInvalidCredentials) {
			message = loginErrorInvalid
			status = http.StatusUnauthorized
		}
		handlers.pages.RenderStandalone(context, status, loginPageTitle, templateLogin, loginPageData{Username: username, Error: message})
		return
	}
	if signInErr := handlers.auth.SignIn(context, username); signInErr != nil {
		handlers.pages.RenderStandalone(context, http.StatusInternalServerError, loginPageTitle, templateLogin, loginPageData{Username: username, Error: loginErrorUnavailable})
		return
	}
	context.Redirect(http.StatusSeeOther, RouteDashboard)
}

// Logout clears the session.
func (handlers *AuthHandlers) Logout(context *gin.Context) {
	if signOutErr := handlers.auth.SignOut(context); signOutErr != nil {
		handlers.logger.Warn(logEventSaveSession, zap.Error(signOutErr))
	}
	context.Redirect(http.StatusSeeOther, RouteLogin+"?"+queryKeySignedOut+"=1")
}

// RenderForgot shows the current step of the reset wizard.
func (handlers *AuthHandlers) RenderForgot(context *gin.Context) {
	state := handlers.auth.ResetWizard(context)
	handlers.renderForgot(context, http.StatusOK, state, "")
	if state.Redirect || state.Message != "" || state.Error != "" {
		state.Message, state.Error, state.Redirect = "", "", false
		_ = handlers.auth.SaveResetWizard(context, state)
	}
}

// SendOTP runs the email step.
func (handlers *AuthHandlers) SendOTP(context *gin.Context) {
	state := handlers.auth.ResetWizard(context)
	if state.Step != password.StepEmail {
		state = password.NewWizardState()
	}
	next, stepErr := handlers.wizard.SendOTP(context.Request.Context(), state, strings.TrimSpace(context.PostForm(formKeyEmail)))
	handlers.finishStep(context, next, stepErr, "")
}

// ValidateOTP runs the code step.
func (handlers *AuthHandlers) ValidateOTP(context *gin.Context) {
	state := handlers.auth.ResetWizard(context)
	next, stepErr := handlers.wizard.ValidateOTP(context.Request.Context(), state, strings.TrimSpace(context.PostForm(formKeyOTP)))
	handlers.finishStep(context, next, stepErr, "")
}

// ResetPassword runs the new password step.
func (handlers *AuthHandlers) ResetPassword(context *gin.Context) {
	state := handlers.auth.ResetWizard(context)
	next, stepErr := handlers.wizard.Reset(context.Request.Context(), state, context.PostForm(formKeyNewPassword), context.PostForm(formKeyConfirm))
	handlers.finishStep(context, next, stepErr, "")
}

// GeneratePassword fills the new password step with a strong suggestion.
func (handlers *AuthHandlers) GeneratePassword(context *gin.Context) {
	state := handlers.auth.ResetWizard(context)
	suggested, generateErr := password.Generate()
	if generateErr != nil {
		handlers.logger.Error(logEventResetStepFailed, zap.Error(generateErr))
	}
	handlers.renderForgot(context, http.StatusOK, state, suggested)
}

func (handlers *AuthHandlers) finishStep(context *gin.Context, state password.WizardState, stepErr error, suggested string) {
	status := http.StatusOK
	switch {
	case errors.Is(stepErr, password.ErrUnexpectedStep):
		state = password.NewWizardState()
		status = http.StatusConflict
	case password.IsValidationError(stepErr):
		status = http.StatusUnprocessableEntity
	case stepErr != nil:
		handlers.logger.Info(logEventResetStepFailed, zap.Int("step", int(state.Step)), zap.Error(stepErr))
		status = http.StatusBadGateway
	}
	persisted := state
	persisted.Message, persisted.Error, persisted.Redirect = "", "", false
	if saveErr := handlers.auth.SaveResetWizard(context, persisted); saveErr != nil {
		handlers.logger.Warn(logEventSaveSession, zap.Error(saveErr))
	}
	handlers.renderForgot(context, status, state, suggested)
}

func (handlers *AuthHandlers) renderForgot(context *gin.Context, status int, state password.WizardState, suggested string) {
	handlers.pages.RenderStandalone(context, status, forgotPageTitle, templateForgot, forgotPageData{
		State:           state,
		Step:            int(state.Step),
		Suggested:       suggested,
		RedirectSeconds: password.RedirectDelaySeconds,
	})
}

func (handlers *AuthHandlers) record(ctx context.Context, username string, loginErr error) {
	if handlers.recorder == nil {
		return
	}
	input := model.ActivityInput{Action: activityActionLogin, Target: username, Actor: username, Outcome: model.ActivityOutcomeSucceeded}
	switch {
	case errors.Is(loginErr, gateway.ErrInvalidCredentials):
		input.Outcome = model.ActivityOutcomeRefused
		input.Detail = loginErr.Error()
	case loginErr != nil:
		input.Outcome = model.ActivityOutcomeFailed
		input.Detail = loginErr.Error()
	}
	handlers.recorder.Record(ctx, input)
}
