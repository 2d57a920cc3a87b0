package password

import (
	"context"
	"errors"

	"github.com/MarkoPoloResearchLab/cmsconsole/internal/model"
)

const (
	MessageSendOTPFailed  = "Email not found or failed to send OTP."
	MessageOTPInvalid     = "Invalid OTP."
	MessageResetFailed    = "Failed to reset password."
	MessageOTPSent        = "OTP sent to your email."
	MessageOTPValidated   = "OTP validated. Please reset your password."
	MessageResetSucceeded = "Password reset successfully. Redirecting to login in 10 seconds."
	RedirectDelaySeconds  = 10

	errMissingResetService    = "password: missing reset service"
	errUnexpectedWizardStep   = "password: unexpected wizard step"
	activityActionSendOTP     = "password_send_otp"
	activityActionValidateOTP = "password_validate_otp"
	activityActionReset       = "password_reset"
)

var (
	ErrMissingResetService = errors.New(errMissingResetService)
	ErrUnexpectedStep      = errors.New(errUnexpectedWizardStep)
)

// Step is the position in the reset wizard.
type Step int

const (
	StepEmail Step = iota + 1
	StepOTP
	StepNewPassword
)

// ResetService sends the reset requests to the backend.
type ResetService interface {
	SendOTP(ctx context.Context, email string) error
	ValidateOTP(ctx context.Context, email string, otp string) error
	ResetPassword(ctx context.Context, email string, otp string, newPassword string) error
}

// ActivityRecorder receives the outcome of each wizard request.
type ActivityRecorder interface {
	Record(ctx context.Context, input model.ActivityInput)
}

// WizardState is the serializable state of one reset wizard. It is kept in the browser session.
type WizardState struct {
	Step     Step   `json:"step"`
	Email    string `json:"email"`
	OTP      string `json:"otp"`
	Message  string `json:"message"`
	Error    string `json:"error"`
	Redirect bool   `json:"redirect"`
}

// NewWizardState returns the first step.
func NewWizardState() WizardState {
	return WizardState{Step: StepEmail}
}

// Wizard advances a WizardState through email, OTP and new password.
type Wizard struct {
	service  ResetService
	recorder ActivityRecorder
}

// NewWizard returns a Wizard backed by service. recorder may be nil.
func NewWizard(service ResetService, recorder ActivityRecorder) (*Wizard, error) {
	if service == nil {
		return nil, ErrMissingResetService
	}
	return &Wizard{service: service, recorder: recorder}, nil
}

// SendOTP validates email and asks the backend to send a one-time password.
func (wizard *Wizard) SendOTP(ctx context.Context, state WizardState, email string) (WizardState, error) {
	if state.Step != StepEmail {
		return state, ErrUnexpectedStep
	}
	state.Email = email
	state.Redirect = false
	if validationErr := ValidateEmail(email); validationErr != nil {
		state.Error = validationErr.Error()
		wizard.record(ctx, activityActionSendOTP, email, validationErr)
		return state, validationErr
	}
	sendErr := wizard.service.SendOTP(ctx, email)
	wizard.record(ctx, activityActionSendOTP, email, sendErr)
	if sendErr != nil {
		state.Error = MessageSendOTPFailed
		return state, sendErr
	}
	state.Step = StepOTP
	state.Message = MessageOTPSent
	state.Error = ""
	return state, nil
}

// ValidateOTP checks the entered code with the backend.
func (wizard *Wizard) ValidateOTP(ctx context.Context, state WizardState, otp string) (WizardState, error) {
	if state.Step != StepOTP {
		return state, ErrUnexpectedStep
	}
	state.OTP = otp
	if validationErr := ValidateOTP(otp); validationErr != nil {
		state.Error = validationErr.Error()
		wizard.record(ctx, activityActionValidateOTP, state.Email, validationErr)
		return state, validationErr
	}
	validateErr := wizard.service.ValidateOTP(ctx, state.Email, otp)
	wizard.record(ctx, activityActionValidateOTP, state.Email, validateErr)
	if validateErr != nil {
		state.Error = MessageOTPInvalid
		return state, validateErr
	}
	state.Step = StepNewPassword
	state.Message = MessageOTPValidated
	state.Error = ""
	return state, nil
}

// Reset validates the new password locally, then submits it. Success returns to the first step.
func (wizard *Wizard) Reset(ctx context.Context, state WizardState, newPassword string, confirmation string) (WizardState, error) {
	if state.Step != StepNewPassword {
		return state, ErrUnexpectedStep
	}
	if validationErr := ValidateReset(newPassword, confirmation); validationErr != nil {
		state.Error = validationErr.Error()
		wizard.record(ctx, activityActionReset, state.Email, validationErr)
		return state, validationErr
	}
	resetErr := wizard.service.ResetPassword(ctx, state.Email, state.OTP, newPassword)
	wizard.record(ctx, activityActionReset, state.Email, resetErr)
	if resetErr != nil {
		state.Error = MessageResetFailed
		return state, resetErr
	}
	return WizardState{Step: StepEmail, Message: MessageResetSucceeded, Redirect: true}, nil
}

func (wizard *Wizard) record(ctx context.Context, action string, email string, operationErr error) {
	if wizard.recorder == nil {
		return
	}
	input := model.ActivityInput{Action: action, Target: email, Actor: email, Outcome: model.ActivityOutcomeSucceeded}
	switch {
	case IsValidationError(operationErr):
		input.Outcome = model.ActivityOutcomeRefused
		input.Detail = operationErr.Error()
	case operationErr != nil:
		input.Outcome = model.ActivityOutcomeFailed
		input.Detail = operationErr.Error()
	}
	wizard.recorder.Record(ctx, input)
}
