// Copyright (c) 2026 Ecodam. All rights reserved.

package users

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ecodam/ecodam-api/internal/platform/middleware"
	requestutil "github.com/ecodam/ecodam-api/internal/platform/request"
	"github.com/ecodam/ecodam-api/internal/platform/respond"
	"github.com/ecodam/ecodam-api/internal/platform/validate"
	"github.com/ecodam/ecodam-api/pkg/pagination"
)

// # Definitions & Constructors

// Handler implements identity and profile HTTP endpoints.
type Handler struct {
	userService *Service
}

// NewHandler constructs a new [Handler] with its service dependency.
func NewHandler(service *Service) *Handler {
	return &Handler{userService: service}
}

// AuthRoutes returns the authentication router.
//
// # Endpoints
//   - POST /register        : Creates a new account.
//   - POST /login           : Authenticates and returns a JWT.
//   - POST /verify-email    : Completes email verification.
//   - POST /forgot-password : Starts password recovery (pre-auth).
//   - POST /reset-password  : Completes password recovery.
func (handler *Handler) AuthRoutes() chi.Router {
	router := chi.NewRouter()

	router.Post("/register", handler.register)
	router.Post("/login", handler.login)
	router.Post("/verify-email", handler.verifyEmail)
	router.Post("/forgot-password", handler.forgotPassword)
	router.Post("/reset-password", handler.resetPassword)

	return router
}

// UserRoutes returns the profile router, mounted under /users.
//
// Authorization is NOT decided here: handlers pass the acting principal to
// the service and the document rules allow or deny. RequireAuth only spares
// anonymous requests a pointless round-trip on endpoints no rule permits.
func (handler *Handler) UserRoutes() chi.Router {
	router := chi.NewRouter()

	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Get("/{uid}", handler.getProfile)
		r.Patch("/{uid}", handler.updateProfile)
		r.Delete("/{uid}", handler.deleteProfile)
		r.Get("/{uid}/sessions", handler.listSessions)
		r.Get("/{uid}/logs", handler.listActivity)
	})

	return router
}

// # Request Payloads

type registerRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Apartment string `json:"apartment_complex"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type verifyEmailRequest struct {
	Token string `json:"token"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type updateProfileRequest struct {
	Username  *string `json:"username"`
	Apartment *string `json:"apartment_complex"`
	Role      *string `json:"role"`
}

/*
register handles the creation of a new user account.

POST /api/v1/auth/register

Response:
  - 201: User: Created profile
  - 400: Bad input or validation failure
  - 409: Username or Email already exists
*/
func (handler *Handler) register(writer http.ResponseWriter, request *http.Request) {
	var input registerRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldUsername, input.Username).
		MinLen(FieldUsername, input.Username, 3).
		MaxLen(FieldUsername, input.Username, 32).
		Required(FieldEmail, input.Email).
		Email(FieldEmail, input.Email).
		Required(FieldPassword, input.Password).
		MinLen(FieldPassword, input.Password, 8)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	user, err := handler.userService.Register(request.Context(), RegisterInput{
		Username:  input.Username,
		Email:     input.Email,
		Password:  input.Password,
		Apartment: input.Apartment,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, user)
}

/*
login handles credential verification and token issuance.

POST /api/v1/auth/login

Response:
  - 200: LoginSession: Access token and profile
  - 401: Invalid credentials
*/
func (handler *Handler) login(writer http.ResponseWriter, request *http.Request) {
	var input loginRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldEmail, input.Email).
		Required(FieldPassword, input.Password)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	session, err := handler.userService.Login(request.Context(), LoginInput{
		Email:     input.Email,
		Password:  input.Password,
		UserAgent: request.UserAgent(),
		IPAddress: middleware.RealIP(request),
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, session)
}

// verifyEmail completes email verification with a transient token.
//
// POST /api/v1/auth/verify-email
func (handler *Handler) verifyEmail(writer http.ResponseWriter, request *http.Request) {
	var input verifyEmailRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}
	if input.Token == "" {
		respond.Error(writer, request, validate.RequiredError(FieldToken, "This field is required"))
		return
	}

	if err := handler.userService.VerifyEmail(request.Context(), input.Token); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]string{FieldStatus: "verified"})
}

// forgotPassword starts password recovery. Always returns 200 so the
// response does not reveal whether the email is registered.
//
// POST /api/v1/auth/forgot-password
func (handler *Handler) forgotPassword(writer http.ResponseWriter, request *http.Request) {
	var input forgotPasswordRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldEmail, input.Email).Email(FieldEmail, input.Email)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.userService.ForgotPassword(request.Context(), input.Email); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]string{FieldStatus: "sent"})
}

// resetPassword completes password recovery with a transient token.
//
// POST /api/v1/auth/reset-password
func (handler *Handler) resetPassword(writer http.ResponseWriter, request *http.Request) {
	var input resetPasswordRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldToken, input.Token).
		Required(FieldPassword, input.Password).
		MinLen(FieldPassword, input.Password, 8)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.userService.ResetPassword(request.Context(), input.Token, input.Password); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]string{FieldStatus: "reset"})
}

// # Profile Endpoints

// getProfile returns a profile as seen by the acting principal.
//
// GET /api/v1/users/{uid}
func (handler *Handler) getProfile(writer http.ResponseWriter, request *http.Request) {
	uid := requestutil.Param(request, "uid")

	user, err := handler.userService.Get(request.Context(), requestutil.Principal(request), uid)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, user)
}

// updateProfile merges profile changes under the acting principal. Role
// changes by non-admins are denied by the document rules.
//
// PATCH /api/v1/users/{uid}
func (handler *Handler) updateProfile(writer http.ResponseWriter, request *http.Request) {
	uid := requestutil.Param(request, "uid")

	var input updateProfileRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	if input.Username != nil {
		validator.MinLen(FieldUsername, *input.Username, 3).
			MaxLen(FieldUsername, *input.Username, 32)
	}
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	user, err := handler.userService.UpdateProfile(request.Context(), requestutil.Principal(request), uid, UpdateProfileInput{
		Username:  input.Username,
		Apartment: input.Apartment,
		Role:      input.Role,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, user)
}

// deleteProfile removes an account; the document rules restrict this to
// admins.
//
// DELETE /api/v1/users/{uid}
func (handler *Handler) deleteProfile(writer http.ResponseWriter, request *http.Request) {
	uid := requestutil.Param(request, "uid")

	if err := handler.userService.Delete(request.Context(), requestutil.Principal(request), uid); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

// listSessions returns the caller-visible sessions of a user.
//
// GET /api/v1/users/{uid}/sessions
func (handler *Handler) listSessions(writer http.ResponseWriter, request *http.Request) {
	uid := requestutil.Param(request, "uid")
	page := pagination.FromRequest(request)

	sessions, meta, err := handler.userService.ListSessions(request.Context(), requestutil.Principal(request), uid, page)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Paginated(writer, sessions, meta)
}

// listActivity returns the audit log of a user (admin-visible only).
//
// GET /api/v1/users/{uid}/logs
func (handler *Handler) listActivity(writer http.ResponseWriter, request *http.Request) {
	uid := requestutil.Param(request, "uid")
	page := pagination.FromRequest(request)

	entries, meta, err := handler.userService.ListActivity(request.Context(), requestutil.Principal(request), uid, page)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Paginated(writer, entries, meta)
}
