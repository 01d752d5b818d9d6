package auth

import (
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
)

// AuthControllerRoutes are the mount points for the four operations.
type AuthControllerRoutes struct {
	Register string
	Login    string
	Refresh  string
	Logout   string
}

// AuthController exposes Register, Login, Refresh, and Logout as JSON
// request/response endpoints with a uniform envelope.
type AuthController struct {
	Logger Logger
	Auther Authenticator
	Routes *AuthControllerRoutes
}

type AuthControllerOption func(*AuthController) *AuthController

// WithControllerLogger overrides the controller logger.
func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

// WithControllerRoutes overrides the default mount points.
func WithControllerRoutes(routes *AuthControllerRoutes) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if routes != nil {
			c.Routes = routes
		}
		return c
	}
}

func NewAuthController(auther Authenticator, opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Auther: auther,
		Logger: defLogger{},
		Routes: &AuthControllerRoutes{
			Register: "/auth/register",
			Login:    "/auth/login",
			Refresh:  "/auth/refresh",
			Logout:   "/auth/logout",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Auther == nil {
		panic("Missing Authenticator in auth controller...")
	}

	return c
}

// RegisterAuthRoutes mounts the controller on the app.
func RegisterAuthRoutes(app fiber.Router, controller *AuthController) {
	app.Post(controller.Routes.Register, controller.RegisterPost)
	app.Post(controller.Routes.Login, controller.LoginPost)
	app.Post(controller.Routes.Refresh, controller.RefreshPost)
	app.Post(controller.Routes.Logout, controller.LogoutPost)
}

// RegisterRequest payload
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// LoginRequest payload
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Email,
			validation.Required,
			is.Email,
		),
		validation.Field(
			&r.Password,
			validation.Required,
		),
	)
}

// RefreshRequest payload
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Validate will run validation rules
func (r RefreshRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.RefreshToken,
			validation.Required,
		),
	)
}

func (a *AuthController) RegisterPost(c *fiber.Ctx) error {
	payload := new(RegisterRequest)
	if err := c.BodyParser(payload); err != nil {
		return writeError(c, ValidationError([]string{"request body must be valid JSON"}))
	}

	result, err := a.Auther.Register(c.Context(), RegisterInput{
		Email:    payload.Email,
		Password: payload.Password,
		Name:     payload.Name,
		Device:   deviceFromRequest(c),
	})
	if err != nil {
		return writeError(c, err)
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"message":      "registration successful",
		"user":         result.User,
		"token":        result.Token,
		"refreshToken": result.RefreshToken,
		"expiresAt":    result.ExpiresAt,
	})
}

func (a *AuthController) LoginPost(c *fiber.Ctx) error {
	payload := new(LoginRequest)
	if err := c.BodyParser(payload); err != nil {
		return writeError(c, ValidationError([]string{"request body must be valid JSON"}))
	}

	if err := payload.Validate(); err != nil {
		return writeError(c, ValidationError(validationMessages(err)))
	}

	result, err := a.Auther.Login(c.Context(), LoginInput{
		Email:    payload.Email,
		Password: payload.Password,
		Device:   deviceFromRequest(c),
	})
	if err != nil {
		return writeError(c, err)
	}

	return c.Status(http.StatusOK).JSON(fiber.Map{
		"message":      "login successful",
		"user":         result.User,
		"token":        result.Token,
		"refreshToken": result.RefreshToken,
		"expiresAt":    result.ExpiresAt,
	})
}

func (a *AuthController) RefreshPost(c *fiber.Ctx) error {
	payload := new(RefreshRequest)
	if err := c.BodyParser(payload); err != nil {
		return writeError(c, ValidationError([]string{"request body must be valid JSON"}))
	}

	if err := payload.Validate(); err != nil {
		return writeError(c, ValidationError(validationMessages(err)))
	}

	result, err := a.Auther.Refresh(c.Context(), payload.RefreshToken)
	if err != nil {
		return writeError(c, err)
	}

	return c.Status(http.StatusOK).JSON(fiber.Map{
		"message":   "token refreshed",
		"user":      result.User,
		"token":     result.Token,
		"expiresAt": result.ExpiresAt,
	})
}

func (a *AuthController) LogoutPost(c *fiber.Ctx) error {
	// Logout succeeds with or without a token; it never reveals whether a
	// session existed.
	if err := a.Auther.Logout(c.Context(), BearerToken(c), deviceFromRequest(c)); err != nil {
		a.Logger.Error("logout error: %s", err)
	}

	return c.Status(http.StatusOK).JSON(fiber.Map{
		"message": "logged out",
	})
}

func deviceFromRequest(c *fiber.Ctx) DeviceInfo {
	return DeviceInfo{
		IP:        c.IP(),
		UserAgent: c.Get(fiber.HeaderUserAgent),
	}
}

// validationMessages flattens an ozzo validation error into per-field
// messages so payload failures share the violations shape.
func validationMessages(err error) []string {
	if err == nil {
		return nil
	}

	if fieldErrors, ok := err.(validation.Errors); ok {
		messages := make([]string, 0, len(fieldErrors))
		for field, ferr := range fieldErrors {
			messages = append(messages, field+": "+ferr.Error())
		}
		return messages
	}

	return []string{err.Error()}
}
