package rusto

import (
	stderrors "errors"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"

	"github.com/rusto/rusto-web/client"
)

// AuthControllerRoutes are the paths the auth pages mount under.
type AuthControllerRoutes struct {
	Login    string
	Logout   string
	Register string
}

// AuthControllerViews are the template names the auth pages render.
type AuthControllerViews struct {
	Login    string
	Register string
}

// AuthController serves the login and registration pages and is the only
// place UI actions touch the session lifecycle.
type AuthController struct {
	Auth   *HTTPAuth
	Logger Logger
	Routes *AuthControllerRoutes
	Views  *AuthControllerViews
}

// AuthControllerOption mutates the controller during construction.
type AuthControllerOption func(*AuthController) *AuthController

// WithAuthLogger sets the controller logger.
func WithAuthLogger(logger Logger) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Logger = logger
		return c
	}
}

// NewAuthController builds a controller with default routes and views.
func NewAuthController(auth *HTTPAuth, opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Auth:   auth,
		Logger: defLogger{},
		Routes: &AuthControllerRoutes{
			Login:    "/login",
			Logout:   "/logout",
			Register: "/register",
		},
		Views: &AuthControllerViews{
			Login:    "login",
			Register: "register",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Auth == nil {
		panic("Missing HTTPAuth in auth controller...")
	}

	return c
}

// RegisterAuthRoutes mounts the auth pages on the app.
func RegisterAuthRoutes(app *fiber.App, controller *AuthController) {
	app.Get(controller.Routes.Login, controller.LoginShow).Name("sign-in.get")
	app.Post(controller.Routes.Login, controller.LoginPost).Name("sign-in.post")
	app.Get(controller.Routes.Logout, controller.LogOut).Name("sign-out.get")
	app.Get(controller.Routes.Register, controller.RegistrationShow).Name("register.get")
	app.Post(controller.Routes.Register, controller.RegistrationCreate).Name("register.post")
}

func (a *AuthController) LoginShow(c *fiber.Ctx) error {
	if a.Auth.Session(c).IsAuthenticated(c.UserContext()) {
		return c.Redirect(a.Auth.DashboardPath, fiber.StatusSeeOther)
	}

	return c.Render(a.Views.Login, fiber.Map{
		"errors":   nil,
		"record":   nil,
		"callback": a.Auth.CallbackTarget(c, ""),
	})
}

// LoginRequest is the sign-in form payload.
type LoginRequest struct {
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
	Callback string `form:"callback" json:"callback"`
}

// Validate runs the client-side validation rules; nothing is sent to the
// backend until they pass.
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

func (a *AuthController) LoginPost(c *fiber.Ctx) error {
	payload := new(LoginRequest)

	if err := c.BodyParser(payload); err != nil {
		a.Logger.Error("login parse payload: %v", err)
		return c.Status(fiber.StatusBadRequest).Render(a.Views.Login, fiber.Map{
			"errors": map[string]string{"form": "Failed to parse form"},
			"record": payload,
		})
	}

	if err := payload.Validate(); err != nil {
		return c.Render(a.Views.Login, fiber.Map{
			"record":     payload,
			"validation": FormatValidationErrorToMap(err),
			"callback":   payload.Callback,
		})
	}

	sess := a.Auth.Session(c)
	if err := sess.Login(c.UserContext(), payload.Email, payload.Password); err != nil {
		a.Logger.Info("login rejected for %s", payload.Email)
		return c.Render(a.Views.Login, fiber.Map{
			"errors":   map[string]string{"authentication": client.UserMessage(err, "Authentication Error")},
			"record":   payload,
			"callback": payload.Callback,
		})
	}

	return c.Redirect(a.Auth.CallbackTarget(c, a.Auth.DashboardPath), fiber.StatusSeeOther)
}

func (a *AuthController) LogOut(c *fiber.Ctx) error {
	a.Auth.Session(c).Logout()
	return c.Redirect(a.Auth.LandingPath, fiber.StatusSeeOther)
}

func (a *AuthController) RegistrationShow(c *fiber.Ctx) error {
	if a.Auth.Session(c).IsAuthenticated(c.UserContext()) {
		return c.Redirect(a.Auth.DashboardPath, fiber.StatusSeeOther)
	}

	return c.Render(a.Views.Register, fiber.Map{
		"errors":   map[string]string{},
		"record":   RegistrationCreatePayload{},
		"callback": a.Auth.CallbackTarget(c, ""),
	})
}

// RegistrationCreatePayload is the sign-up form payload.
type RegistrationCreatePayload struct {
	Username        string `form:"username" json:"username"`
	Email           string `form:"email" json:"email"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
	Callback        string `form:"callback" json:"callback"`
}

// Validate runs the registration rules.
func (r RegistrationCreatePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required, validation.Length(3, 30)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (a *AuthController) RegistrationCreate(c *fiber.Ctx) error {
	payload := new(RegistrationCreatePayload)

	if err := c.BodyParser(payload); err != nil {
		a.Logger.Error("register parse payload: %v", err)
		return c.Status(fiber.StatusBadRequest).Render(a.Views.Register, fiber.Map{
			"errors": map[string]string{"form": "Failed to parse form"},
			"record": payload,
		})
	}

	if err := payload.Validate(); err != nil {
		return c.Render(a.Views.Register, fiber.Map{
			"record":     payload,
			"validation": FormatValidationErrorToMap(err),
			"callback":   payload.Callback,
		})
	}

	// Registration authenticates in the same step; there is no second login
	// round trip.
	sess := a.Auth.Session(c)
	if err := sess.Register(c.UserContext(), payload.Username, payload.Email, payload.Password); err != nil {
		a.Logger.Info("registration rejected for %s", payload.Email)
		return c.Render(a.Views.Register, fiber.Map{
			"errors":   map[string]string{"registration": client.UserMessage(err, "Registration Error")},
			"record":   payload,
			"callback": payload.Callback,
		})
	}

	return c.Redirect(a.Auth.CallbackTarget(c, a.Auth.DashboardPath), fiber.StatusSeeOther)
}

// ValidateStringEquals checks that both values match.
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return stderrors.New("values must match")
		}
		return nil
	}
}

// FormatValidationErrorToMap flattens ozzo validation errors into a
// field-to-message map for the templates.
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}
	if err == nil {
		return out
	}

	var verrs validation.Errors
	if stderrors.As(err, &verrs) {
		for field, ferr := range verrs {
			if ferr != nil {
				out[field] = ferr.Error()
			}
		}
		return out
	}

	out["form"] = err.Error()
	return out
}
