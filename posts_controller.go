package rusto

import (
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/gofiber/fiber/v2"

	"github.com/rusto/rusto-web/client"
)

// PostsControllerRoutes are the paths the post pages mount under.
type PostsControllerRoutes struct {
	Home      string
	Dashboard string
	New       string
	Edit      string
	Delete    string
}

// PostsControllerViews are the template names the post pages render.
type PostsControllerViews struct {
	Home      string
	Dashboard string
	Form      string
	Error     string
}

// PostsController serves the public listing, the dashboard and the post
// forms. It is a pure consumer: posts come straight from the backend and the
// token comes from the session manager, never from its own storage.
type PostsController struct {
	API    PostsAPI
	Auth   *HTTPAuth
	Logger Logger
	Routes *PostsControllerRoutes
	Views  *PostsControllerViews
}

// NewPostsController builds a controller with default routes and views.
func NewPostsController(api PostsAPI, auth *HTTPAuth) *PostsController {
	return &PostsController{
		API:    api,
		Auth:   auth,
		Logger: defLogger{},
		Routes: &PostsControllerRoutes{
			Home:      "/",
			Dashboard: "/dashboard",
			New:       "/posts/new",
			Edit:      "/posts/:id/edit",
			Delete:    "/posts/:id/delete",
		},
		Views: &PostsControllerViews{
			Home:      "index",
			Dashboard: "dashboard",
			Form:      "post_form",
			Error:     "errors/500",
		},
	}
}

// RegisterPostsRoutes mounts the post pages. Everything below the dashboard
// sits behind the route guard.
func RegisterPostsRoutes(app *fiber.App, controller *PostsController) {
	auth := controller.Auth

	app.Get(controller.Routes.Home, auth.OptionalAuthentication(), controller.Home).Name("posts.home")

	guard := auth.RequireAuthentication()
	app.Get(controller.Routes.Dashboard, guard, controller.Dashboard).Name("posts.dashboard")
	app.Get(controller.Routes.New, guard, controller.PostNewShow).Name("posts.new.get")
	app.Post(controller.Routes.New, guard, controller.PostCreate).Name("posts.new.post")
	app.Get(controller.Routes.Edit, guard, controller.PostEditShow).Name("posts.edit.get")
	app.Post(controller.Routes.Edit, guard, controller.PostEdit).Name("posts.edit.post")
	app.Post(controller.Routes.Delete, guard, controller.PostDelete).Name("posts.delete.post")
}

// Home renders the public post listing. It works without a session; a
// resolved user only changes the navbar.
func (p *PostsController) Home(c *fiber.Ctx) error {
	posts, err := p.API.ListPosts(c.UserContext())
	if err != nil {
		return p.renderAPIError(c, err)
	}

	return c.Render(p.Views.Home, fiber.Map{
		"user":     CurrentUser(c),
		"posts":    posts,
		"notice":   c.Query(DefaultNoticeParam),
		"callback": p.Auth.CallbackTarget(c, ""),
	})
}

// Dashboard renders the posts owned by the viewer.
func (p *PostsController) Dashboard(c *fiber.Ctx) error {
	sess := p.Auth.Session(c)

	posts, err := p.API.MyPosts(c.UserContext(), sess.Token())
	if err != nil {
		return p.handleAPIError(c, err)
	}

	return c.Render(p.Views.Dashboard, fiber.Map{
		"user":  CurrentUser(c),
		"posts": posts,
	})
}

// PostPayload is the create/edit form payload. The length rules mirror what
// the backend enforces so a round trip never fails on sizes.
type PostPayload struct {
	Title   string `form:"title" json:"title"`
	Content string `form:"content" json:"content"`
}

// Validate runs the post form rules.
func (r PostPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Title, validation.Required, validation.Length(5, 100)),
		validation.Field(&r.Content, validation.Required, validation.Length(10, 0)),
	)
}

func (p *PostsController) PostNewShow(c *fiber.Ctx) error {
	return c.Render(p.Views.Form, fiber.Map{
		"user":   CurrentUser(c),
		"record": PostPayload{},
		"action": p.Routes.New,
	})
}

func (p *PostsController) PostCreate(c *fiber.Ctx) error {
	payload := new(PostPayload)

	if err := c.BodyParser(payload); err != nil {
		p.Logger.Error("post create parse payload: %v", err)
		return c.Status(fiber.StatusBadRequest).Render(p.Views.Form, fiber.Map{
			"user":   CurrentUser(c),
			"errors": map[string]string{"form": "Failed to parse form"},
			"record": payload,
			"action": p.Routes.New,
		})
	}

	if err := payload.Validate(); err != nil {
		return c.Render(p.Views.Form, fiber.Map{
			"user":       CurrentUser(c),
			"validation": FormatValidationErrorToMap(err),
			"record":     payload,
			"action":     p.Routes.New,
		})
	}

	sess := p.Auth.Session(c)
	req := client.CreatePostRequest{Title: payload.Title, Content: payload.Content}

	if _, err := p.API.CreatePost(c.UserContext(), sess.Token(), req); err != nil {
		return p.handleAPIError(c, err)
	}

	return c.Redirect(p.Routes.Dashboard, fiber.StatusSeeOther)
}

func (p *PostsController) PostEditShow(c *fiber.Ctx) error {
	post, err := p.findOwnPost(c, c.Params("id"))
	if err != nil {
		return p.handleAPIError(c, err)
	}
	if post == nil {
		return c.Redirect(p.Routes.Dashboard, fiber.StatusSeeOther)
	}

	return c.Render(p.Views.Form, fiber.Map{
		"user":   CurrentUser(c),
		"record": PostPayload{Title: post.Title, Content: post.Content},
		"action": editActionPath(post.ID),
	})
}

func (p *PostsController) PostEdit(c *fiber.Ctx) error {
	id := c.Params("id")
	payload := new(PostPayload)

	if err := c.BodyParser(payload); err != nil {
		p.Logger.Error("post edit parse payload: %v", err)
		return c.Status(fiber.StatusBadRequest).Render(p.Views.Form, fiber.Map{
			"user":   CurrentUser(c),
			"errors": map[string]string{"form": "Failed to parse form"},
			"record": payload,
			"action": editActionPath(id),
		})
	}

	if err := payload.Validate(); err != nil {
		return c.Render(p.Views.Form, fiber.Map{
			"user":       CurrentUser(c),
			"validation": FormatValidationErrorToMap(err),
			"record":     payload,
			"action":     editActionPath(id),
		})
	}

	sess := p.Auth.Session(c)
	req := client.UpdatePostRequest{
		Title:   &payload.Title,
		Content: &payload.Content,
	}

	if _, err := p.API.UpdatePost(c.UserContext(), sess.Token(), id, req); err != nil {
		return p.handleAPIError(c, err)
	}

	return c.Redirect(p.Routes.Dashboard, fiber.StatusSeeOther)
}

func (p *PostsController) PostDelete(c *fiber.Ctx) error {
	sess := p.Auth.Session(c)

	if err := p.API.DeletePost(c.UserContext(), sess.Token(), c.Params("id")); err != nil {
		return p.handleAPIError(c, err)
	}

	return c.Redirect(p.Routes.Dashboard, fiber.StatusSeeOther)
}

// findOwnPost looks the post up in the viewer's own listing; the backend has
// no single-post read, and this keeps edits scoped to owned posts.
func (p *PostsController) findOwnPost(c *fiber.Ctx, id string) (*client.Post, error) {
	sess := p.Auth.Session(c)

	posts, err := p.API.MyPosts(c.UserContext(), sess.Token())
	if err != nil {
		return nil, err
	}

	for i := range posts {
		if posts[i].ID == id {
			return &posts[i], nil
		}
	}
	return nil, nil
}

// handleAPIError routes a failed authenticated call. An expired session goes
// through the same purge path as the session core and tells the viewer the
// action needs a fresh sign in; everything else renders as a retryable
// failure.
func (p *PostsController) handleAPIError(c *fiber.Ctx, err error) error {
	if client.IsSessionExpired(err) {
		p.Logger.Info("authenticated call rejected, expiring session")
		// Form submissions carry POST-only paths; after re-login the callback
		// is followed with a GET, so those land on the dashboard instead.
		intended := c.Path()
		if c.Method() != fiber.MethodGet {
			intended = p.Routes.Dashboard
		}
		return p.Auth.ExpireSession(c, intended)
	}
	return p.renderAPIError(c, err)
}

func (p *PostsController) renderAPIError(c *fiber.Ctx, err error) error {
	p.Logger.Error("blog api call failed: %v", err)

	message := "Something went wrong. Please try again."
	if client.IsNetworkError(err) {
		message = "The blog service is unreachable right now. Please try again in a moment."
	}

	return c.Status(fiber.StatusBadGateway).Render(p.Views.Error, fiber.Map{
		"user":    CurrentUser(c),
		"message": message,
	})
}

func editActionPath(id string) string {
	return "/posts/" + id + "/edit"
}
