package transport

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Rogue-Bear-Innovations/memberberries/internal/config"
	"github.com/Rogue-Bear-Innovations/memberberries/internal/db"
	"github.com/Rogue-Bear-Innovations/memberberries/internal/preview"
	"github.com/Rogue-Bear-Innovations/memberberries/internal/realtime"
	"github.com/Rogue-Bear-Innovations/memberberries/internal/service"
)

type (
	RegisterReq struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required,min=12"`
	}

	LoginReq struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	TokenResp struct {
		Token string `json:"token"`
	}

	BookmarkCreateReq struct {
		Title    string  `json:"title" validate:"required"`
		URL      string  `json:"url" validate:"required,url"`
		Category *string `json:"category"`
	}

	BookmarkUpdateReq struct {
		Title    *string `json:"title"`
		URL      *string `json:"url" validate:"omitempty,url"`
		Category *string `json:"category"`
	}

	BookmarkDeleteBatchReq struct {
		IDs []string `json:"ids" validate:"required,min=1"`
	}

	BookmarkResp struct {
		ID        string    `json:"id"`
		Title     string    `json:"title"`
		URL       string    `json:"url"`
		Category  *string   `json:"category"`
		UserID    string    `json:"user_id"`
		CreatedAt time.Time `json:"created_at"`
	}

	ErrorResp struct {
		Error string `json:"error"`
	}

	CustomValidator struct {
		validator *validator.Validate
	}

	HTTPServer struct {
		svc      *service.General
		hub      *realtime.Hub
		previews *preview.Fetcher
		upgrader websocket.Upgrader
		logger   *zap.SugaredLogger
	}
)

func NewHTTPServer(lc fx.Lifecycle, cfg *config.Config, svc *service.General, hub *realtime.Hub, previews *preview.Fetcher, logger *zap.SugaredLogger) *HTTPServer {
	e := echo.New()

	instance := HTTPServer{
		svc:      svc,
		hub:      hub,
		previews: previews,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}

	e.POST("/auth/register", instance.Register)
	e.POST("/auth/login", instance.Login)

	bookmarkG := e.Group("/bookmark")
	bookmarkG.POST("/list", instance.BookmarkList)
	bookmarkG.POST("", instance.BookmarkCreate)
	bookmarkG.PATCH("/:id", instance.BookmarkUpdate)
	bookmarkG.DELETE("/:id", instance.BookmarkDelete)
	bookmarkG.POST("/delete", instance.BookmarkDeleteBatch)

	e.GET("/api/preview", instance.Preview)
	e.GET("/ws", instance.Events)

	e.GET("/ping", func(c echo.Context) error { return c.String(http.StatusOK, "pong") })

	e.Use(middleware.CORS())
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	e.Use(instance.AuthMiddleware)

	e.Validator = &CustomValidator{validator: validator.New()}

	echo.NotFoundHandler = func(c echo.Context) error {
		return c.NoContent(http.StatusNotFound)
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				listen := cfg.Host + ":" + cfg.Port
				if err := e.Start(listen); err != nil && err != http.ErrServerClosed {
					e.Logger.Fatal("shutting down the server")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Stopping HTTP server.")
			return e.Shutdown(ctx)
		},
	})

	return &instance
}

func (s *HTTPServer) Register(c echo.Context) error {
	req := RegisterReq{}
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}

	token, err := s.svc.Register(req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, &TokenResp{Token: token})
}

func (s *HTTPServer) Login(c echo.Context) error {
	req := LoginReq{}
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}

	token, err := s.svc.Login(req.Email, req.Password)
	if err != nil {
		if err == service.ErrLoginUserNotFound || err == service.ErrLoginPasswordDoesNotMatch {
			return c.NoContent(http.StatusUnauthorized)
		}
		return err
	}
	return c.JSON(http.StatusOK, &TokenResp{Token: token})
}

func (s *HTTPServer) BookmarkList(c echo.Context) error {
	user, err := GetUserFromContext(c)
	if err != nil {
		return err
	}

	bookmarks, err := s.svc.BookmarkList(user)
	if err != nil {
		return err
	}

	resp := make([]BookmarkResp, len(bookmarks))
	for i := range bookmarks {
		resp[i] = toBookmarkResp(&bookmarks[i])
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *HTTPServer) BookmarkCreate(c echo.Context) error {
	user, err := GetUserFromContext(c)
	if err != nil {
		return err
	}

	req := BookmarkCreateReq{}
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}

	model, err := s.svc.BookmarkCreate(user, req.Title, req.URL, req.Category)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, toBookmarkResp(model))
}

func (s *HTTPServer) BookmarkUpdate(c echo.Context) error {
	id, err := GetParam(c, "id")
	if err != nil {
		return err
	}
	user, err := GetUserFromContext(c)
	if err != nil {
		return err
	}

	req := BookmarkUpdateReq{}
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}

	model, err := s.svc.BookmarkUpdate(user, id, service.BookmarkFields{
		Title:    req.Title,
		URL:      req.URL,
		Category: req.Category,
	})
	if err != nil {
		if err == service.ErrBookmarkNotFound {
			return c.NoContent(http.StatusNotFound)
		}
		return err
	}

	return c.JSON(http.StatusOK, toBookmarkResp(model))
}

func (s *HTTPServer) BookmarkDelete(c echo.Context) error {
	id, err := GetParam(c, "id")
	if err != nil {
		return err
	}
	user, err := GetUserFromContext(c)
	if err != nil {
		return err
	}

	if err := s.svc.BookmarkDelete(user, id); err != nil {
		if err == service.ErrBookmarkNotFound {
			return c.NoContent(http.StatusNotFound)
		}
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *HTTPServer) BookmarkDeleteBatch(c echo.Context) error {
	user, err := GetUserFromContext(c)
	if err != nil {
		return err
	}

	req := BookmarkDeleteBatchReq{}
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}

	if err := s.svc.BookmarkDeleteBatch(user, req.IDs); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Preview proxies the metadata scrape for a bookmark URL. Upstream
// failures keep their status so the client can tell a dead link from a
// scrape problem.
func (s *HTTPServer) Preview(c echo.Context) error {
	rawURL := c.QueryParam("url")
	if rawURL == "" {
		return c.JSON(http.StatusBadRequest, ErrorResp{Error: "URL is required"})
	}

	p, err := s.previews.Fetch(c.Request().Context(), rawURL)
	if err != nil {
		var statusErr *preview.StatusError
		if errors.As(err, &statusErr) {
			return c.JSON(statusErr.Code, ErrorResp{Error: "Failed to fetch URL"})
		}
		s.logger.Errorw("preview fetch failed", "url", rawURL, "error", err)
		return c.JSON(http.StatusInternalServerError, ErrorResp{Error: "Failed to parse URL"})
	}

	return c.JSON(http.StatusOK, p)
}

// Events upgrades to a websocket and streams the user's change feed
// until either side goes away.
func (s *HTTPServer) Events(c echo.Context) error {
	user, err := GetUserFromContext(c)
	if err != nil {
		return err
	}

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return errors.Wrap(err, "upgrade websocket")
	}
	defer conn.Close()

	events, cancel := s.hub.Subscribe(user.ID)
	defer cancel()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return nil
			}
			if err := conn.WriteJSON(event); err != nil {
				return nil
			}
		case <-closed:
			return nil
		}
	}
}

func (s *HTTPServer) AuthMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		switch c.Path() {
		case "/auth/register", "/auth/login", "/ping":
			return next(c)
		}

		token := ""
		for key, values := range c.Request().Header {
			if strings.ToLower(key) == "x-token" {
				token = values[0]
				break
			}
		}
		if token == "" {
			// Browser websocket clients cannot set headers.
			token = c.QueryParam("token")
		}
		if token == "" {
			return c.NoContent(http.StatusUnauthorized)
		}

		user, err := s.svc.UserByToken(token)
		if err != nil {
			c.Logger().Error(errors.Wrap(err, "find user in db"))
			return c.NoContent(http.StatusUnauthorized)
		}

		c.Set("user", user)
		return next(c)
	}
}

////////

func (cv *CustomValidator) Validate(i interface{}) error {
	if err := cv.validator.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

func BindAndValidate(c echo.Context, v interface{}) error {
	var err error
	if err = c.Bind(v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err = c.Validate(v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

func GetUserFromContext(c echo.Context) (*db.User, error) {
	user, ok := c.Get("user").(*db.User)
	if !ok || user == nil {
		return nil, errors.New("no user found in context")
	}
	return user, nil
}

func GetParam(c echo.Context, name string) (string, error) {
	value := c.Param(name)
	if value == "" {
		return "", echo.NewHTTPError(http.StatusBadRequest, "invalid path param '"+name+"'")
	}
	return value, nil
}

func toBookmarkResp(model *db.Bookmark) BookmarkResp {
	return BookmarkResp{
		ID:        model.ID,
		Title:     model.Title,
		URL:       model.URL,
		Category:  model.Category,
		UserID:    model.UserID,
		CreatedAt: model.CreatedAt,
	}
}
