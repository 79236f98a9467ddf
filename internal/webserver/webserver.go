package webserver

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// jsonSerializer plugs json-iterator into echo.
type jsonSerializer struct{}

func (jsonSerializer) Serialize(c echo.Context, i interface{}, indent string) error {
	enc := json.NewEncoder(c.Response())
	if indent != "" {
		enc.SetIndent("", indent)
	}
	return enc.Encode(i)
}

func (jsonSerializer) Deserialize(c echo.Context, i interface{}) error {
	if err := json.NewDecoder(c.Request().Body).Decode(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error()).SetInternal(err)
	}
	return nil
}

type payloadValidator struct {
	validate *validator.Validate
}

func (v *payloadValidator) Validate(i interface{}) error {
	if err := v.validate.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

// WebServer hosts the dashboard API on an echo instance.
type WebServer struct {
	echo *echo.Echo
	addr string
}

func New(port int) *WebServer {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.JSONSerializer = jsonSerializer{}
	e.Validator = &payloadValidator{validate: validator.New()}
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			zap.L().Debug("http request",
				zap.String("uri", v.URI),
				zap.Int("status", v.Status))
			return nil
		},
	}))
	return &WebServer{echo: e, addr: fmt.Sprintf(":%d", port)}
}

// Echo exposes the underlying router for route registration.
func (w *WebServer) Echo() *echo.Echo {
	return w.echo
}

// Start blocks serving HTTP until Shutdown.
func (w *WebServer) Start() error {
	zap.L().Info("dashboard listening", zap.String("addr", w.addr))
	err := w.echo.Start(w.addr)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (w *WebServer) Shutdown(ctx context.Context) error {
	return w.echo.Shutdown(ctx)
}
