package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/caffeineduck/runit/executor"
	"github.com/caffeineduck/runit/project"
	"github.com/caffeineduck/runit/sandbox"
)

// Output formats.
const (
	FormatJSON = "json"
	FormatHTML = "html"
)

// DefaultFunction is invoked for the root path.
const DefaultFunction = "index"

// Response is the JSON envelope of every invocation.
type Response struct {
	Status  bool   `json:"status"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

func success(data any) Response { return Response{Status: true, Data: data} }

func failure(msg string) Response { return Response{Status: false, Message: msg} }

// route splits /{function}/{format}. ok is false for deeper paths.
func route(path string) (function, format string, ok bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	function, format = DefaultFunction, FormatJSON
	switch {
	case len(parts) > 2:
		return "", "", false
	case len(parts) == 2:
		if parts[1] != "" {
			format = parts[1]
		}
		fallthrough
	default:
		if parts[0] != "" {
			function = parts[0]
		}
	}
	return function, format, true
}

func (s *Server) invoke(c *gin.Context) {
	method := c.Request.Method
	if method != http.MethodGet && method != http.MethodPost && method != http.MethodHead {
		c.Header("Allow", "GET, POST")
		c.JSON(http.StatusMethodNotAllowed, failure("method not allowed"))
		return
	}
	if s.stopping.Load() {
		s.counters.unavailable.Add(1)
		c.JSON(http.StatusServiceUnavailable, failure("server is shutting down"))
		return
	}

	s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	s.counters.total.Add(1)

	name, format, ok := route(c.Request.URL.Path)
	if !ok {
		s.notFound(c, nil, "", FormatJSON)
		return
	}

	args, override, err := extractArgs(c.Writer, c.Request, s.cfg.MaxBodyBytes)
	if err != nil {
		s.counters.failed.Add(1)
		c.JSON(http.StatusBadRequest, failure(err.Error()))
		return
	}
	if override != "" {
		format = override
	}
	if format != FormatJSON && format != FormatHTML {
		s.counters.failed.Add(1)
		c.JSON(http.StatusBadRequest, failure("unsupported output format "+format))
		return
	}

	out, desc, err := s.call(c.Request.Context(), c.GetString(requestIDKey), name, args)
	switch {
	case err == nil:
		s.counters.succeeded.Add(1)
		s.respond(c, out, format)
	case errors.Is(err, executor.ErrFunctionNotFound):
		s.notFound(c, desc, name, format)
	case isInfrastructure(err):
		s.unavailable(c, err)
	default:
		s.counters.failed.Add(1)
		c.JSON(http.StatusOK, failure(message(err)))
	}
}

// call loads the project and invokes name. A missing project or an
// unsupported language is reported as ErrFunctionNotFound, with desc nil
// when the descriptor could not be read. Failing to open the project for
// any other reason wraps sandbox.ErrUnavailable.
func (s *Server) call(ctx context.Context, requestID, name string, args []string) (string, *project.Descriptor, error) {
	desc, err := project.Load(s.cfg.Dir)
	if err != nil {
		s.log.Warn("project unavailable", "dir", s.cfg.Dir, "error", err)
		return "", nil, fmt.Errorf("%w: %w", executor.ErrFunctionNotFound, err)
	}

	d, err := s.registry.Open(ctx, desc.Language, desc.Dir(), desc.StartFile, s.executorOptions(requestID, desc)...)
	if err != nil {
		if errors.Is(err, executor.ErrUnknownLanguage) {
			s.log.Warn("project cannot be opened", "error", err)
			return "", desc, fmt.Errorf("%w: %w", executor.ErrFunctionNotFound, err)
		}
		if !isInfrastructure(err) {
			err = fmt.Errorf("%w: %w", sandbox.ErrUnavailable, err)
		}
		return "", desc, err
	}

	start := time.Now()
	out, err := d.Invoke(ctx, name, args...)
	switch {
	case err == nil:
		s.log.Debug("function invoked", "function", name, "args", len(args), "duration", time.Since(start))
	case errors.Is(err, executor.ErrFunctionNotFound):
		if derr := d.Err(); isInfrastructure(derr) {
			return "", desc, derr
		}
	case !isInfrastructure(err):
		s.log.Info("function failed", "function", name, "error", err)
	}
	return out, desc, err
}

func (s *Server) executorOptions(requestID string, desc *project.Descriptor) []executor.Option {
	return []executor.Option{
		executor.WithCache(s.cache),
		executor.WithTools(s.tools),
		executor.WithBackend(s.backend),
		executor.WithRuntime(desc.Runtime),
		executor.WithLogger(s.log.Named("executor").With("request_id", requestID)),
	}
}

func (s *Server) respond(c *gin.Context, out, format string) {
	if format == FormatHTML {
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(out))
		return
	}
	c.JSON(http.StatusOK, success(Decode(out)))
}

// notFound answers with a success status: a missing function is a normal
// outcome for the caller, not a server fault.
func (s *Server) notFound(c *gin.Context, desc *project.Descriptor, name, format string) {
	s.counters.notFound.Add(1)
	if format == FormatHTML {
		page := project.DefaultNotFoundPage()
		if desc != nil {
			if custom, ok := desc.NotFoundPage(); ok {
				page = custom
			}
		}
		c.Data(http.StatusOK, "text/html; charset=utf-8", page)
		return
	}
	c.JSON(http.StatusOK, failure(notFoundMessage(name)))
}

func notFoundMessage(name string) string {
	if name == "" {
		return "function not found"
	}
	return "function " + name + " not found"
}

func (s *Server) unavailable(c *gin.Context, err error) {
	s.counters.unavailable.Add(1)
	s.log.Error("execution unavailable", "error", err)
	c.JSON(http.StatusServiceUnavailable, failure("service unavailable: "+err.Error()))
}

func isInfrastructure(err error) bool {
	return errors.Is(err, sandbox.ErrUnavailable) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// message returns what the caller sees for a failed invocation. A runner
// crash is reported with its error output verbatim.
func message(err error) string {
	var exit *sandbox.ExitError
	if errors.As(err, &exit) {
		return exit.Error()
	}
	return strings.TrimPrefix(err.Error(), executor.ErrInvocationFailed.Error()+": ")
}
