package sandbox

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestContainerDockerArgs(t *testing.T) {
	c := NewContainer("proj-123", WithEnv("A=1"), WithMount("/srv/shared"))
	tc := Toolchain{
		Interpreter: "python3 -u",
		Loader:      "/opt/runit/tools/python/loader.py",
		Runner:      "/opt/runit/tools/python/runner.py",
	}

	argv, err := runnerArgs(tc, "/srv/projects/p/app.py", "add", []string{"1", "2"})
	assert.NoError(t, err)
	args := c.dockerArgs("runit-x", tc, "/srv/projects/p/app.py", argv)
	joined := strings.Join(args, " ")

	assert.Equal(t, []string{"run", "--rm", "-i", "--name", "runit-x"}, args[:5])
	assert.Contains(t, joined, "--workdir /srv/projects/p")
	assert.Contains(t, joined, "--network none")
	assert.Contains(t, joined, "--volume /srv/projects/p:/srv/projects/p:ro")
	assert.Contains(t, joined, "--volume /opt/runit/tools/python:/opt/runit/tools/python:ro")
	assert.Contains(t, joined, "--volume /srv/shared:/srv/shared:ro")
	assert.Contains(t, joined, "--env A=1")
	assert.True(t, strings.HasSuffix(joined,
		`proj-123 python3 -u /opt/runit/tools/python/runner.py /srv/projects/p/app.py add ["1","2"]`), joined)
}

func TestContainerEngineMissing(t *testing.T) {
	c := NewContainer("proj", WithDockerBinary("/nonexistent/docker"))
	tc := Toolchain{Interpreter: "python3", Loader: "/t/loader.py", Runner: "/t/runner.py"}

	_, err := c.RunLoader(context.Background(), tc, "/p/app.py")
	assert.True(t, errors.Is(err, ErrUnavailable), "got %v", err)
}

func TestContainerBreakerOpens(t *testing.T) {
	c := NewContainer("proj", WithDockerBinary("/nonexistent/docker"), WithBreaker(2, time.Minute))
	tc := Toolchain{Interpreter: "python3", Loader: "/t/loader.py", Runner: "/t/runner.py"}

	for i := 0; i < 2; i++ {
		_, err := c.RunRunner(context.Background(), tc, "/p/app.py", "index")
		assert.True(t, errors.Is(err, ErrUnavailable))
	}

	_, err := c.RunRunner(context.Background(), tc, "/p/app.py", "index")
	assert.True(t, errors.Is(err, ErrUnavailable))
	assert.Contains(t, err.Error(), "circuit breaker is open")
}
