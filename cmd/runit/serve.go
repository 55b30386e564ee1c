package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/caffeineduck/runit/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the project's functions over HTTP",
	Long: `Start an HTTP server exposing the project's functions.

Endpoints:
  GET|POST /{function}/{format}   Invoke a function (format: json or html)
  GET      /health, /healthz      Liveness and request count
  GET      /ready, /readyz        Project loaded and not shutting down
  GET      /metrics               Request, cache and worker pool counters

Arguments come from the query string (GET) or the body (POST: JSON object
or array, urlencoded or multipart form), in the order they were written.
The output_format parameter overrides the format segment.

With --expose, no port is opened: the project connects to a relay at the
given API endpoint and answers the calls it
forwards over a websocket.

Settings may be read from a YAML file with --config; flags given on the
command line take precedence.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("config", "", "YAML configuration file")
	serveCmd.Flags().String("host", "127.0.0.1", "Host to bind")
	serveCmd.Flags().IntP("port", "p", 5000, "Port to listen on")
	serveCmd.Flags().Duration("timeout", 30*time.Second, "Per-invocation timeout")
	serveCmd.Flags().Duration("grace", 10*time.Second, "Time allowed for in-flight requests on shutdown")
	serveCmd.Flags().Int("workers", 0, "Concurrent invocations (default: 2x CPUs)")
	serveCmd.Flags().Duration("queue-timeout", 10*time.Second, "How long a request waits for a free worker")
	serveCmd.Flags().Bool("docker", false, "Run every invocation in a container")
	serveCmd.Flags().String("image", "", "Container image (default: project _id)")
	serveCmd.Flags().String("network", "none", "Container network mode")
	serveCmd.Flags().StringSlice("mount", nil, "Extra host directory mounted read-only into containers (repeatable)")
	serveCmd.Flags().Bool("watch", false, "Rediscover functions as soon as files change")
	serveCmd.Flags().String("expose", "", "Relay API endpoint to answer calls from instead of listening")
	rootCmd.AddCommand(serveCmd)
}

func serveConfig(cmd *cobra.Command) (server.Config, error) {
	cfg := server.DefaultConfig()
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		loaded, err := server.LoadConfig(path)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("dir") || cfg.Dir == "" {
		cfg.Dir = projectDir(cmd)
	}
	if flags.Changed("host") {
		cfg.Host, _ = flags.GetString("host")
	}
	if flags.Changed("port") {
		cfg.Port, _ = flags.GetInt("port")
	}
	if flags.Changed("timeout") {
		cfg.Timeout, _ = flags.GetDuration("timeout")
	}
	if flags.Changed("grace") {
		cfg.Grace, _ = flags.GetDuration("grace")
	}
	if flags.Changed("workers") {
		cfg.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("queue-timeout") {
		cfg.QueueTimeout, _ = flags.GetDuration("queue-timeout")
	}
	if docker, _ := flags.GetBool("docker"); docker {
		cfg.Isolation = server.IsolationContainer
	}
	if flags.Changed("image") {
		cfg.Image, _ = flags.GetString("image")
	}
	if flags.Changed("network") {
		cfg.Network, _ = flags.GetString("network")
	}
	if flags.Changed("mount") {
		cfg.Mounts, _ = flags.GetStringSlice("mount")
	}
	if watch, _ := flags.GetBool("watch"); watch {
		cfg.Watch = true
	}
	if flags.Changed("expose") {
		cfg.Expose, _ = flags.GetString("expose")
	}

	return cfg, cfg.Validate()
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := serveConfig(cmd)
	if err != nil {
		return err
	}

	log := newLogger(cmd)
	registry := newRegistry(log)
	defer registry.Close()

	srv, err := server.New(cfg, registry, server.WithLogger(log))
	if err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	return srv.Run(cmd.Context())
}
