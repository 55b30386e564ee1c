// Package runit serves the plain functions of Python, JavaScript, PHP and
// WebAssembly source files as HTTP endpoints.
//
// # Overview
//
// A project is a directory holding a runit.json descriptor and a start
// file. runit discovers the top-level functions the start file defines and
// calls them by name, passing request parameters as positional string
// arguments:
//
//	GET /greet?name=Ada          ->  greet("Ada")
//	POST /add {"a": 1, "b": 2}   ->  add("1", "2")
//
// Discovery runs a per-language loader script once per file version;
// invocations run a runner script in a fresh interpreter process, locally
// or in a container. WebAssembly modules without host imports run in
// process.
//
// # Basic Usage
//
//	registry := executor.NewRegistry(python.New(), javascript.New())
//	d, err := registry.Open(ctx, "python", "./myproject", "application.py")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	out, err := d.Invoke(ctx, "greet", "Ada")
//
// # Serving
//
//	srv, err := server.New(server.DefaultConfig(), registry)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	srv.Run(ctx)
//
// See the [executor], [sandbox], [server] and [project] packages for
// detailed API documentation, and cmd/runit for the command line.
package runit
