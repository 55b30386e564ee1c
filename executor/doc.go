// Package executor discovers the functions exported by user source files and
// invokes them by name.
//
// # Overview
//
// Every supported language ships two scripts. The loader prints the
// functions a file exports; the runner calls one of them and prints its
// result:
//
//	interpreter loader module
//	interpreter runner module function [json-args]
//
// A [Module] binds one file to its language. It runs the loader once per
// file version, keeping the result in a shared [cache.Cache], and runs the
// runner on every [Module.Invoke]. A [Multi] merges all supported files of
// a directory into one namespace.
//
// # Basic Usage
//
//	registry := executor.NewRegistry(python.New(), javascript.New())
//	d, err := registry.Open(ctx, "python", "./myproject", "app.py")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	out, err := d.Invoke(ctx, "greet", "world")
//
// # Isolation
//
// Loader and runner calls go through a [sandbox.Backend]. The default is a
// bounded pool of local processes; pass [WithBackend] to run them in
// containers instead:
//
//	backend := sandbox.NewPool(sandbox.NewContainer(projectID), 8)
//	d, err := registry.Open(ctx, lang, dir, start, executor.WithBackend(backend))
//
// # Language Interface
//
// To add support for a new language, implement the [Language] interface.
// See [github.com/caffeineduck/runit/language/python] for an example.
package executor
