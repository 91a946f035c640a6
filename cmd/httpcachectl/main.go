// Command httpcachectl is a small demo/ops binary over the httpcache
// package: inspect what's on disk, prime it by fetching a URL through the
// httpengine, or evict everything. It plays the role the teacher's own
// cmd/go-bypass-403 main.go plays for its scanner: a thin wrapper around a
// runner that owns flag parsing and wiring.
package main

import (
	"os"

	"go-httpcache/internal/obslog"
	"go-httpcache/internal/runner"
)

func main() {
	log := obslog.New("httpcachectl")

	r, err := runner.New(os.Args[1:])
	if err != nil {
		log.Errorf("initialization failed: %v", err)
		os.Exit(1)
	}

	if err := r.Run(); err != nil {
		log.Errorf("execution failed: %v", err)
		os.Exit(1)
	}
}
