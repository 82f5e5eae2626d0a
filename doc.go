/*
Package h1server provides an HTTP/1.1 server engine for Go built directly on TCP.

h1server parses requests itself, frames responses itself and dispatches them
through a segment router, with one goroutine per connection and a per-request
arena that is reset between requests.

Features

  - HTTP/1.0 and HTTP/1.1 with persistent connections and pipelining
  - Content-Length and chunked request bodies, gzip and deflate transfer codings
  - Streamed chunked responses with TE negotiation and trailers-aware filtering
  - Segment routing with captures, trailing wildcards, host patterns and sub-routers
  - 405 responses carrying the Allow union of matching routes
  - Pluggable error handlers for 400, 404/405, 500 and 501
  - Static file tree with an LRU cache and conditional requests
  - Middleware pipeline: recovery, access logging, rate limiting
  - Prometheus metrics and zerolog structured logging

Quick Start

Basic usage example:

package main

import (
    "context"
    "os"

    "github.com/searchktools/h1server/app"
    "github.com/searchktools/h1server/config"
    "github.com/searchktools/h1server/core/http"
)

func main() {
    cfg, err := config.Parse(os.Args[1:])
    if err != nil {
        os.Exit(2)
    }
    application, err := app.New(cfg)
    if err != nil {
        os.Exit(1)
    }

    engine := application.Engine()
    engine.GET("/hello", func(ctx http.Context) error {
        return ctx.String(200, "Hello, World!")
    })

    engine.GET("/users/{id}", func(ctx http.Context) error {
        return ctx.JSON(200, map[string]string{"id": ctx.Param("id")})
    })

    application.Run(context.Background())
}

Modules

The framework is organized into several modules:

  - app: Application lifecycle, metrics endpoint and signal handling
  - config: Flags, H1_* environment variables and JSON files
  - core: Engine, connection loop and error dispatch
  - core/http: Request parsing, bodies, response framing and Context
  - core/http/httptest: In-memory contexts for handler tests
  - core/router: Segment router
  - core/middleware: Middleware pipeline
  - core/stream: Buffered connection reader and writer
  - core/codec: gzip and deflate codings
  - core/pools: Byte and arena pools
  - core/fileserver: Static file tree
  - core/logging: zerolog setup
  - core/observability: Prometheus metrics

For more information, see https://github.com/searchktools/h1server
*/
package h1server
