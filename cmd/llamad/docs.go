package main

// General API documentation for swaggo. Regenerate the docs package with
// `swag init -g cmd/llamad/docs.go -o internal/httpapi/docs`.
//
// @title           llamad API
// @version         1.0
// @description     HTTP API for a single local llama.cpp engine: load, unload and streaming generation.
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
