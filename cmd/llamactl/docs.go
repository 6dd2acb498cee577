package main

// General API documentation for swaggo. Run `swag init -g cmd/llamactl/docs.go` to regenerate docs/.
//
// @title           llamactl API
// @version         1.0
// @description     HTTP API for installing llama.cpp models and running completions.
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
