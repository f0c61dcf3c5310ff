package main

// General API documentation for swaggo. Generate with `swag init -g cmd/chatd/docs.go`.
//
// @title           chatd API
// @version         1.3.0
// @description     OpenAI compatible chat completions for a locally loaded model.
//
// @contact.name   chatd maintainers
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
