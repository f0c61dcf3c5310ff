//go:build swagger

package httpapi

import (
	"github.com/go-chi/chi/v5"
	"github.com/swaggo/swag"
	httpSwagger "github.com/swaggo/http-swagger"
)

// docTemplate is the minimal document served until `swag init` output is
// generated into the binary.
const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "basePath": "{{.BasePath}}",
    "paths": {
        "/v1/chat/completions": {"post": {"summary": "Create a chat completion", "produces": ["application/json", "text/event-stream"]}},
        "/v1/models": {"get": {"summary": "List served models"}},
        "/health": {"get": {"summary": "Health and model state"}},
        "/status": {"get": {"summary": "Session and quantization status"}}
    }
}`

func init() {
	swag.Register(swag.Name, &swag.Spec{
		Version:          Version,
		BasePath:         "/",
		Schemes:          []string{"http"},
		Title:            "chatd API",
		Description:      "OpenAI compatible chat completions for a locally loaded model.",
		InfoInstanceName: swag.Name,
		SwaggerTemplate:  docTemplate,
		LeftDelim:        "{{",
		RightDelim:       "}}",
	})
}

// MountSwagger serves Swagger UI under /swagger/.
func MountSwagger(r chi.Router) {
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
}
