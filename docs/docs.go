// Package docs holds the OpenAPI document served by the swagger build of
// the HTTP API. Regenerate with `swag init -g cmd/llamactl/docs.go`.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "license": {"name": "MIT", "url": "https://opensource.org/licenses/MIT"},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/install": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["install"],
                "summary": "Start an install run",
                "parameters": [{"description": "models to install", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/types.InstallRequest"}}],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/types.InstallResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/exec": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["exec"],
                "summary": "Run a shell command in the home directory",
                "parameters": [{"description": "command", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/types.ExecRequest"}}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.ExecResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/query": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/x-ndjson"],
                "tags": ["query"],
                "summary": "Run a completion",
                "parameters": [{"description": "query", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/types.QueryRequest"}}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.QueryChunk"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "415": {"description": "Unsupported Media Type", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "504": {"description": "Gateway Timeout", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/events": {
            "get": {
                "produces": ["application/x-ndjson"],
                "tags": ["events"],
                "summary": "Stream pipeline events",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/notify.Event"}}}
            }
        }
    },
    "definitions": {
        "notify.Event": {
            "type": "object",
            "properties": {
                "kind": {"type": "string"},
                "task": {"type": "string"},
                "percent": {"type": "number"},
                "line": {"type": "string"},
                "level": {"type": "string"},
                "run_id": {"type": "string"},
                "time": {"type": "string"}
            }
        },
        "types.ErrorResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "integer", "example": 400},
                "error": {"type": "string", "example": "unknown model: \"8B\""}
            }
        },
        "types.ExecRequest": {
            "type": "object",
            "properties": {
                "command": {"type": "string", "example": "ls models"},
                "cwd": {"type": "string"}
            }
        },
        "types.ExecResponse": {
            "type": "object",
            "properties": {"success": {"type": "boolean"}}
        },
        "types.InstallRequest": {
            "type": "object",
            "properties": {"models": {"type": "array", "items": {"type": "string"}, "example": ["7B", "13B"]}}
        },
        "types.InstallResponse": {
            "type": "object",
            "properties": {"run_id": {"type": "string"}}
        },
        "types.QueryChunk": {
            "type": "object",
            "properties": {"done": {"type": "boolean"}, "text": {"type": "string"}}
        },
        "types.QueryRequest": {
            "type": "object",
            "properties": {
                "model": {"type": "string", "example": "7B"},
                "prompt": {"type": "string", "example": "The capital of France is"},
                "seed": {"type": "integer"},
                "threads": {"type": "integer"},
                "n_predict": {"type": "integer"},
                "top_k": {"type": "integer"},
                "top_p": {"type": "number"},
                "temp": {"type": "number"},
                "batch_size": {"type": "integer"},
                "repeat_last_n": {"type": "integer"},
                "repeat_penalty": {"type": "number"},
                "full": {"type": "boolean"},
                "skip_end": {"type": "boolean"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "llamactl API",
	Description:      "HTTP API for installing llama.cpp models and running completions.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
