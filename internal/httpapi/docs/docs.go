// Package docs holds the swagger spec for the inferd HTTP API, registered
// with swag at init.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "license": {
            "name": "MIT",
            "url": "https://opensource.org/licenses/MIT"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/healthz": {
            "get": {
                "produces": ["text/plain"],
                "summary": "Liveness check",
                "responses": {
                    "200": {"description": "ok", "schema": {"type": "string"}}
                }
            }
        },
        "/readyz": {
            "get": {
                "produces": ["text/plain"],
                "summary": "Readiness check, 200 only while the backend is ready",
                "responses": {
                    "200": {"description": "ready", "schema": {"type": "string"}},
                    "503": {"description": "backend state", "schema": {"type": "string"}}
                }
            }
        },
        "/status": {
            "get": {
                "produces": ["application/json"],
                "summary": "Backend, queue and ledger status",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.StatusResponse"}}
                }
            }
        },
        "/models": {
            "get": {
                "produces": ["application/json"],
                "summary": "Installed backend models with their fallback-chain position",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.ModelsResponse"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/v1/updates": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Routes the message like a chat update. Queued jobs answer through the chat transport.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "summary": "Submit a chat message",
                "parameters": [
                    {
                        "description": "message",
                        "name": "update",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/types.UpdateRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "answered locally", "schema": {"$ref": "#/definitions/types.UpdateResponse"}},
                    "202": {"description": "queued", "schema": {"$ref": "#/definitions/types.UpdateResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/v1/replies/{chatID}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "summary": "Replies delivered to a chat through the loopback transport",
                "parameters": [
                    {"type": "integer", "description": "chat id", "name": "chatID", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.RepliesResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "types.BackendStatus": {
            "type": "object",
            "properties": {
                "active_model": {"type": "string", "example": "qwen2.5-coder:7b"},
                "consecutive_crashes": {"type": "integer", "example": 0},
                "fallback": {"type": "boolean", "example": true},
                "last_error": {"type": "string"},
                "pid": {"type": "integer", "example": 12345},
                "restarts": {"type": "integer", "example": 1},
                "state": {"type": "string", "example": "ready"},
                "uptime_seconds": {"type": "integer", "example": 3600},
                "url": {"type": "string", "example": "http://127.0.0.1:11434"}
            }
        },
        "types.ErrorResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "integer", "example": 400},
                "error": {"type": "string", "example": "invalid JSON body"}
            }
        },
        "types.ModelEntry": {
            "type": "object",
            "properties": {
                "active": {"type": "boolean", "example": true},
                "chain_index": {"type": "integer", "example": 0},
                "name": {"type": "string", "example": "qwen2.5-coder:14b"}
            }
        },
        "types.ModelsResponse": {
            "type": "object",
            "properties": {
                "models": {"type": "array", "items": {"$ref": "#/definitions/types.ModelEntry"}}
            }
        },
        "types.QueueStatus": {
            "type": "object",
            "properties": {
                "depth": {"type": "integer", "example": 3},
                "max_depth": {"type": "integer", "example": 64},
                "running": {"type": "integer", "example": 1}
            }
        },
        "types.RepliesResponse": {
            "type": "object",
            "properties": {
                "replies": {"type": "array", "items": {"$ref": "#/definitions/types.Reply"}}
            }
        },
        "types.Reply": {
            "type": "object",
            "properties": {
                "chat_id": {"type": "integer", "example": 424242},
                "text": {"type": "string", "example": "Queue: 0 waiting, 0 running"}
            }
        },
        "types.StatusResponse": {
            "type": "object",
            "properties": {
                "backend": {"$ref": "#/definitions/types.BackendStatus"},
                "jobs": {"type": "object", "additionalProperties": {"type": "integer"}},
                "queue": {"$ref": "#/definitions/types.QueueStatus"},
                "server_time_unix": {"type": "integer", "example": 1700000000}
            }
        },
        "types.UpdateRequest": {
            "type": "object",
            "properties": {
                "chat_id": {"type": "integer", "example": 424242},
                "document": {"type": "string"},
                "document_name": {"type": "string", "example": "main.go"},
                "text": {"type": "string", "example": "/site https://example.com"}
            }
        },
        "types.UpdateResponse": {
            "type": "object",
            "properties": {
                "job_id": {"type": "string", "example": "6f1c1d2e-4b7a-4f57-9c0e-1f3a2b4c5d6e"},
                "outcome": {"type": "string", "example": "queued"},
                "position": {"type": "integer", "example": 2}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "inferd API",
	Description:      "Operator API for the inferd inference supervisor and job scheduler.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
