package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Ion Eighth Period API",
        "description": "Eighth period activity signup engine",
        "version": "1.0.0"
    },
    "basePath": "/",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Authentication", "description": "Login and session"},
        {"name": "Blocks", "description": "Eighth period blocks and rosters"},
        {"name": "Activities", "description": "Activity catalog and favorites"},
        {"name": "Signups", "description": "Signup ledger operations"}
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/ready": {
            "get": {
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "Ready"}
                }
            }
        },
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate user",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/auth/me": {
            "get": {
                "tags": ["Authentication"],
                "summary": "Current user profile",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/eighth/blocks": {
            "get": {
                "tags": ["Blocks"],
                "summary": "List blocks",
                "parameters": [
                    {"name": "date", "in": "query", "type": "string"},
                    {"name": "locked", "in": "query", "type": "boolean"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/eighth/blocks/current": {
            "get": {
                "tags": ["Blocks"],
                "summary": "First upcoming block",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "No blocks scheduled"}
                }
            }
        },
        "/eighth/blocks/{id}": {
            "get": {
                "tags": ["Blocks"],
                "summary": "Block roster with occupancy",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Block not found"}
                }
            }
        },
        "/eighth/blocks/{id}/lock": {
            "put": {
                "tags": ["Blocks"],
                "summary": "Lock block (admin)",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Forbidden"}
                }
            },
            "delete": {
                "tags": ["Blocks"],
                "summary": "Unlock block (admin)",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Forbidden"}
                }
            }
        },
        "/eighth/blocks/{id}/export": {
            "get": {
                "tags": ["Blocks"],
                "summary": "Export block roster (admin)",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "Roster file"},
                    "403": {"description": "Forbidden"}
                }
            }
        },
        "/eighth/activities": {
            "get": {
                "tags": ["Activities"],
                "summary": "List activities",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/eighth/activities/{id}": {
            "get": {
                "tags": ["Activities"],
                "summary": "Get activity",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Activity not found"}
                }
            }
        },
        "/eighth/activities/{id}/favorite": {
            "post": {
                "tags": ["Activities"],
                "summary": "Toggle favorite",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/eighth/signup": {
            "post": {
                "tags": ["Signups"],
                "summary": "Sign up for a scheduled activity",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SignupRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Forbidden"},
                    "409": {"description": "Denied or conflicted"}
                }
            }
        },
        "/eighth/unsignup": {
            "post": {
                "tags": ["Signups"],
                "summary": "Remove a signup",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UnsignupRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Signup not found"}
                }
            }
        },
        "/eighth/signups": {
            "get": {
                "tags": ["Signups"],
                "summary": "List a user's signups",
                "parameters": [
                    {"name": "user_id", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            },
            "required": ["email", "password"]
        },
        "SignupRequest": {
            "type": "object",
            "properties": {
                "user_id": {"type": "string"},
                "block_id": {"type": "string"},
                "activity_id": {"type": "string"},
                "force": {"type": "boolean"}
            },
            "required": ["block_id", "activity_id"]
        },
        "UnsignupRequest": {
            "type": "object",
            "properties": {
                "user_id": {"type": "string"},
                "block_id": {"type": "string"},
                "force": {"type": "boolean"}
            },
            "required": ["block_id"]
        },
        "Block": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "date": {"type": "string"},
                "block_letter": {"type": "string"},
                "locked": {"type": "boolean"},
                "signup_time": {"type": "string"}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
