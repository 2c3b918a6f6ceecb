package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Voter Support API",
        "description": "Voter chat support intake and admin triage",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": ["http", "https"],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "ChatSupport", "description": "Voter support requests and FAQs"}
    ],
    "paths": {
        "/chat-support": {
            "post": {
                "tags": ["ChatSupport"],
                "summary": "Submit a support request",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SubmitSupportRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "429": {"description": "Cool-down active", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "get": {
                "tags": ["ChatSupport"],
                "summary": "List support requests",
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "parameters": [
                    {"name": "status", "in": "query", "type": "string", "enum": ["pending", "in_progress", "resolved", "closed"]},
                    {"name": "departmentId", "in": "query", "type": "string"},
                    {"name": "dateFrom", "in": "query", "type": "string", "format": "date"},
                    {"name": "dateTo", "in": "query", "type": "string", "format": "date"},
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"},
                    {"name": "sortBy", "in": "query", "type": "string"},
                    {"name": "sortOrder", "in": "query", "type": "string", "enum": ["asc", "desc"]}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Unauthorized"},
                    "403": {"description": "Forbidden"}
                }
            }
        },
        "/chat-support/faqs": {
            "get": {
                "tags": ["ChatSupport"],
                "summary": "List FAQ entries",
                "parameters": [
                    {"name": "category", "in": "query", "type": "string"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/chat-support/faqs/categories": {
            "get": {
                "tags": ["ChatSupport"],
                "summary": "List FAQ categories",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/chat-support/stats/summary": {
            "get": {
                "tags": ["ChatSupport"],
                "summary": "Support request summary statistics",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/chat-support/export": {
            "get": {
                "tags": ["ChatSupport"],
                "summary": "Export support requests",
                "security": [{"BearerAuth": []}],
                "produces": ["text/csv", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "application/pdf"],
                "parameters": [
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "xlsx", "pdf"]},
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "departmentId", "in": "query", "type": "string"},
                    {"name": "dateFrom", "in": "query", "type": "string", "format": "date"},
                    {"name": "dateTo", "in": "query", "type": "string", "format": "date"},
                    {"name": "search", "in": "query", "type": "string"}
                ],
                "responses": {"200": {"description": "File download", "schema": {"type": "file"}}}
            }
        },
        "/chat-support/bulk-update": {
            "post": {
                "tags": ["ChatSupport"],
                "summary": "Bulk update support request status",
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/BulkUpdateStatusRequest"}}
                ],
                "responses": {"200": {"description": "Per-id results", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/chat-support/{id}": {
            "get": {
                "tags": ["ChatSupport"],
                "summary": "Get support request",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found"}
                }
            },
            "put": {
                "tags": ["ChatSupport"],
                "summary": "Update support request status",
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateSupportStatusRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found"},
                    "409": {"description": "Transition not allowed"}
                }
            },
            "delete": {
                "tags": ["ChatSupport"],
                "summary": "Delete support request",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "204": {"description": "Deleted"},
                    "404": {"description": "Not found"}
                }
            }
        }
    },
    "definitions": {
        "SubmitSupportRequest": {
            "type": "object",
            "required": ["schoolId", "fullName", "departmentId", "birthday", "email", "message"],
            "properties": {
                "schoolId": {"type": "integer"},
                "fullName": {"type": "string", "maxLength": 255},
                "departmentId": {"type": "string"},
                "birthday": {"type": "string", "format": "date"},
                "email": {"type": "string", "format": "email"},
                "message": {"type": "string", "minLength": 10, "maxLength": 1000}
            }
        },
        "UpdateSupportStatusRequest": {
            "type": "object",
            "required": ["status"],
            "properties": {
                "status": {"type": "string", "enum": ["pending", "in_progress", "resolved", "closed"]},
                "adminNotes": {"type": "string"},
                "assignedTo": {"type": "string"}
            }
        },
        "BulkUpdateStatusRequest": {
            "type": "object",
            "required": ["ids", "status"],
            "properties": {
                "ids": {"type": "array", "items": {"type": "string"}},
                "status": {"type": "string", "enum": ["pending", "in_progress", "resolved", "closed"]},
                "adminNotes": {"type": "string"}
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
                "status": {"type": "integer"},
                "details": {"type": "object", "additionalProperties": {"type": "string"}},
                "retry_after": {"type": "integer"}
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
