package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Exam Analytics API",
        "description": "Publishes per-student analytics, predictions and leaderboards computed from uploaded test results.",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Students", "description": "Published per-student views"},
        {"name": "Leaderboards", "description": "Published rankings and exports"},
        {"name": "Ingestion", "description": "Result document uploads"},
        {"name": "System", "description": "Operational endpoints"}
    ],
    "paths": {
        "/students/{psid}": {
            "get": {
                "tags": ["Students"],
                "summary": "Student analytics snapshot",
                "parameters": [
                    {"name": "psid", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Snapshot unavailable", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students/{psid}/prediction": {
            "get": {
                "tags": ["Students"],
                "summary": "Student score prediction",
                "parameters": [
                    {"name": "psid", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Snapshot unavailable", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students/{psid}/graphs": {
            "get": {
                "tags": ["Students"],
                "summary": "Student trend graphs and progress delta",
                "parameters": [
                    {"name": "psid", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Snapshot unavailable", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/leaderboards/{method}": {
            "get": {
                "tags": ["Leaderboards"],
                "summary": "Published leaderboard with masked PSIDs",
                "parameters": [
                    {"name": "method", "in": "path", "required": true, "type": "string", "description": "latest_scores, overall_average, consistency_index or subject_<name>"},
                    {"name": "batch", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Unknown method", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/leaderboards/{method}/private": {
            "get": {
                "tags": ["Leaderboards"],
                "summary": "Leaderboard with full PSIDs",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "method", "in": "path", "required": true, "type": "string"},
                    {"name": "batch", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/leaderboards/{method}/export": {
            "get": {
                "tags": ["Leaderboards"],
                "summary": "Signed download link for a leaderboard export",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "method", "in": "path", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf", "xlsx"]}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/exports/download": {
            "get": {
                "tags": ["Leaderboards"],
                "summary": "Download a leaderboard export",
                "produces": ["application/octet-stream"],
                "parameters": [
                    {"name": "token", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "File"},
                    "403": {"description": "Expired or invalid token", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admin/ingestions": {
            "post": {
                "tags": ["Ingestion"],
                "summary": "Ingest one result document",
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json", "multipart/form-data"],
                "parameters": [
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/IngestionRequest"}}
                ],
                "responses": {
                    "200": {"description": "Published", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Rejected document", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Publish conflict", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admin/ingestions/{runId}": {
            "get": {
                "tags": ["Ingestion"],
                "summary": "Ingestion run status",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "runId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Unknown run", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admin/rebuild": {
            "post": {
                "tags": ["Ingestion"],
                "summary": "Recompute and republish every view from the store",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admin/system/metrics": {
            "get": {
                "tags": ["System"],
                "summary": "Process metrics snapshot",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "ParsedRecord": {
            "type": "object",
            "properties": {
                "psid": {"type": "string"},
                "name": {"type": "string"},
                "batch": {"type": "string"},
                "subjects": {"type": "object", "additionalProperties": {"type": "number"}},
                "total": {"type": "number"},
                "center_rank": {"type": "integer"},
                "air_rank": {"type": "integer"},
                "percentile": {"type": "number"}
            }
        },
        "IngestionRequest": {
            "type": "object",
            "required": ["test_id", "test_type", "test_date", "max_marks", "records"],
            "properties": {
                "test_id": {"type": "string"},
                "test_type": {"type": "string", "enum": ["FT", "NBTS", "AIATS"]},
                "test_date": {"type": "string"},
                "max_marks": {"type": "number"},
                "source": {"type": "string"},
                "records": {"type": "array", "items": {"$ref": "#/definitions/ParsedRecord"}}
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
