package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Attendance Agent API",
        "description": "Offline-first attendance capture with background sync to the instructor portal",
        "version": "0.1.0"
    },
    "basePath": "/",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Attendance", "description": "Local write path and record diagnostics"},
        {"name": "Sync", "description": "Upload control, status and connectivity"},
        {"name": "Maintenance", "description": "Retention housekeeping"}
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
                "description": "Reports mode=offline when a local store is open and mode=direct otherwise.",
                "responses": {
                    "200": {"description": "Ready"},
                    "503": {"description": "Local store unreachable"}
                }
            }
        },
        "/api/v1/attendance": {
            "post": {
                "tags": ["Attendance"],
                "summary": "Record an attendance sheet",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SaveAttendanceRequest"}}
                ],
                "responses": {
                    "201": {"description": "Recorded", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "500": {"description": "Storage error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/attendance/records": {
            "get": {
                "tags": ["Attendance"],
                "summary": "List local attendance records",
                "parameters": [
                    {"name": "course", "in": "query", "type": "integer"},
                    {"name": "date", "in": "query", "type": "string"},
                    {"name": "syncStatus", "in": "query", "type": "string", "enum": ["pending", "synced"]},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/attendance/records/export": {
            "get": {
                "tags": ["Attendance"],
                "summary": "Export local attendance records",
                "produces": ["text/csv", "application/pdf"],
                "parameters": [
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]},
                    {"name": "course", "in": "query", "type": "integer"},
                    {"name": "date", "in": "query", "type": "string"},
                    {"name": "syncStatus", "in": "query", "type": "string", "enum": ["pending", "synced"]}
                ],
                "responses": {
                    "200": {"description": "File"}
                }
            }
        },
        "/api/v1/sync": {
            "post": {
                "tags": ["Sync"],
                "summary": "Upload pending records now",
                "responses": {
                    "200": {"description": "Cycle ran; failed batches are listed in groups", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Sync in progress or offline", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "500": {"description": "Storage error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/sync/status": {
            "get": {
                "tags": ["Sync"],
                "summary": "Current sync status",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/SyncStatus"}}
                }
            }
        },
        "/api/v1/sync/status/stream": {
            "get": {
                "tags": ["Sync"],
                "summary": "Server-sent events carrying status snapshots",
                "produces": ["text/event-stream"],
                "responses": {
                    "200": {"description": "Event stream"}
                }
            }
        },
        "/api/v1/connectivity": {
            "put": {
                "tags": ["Sync"],
                "summary": "Report a connectivity transition",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ConnectivityRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/maintenance/cleanup": {
            "post": {
                "tags": ["Maintenance"],
                "summary": "Purge synced records past the retention window",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/metrics": {
            "get": {
                "summary": "Prometheus metrics",
                "produces": ["text/plain"],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        }
    },
    "definitions": {
        "SaveAttendanceRequest": {
            "type": "object",
            "required": ["course", "date", "attendance_data"],
            "properties": {
                "course": {"type": "integer"},
                "date": {"type": "string", "format": "date"},
                "attendance_data": {
                    "type": "object",
                    "additionalProperties": {"type": "string"}
                }
            }
        },
        "ConnectivityRequest": {
            "type": "object",
            "required": ["online"],
            "properties": {
                "online": {"type": "boolean"},
                "source": {"type": "string"}
            }
        },
        "SyncStatus": {
            "type": "object",
            "properties": {
                "pending": {"type": "integer"},
                "synced": {"type": "integer"},
                "isOnline": {"type": "boolean"}
            }
        },
        "GroupResult": {
            "type": "object",
            "properties": {
                "courseId": {"type": "integer"},
                "date": {"type": "string"},
                "records": {"type": "integer"},
                "synced": {"type": "integer"},
                "success": {"type": "boolean"},
                "error": {"type": "string"}
            }
        },
        "SyncResult": {
            "type": "object",
            "properties": {
                "cycleId": {"type": "string"},
                "success": {"type": "boolean"},
                "synced": {"type": "integer"},
                "message": {"type": "string"},
                "groups": {
                    "type": "array",
                    "items": {"$ref": "#/definitions/GroupResult"}
                },
                "startedAt": {"type": "string", "format": "date-time"},
                "finishedAt": {"type": "string", "format": "date-time"}
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
