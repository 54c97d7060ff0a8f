package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "UCAES Academic Engine",
        "description": "Academic period and student progression engine",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Periods", "description": "Academic years, semesters and the current-period pointer"},
        {"name": "Transitions", "description": "Semester and academic-year transitions"},
        {"name": "Migrations", "description": "Approved application to registration pipeline"},
        {"name": "Progression", "description": "Student level advancement"},
        {"name": "Reports", "description": "Batch outcome reports"}
    ],
    "paths": {
        "/periods/current": {
            "get": {
                "tags": ["Periods"],
                "summary": "Get the current academic period",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "No current period configured"}
                }
            }
        },
        "/academic-years": {
            "get": {
                "tags": ["Periods"],
                "summary": "List academic years",
                "parameters": [
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Periods"],
                "summary": "Create an academic year",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/YearInput"}}
                ],
                "responses": {
                    "201": {"description": "Created"},
                    "409": {"description": "Label already exists"}
                }
            }
        },
        "/academic-years/{id}": {
            "get": {
                "tags": ["Periods"],
                "summary": "Get one academic year",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "Not found"}
                }
            },
            "put": {
                "tags": ["Periods"],
                "summary": "Update an upcoming academic year",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/YearInput"}}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "412": {"description": "Year is no longer upcoming"}
                }
            }
        },
        "/semesters": {
            "get": {
                "tags": ["Periods"],
                "summary": "List semesters",
                "parameters": [
                    {"name": "yearId", "in": "query", "type": "string"},
                    {"name": "track", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Periods"],
                "summary": "Create a semester",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SemesterInput"}}
                ],
                "responses": {
                    "201": {"description": "Created"},
                    "409": {"description": "Slot already taken"}
                }
            }
        },
        "/semesters/{id}": {
            "get": {
                "tags": ["Periods"],
                "summary": "Get one semester",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "Not found"}
                }
            },
            "put": {
                "tags": ["Periods"],
                "summary": "Update an upcoming semester",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SemesterInput"}}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "412": {"description": "Semester is no longer upcoming"}
                }
            }
        },
        "/transitions": {
            "post": {
                "tags": ["Transitions"],
                "summary": "Trigger a period transition",
                "description": "A transition that is not yet due returns 200 with success=false and the next eligible date.",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/TransitionRequest"}}
                ],
                "responses": {
                    "200": {"description": "Performed or not yet due", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Concurrent transition won"},
                    "412": {"description": "Blocked by the protection guard"}
                }
            }
        },
        "/migrations/{applicationId}": {
            "post": {
                "tags": ["Migrations"],
                "summary": "Migrate one approved application",
                "parameters": [
                    {"name": "applicationId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Migrated or already migrated"},
                    "404": {"description": "Application not found"},
                    "412": {"description": "Application is not approved"}
                }
            }
        },
        "/migrations/sweep": {
            "post": {
                "tags": ["Migrations"],
                "summary": "Migrate every pending approved application",
                "responses": {
                    "200": {"description": "Sweep summary", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/hooks/application-updated": {
            "post": {
                "tags": ["Migrations"],
                "summary": "Admissions change hook",
                "description": "Edge-triggered: the migration fires only when the status moves into the approved family.",
                "responses": {
                    "200": {"description": "Processed"}
                }
            }
        },
        "/progression/{studentId}/eligibility": {
            "get": {
                "tags": ["Progression"],
                "summary": "Check a student's progression eligibility",
                "parameters": [
                    {"name": "studentId", "in": "path", "required": true, "type": "string"},
                    {"name": "year", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "No progress record"}
                }
            }
        },
        "/progression/completions": {
            "post": {
                "tags": ["Progression"],
                "summary": "Record a completed teaching period",
                "responses": {
                    "201": {"description": "Created"}
                }
            }
        },
        "/progression/run": {
            "post": {
                "tags": ["Progression"],
                "summary": "Run the level-advance batch for a year",
                "responses": {
                    "200": {"description": "Batch summary"}
                }
            }
        },
        "/reports/{id}": {
            "get": {
                "tags": ["Reports"],
                "summary": "Get report status",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "Not found"}
                }
            }
        },
        "/reports/download": {
            "get": {
                "tags": ["Reports"],
                "summary": "Download a finished report",
                "parameters": [
                    {"name": "token", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "File stream"},
                    "403": {"description": "Invalid or expired token"}
                }
            }
        }
    },
    "definitions": {
        "YearInput": {
            "type": "object",
            "required": ["label", "start_date", "end_date"],
            "properties": {
                "label": {"type": "string", "example": "2025/2026"},
                "start_date": {"type": "string", "format": "date-time"},
                "end_date": {"type": "string", "format": "date-time"}
            }
        },
        "SemesterInput": {
            "type": "object",
            "required": ["year_id", "name", "number", "track", "start_date", "end_date"],
            "properties": {
                "year_id": {"type": "string"},
                "name": {"type": "string", "example": "First Semester"},
                "number": {"type": "integer"},
                "track": {"type": "string", "enum": ["Regular", "Weekend"]},
                "start_date": {"type": "string", "format": "date-time"},
                "end_date": {"type": "string", "format": "date-time"}
            }
        },
        "TransitionRequest": {
            "type": "object",
            "required": ["type"],
            "properties": {
                "type": {"type": "string", "enum": ["semester", "academic-year"]},
                "force": {"type": "boolean"}
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
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "message": {"type": "string"},
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
