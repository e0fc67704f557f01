// Package docs registers the OpenAPI document served at /swagger.
// Regenerate with: swag init -g internal/api/api.go -o internal/docs
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/api/session": {
            "post": {
                "description": "Reuses a valid session when one is presented.",
                "produces": ["application/json"],
                "tags": ["session"],
                "summary": "Start an anonymous session",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}},
                    "201": {"description": "Created", "schema": {"type": "object"}}
                }
            }
        },
        "/api/tests": {
            "get": {
                "produces": ["application/json"],
                "tags": ["catalog"],
                "summary": "List available tests",
                "parameters": [
                    {"type": "string", "description": "Language (en, es)", "name": "lang", "in": "query"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"type": "object"}}}
            }
        },
        "/api/tests/{testId}/questions": {
            "get": {
                "produces": ["application/json"],
                "tags": ["catalog"],
                "summary": "List the ordered questions of a test",
                "parameters": [
                    {"type": "integer", "description": "Test ID", "name": "testId", "in": "path", "required": true},
                    {"type": "string", "description": "Language (en, es)", "name": "lang", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}},
                    "404": {"description": "Not Found", "schema": {"type": "object"}}
                }
            }
        },
        "/api/tests/{testId}/progress": {
            "put": {
                "description": "Replaces the stored answer set and reopens a completed attempt.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["results"],
                "summary": "Store the user's answers for a test",
                "parameters": [
                    {"type": "integer", "description": "Test ID", "name": "testId", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}},
                    "400": {"description": "Bad Request", "schema": {"type": "object"}},
                    "404": {"description": "Not Found", "schema": {"type": "object"}}
                }
            }
        },
        "/api/tests/{testId}/results": {
            "post": {
                "description": "Without forceUpdate an existing result is returned unchanged.",
                "produces": ["application/json"],
                "tags": ["results"],
                "summary": "Score the user's answers for a test",
                "parameters": [
                    {"type": "integer", "description": "Test ID", "name": "testId", "in": "path", "required": true},
                    {"type": "boolean", "description": "Recompute even if results exist", "name": "forceUpdate", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}},
                    "400": {"description": "Bad Request", "schema": {"type": "object"}},
                    "404": {"description": "Not Found", "schema": {"type": "object"}}
                }
            }
        },
        "/api/categories": {
            "get": {
                "description": "With testId, only the axes the test's questions touch.",
                "produces": ["application/json"],
                "tags": ["catalog"],
                "summary": "List the scoring axes",
                "parameters": [
                    {"type": "string", "description": "Language (en, es)", "name": "lang", "in": "query"},
                    {"type": "integer", "description": "Restrict to one test", "name": "testId", "in": "query"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"type": "object"}}}
            }
        },
        "/api/insights": {
            "get": {
                "produces": ["application/json"],
                "tags": ["results"],
                "summary": "List tests the user has results for",
                "responses": {"200": {"description": "OK", "schema": {"type": "object"}}}
            }
        },
        "/api/insights/{testId}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["results"],
                "summary": "Get the stored insights of a test",
                "parameters": [
                    {"type": "integer", "description": "Test ID", "name": "testId", "in": "path", "required": true},
                    {"type": "string", "description": "Language (en, es)", "name": "lang", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}},
                    "404": {"description": "Not Found", "schema": {"type": "object"}}
                }
            }
        },
        "/api/ideology": {
            "get": {
                "produces": ["application/json"],
                "tags": ["ideology"],
                "summary": "Get the user's most recent ideology match",
                "parameters": [
                    {"type": "string", "description": "Language (en, es)", "name": "lang", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}},
                    "404": {"description": "Not Found", "schema": {"type": "object"}}
                }
            },
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["ideology"],
                "summary": "Match submitted scores to the nearest ideology",
                "parameters": [
                    {"description": "Axis scores in [0, 100]", "name": "scores", "in": "body", "required": true, "schema": {"$ref": "#/definitions/scoring.ScoreInput"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}},
                    "400": {"description": "Bad Request", "schema": {"type": "object"}}
                }
            }
        },
        "/api/ideologies": {
            "get": {
                "produces": ["application/json"],
                "tags": ["ideology"],
                "summary": "List the reference ideologies",
                "parameters": [
                    {"type": "string", "description": "Language (en, es)", "name": "lang", "in": "query"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"type": "object"}}}
            }
        },
        "/api/public-figures": {
            "get": {
                "description": "Picks uniformly among figures sharing the ideology. substituted is true when none do and the lowest-id figure was returned.",
                "produces": ["application/json"],
                "tags": ["ideology"],
                "summary": "Get a public figure sharing the user's ideology",
                "parameters": [
                    {"type": "string", "description": "Language (en, es)", "name": "lang", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}},
                    "404": {"description": "Not Found", "schema": {"type": "object"}}
                }
            }
        },
        "/api/narrative": {
            "post": {
                "description": "Pro only, limited per week.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["narrative"],
                "summary": "Generate a written analysis of axis scores",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}},
                    "400": {"description": "Bad Request", "schema": {"type": "object"}},
                    "402": {"description": "Payment Required", "schema": {"type": "object"}},
                    "429": {"description": "Too Many Requests", "schema": {"type": "object"}}
                }
            }
        },
        "/api/payment/create-session": {
            "post": {
                "produces": ["application/json"],
                "tags": ["payment"],
                "summary": "Create a Stripe checkout session for the pro plan",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}},
                    "503": {"description": "Service Unavailable", "schema": {"type": "object"}}
                }
            }
        },
        "/api/payment/webhook": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["payment"],
                "summary": "Receive Stripe events",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}},
                    "400": {"description": "Bad Request", "schema": {"type": "object"}}
                }
            }
        },
        "/api/leaderboard": {
            "get": {
                "description": "Each user counts once, under their most recent match.",
                "produces": ["application/json"],
                "tags": ["leaderboard"],
                "summary": "Rank ideologies by how many users currently match them",
                "parameters": [
                    {"type": "string", "default": "all_time", "description": "daily, weekly, monthly or all_time", "name": "period", "in": "query"},
                    {"type": "integer", "default": 10, "description": "Entries to return, at most 100", "name": "limit", "in": "query"},
                    {"type": "string", "description": "Language (en, es)", "name": "lang", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}},
                    "400": {"description": "Bad Request", "schema": {"type": "object"}}
                }
            }
        },
        "/api/leaderboard/me": {
            "get": {
                "produces": ["application/json"],
                "tags": ["leaderboard"],
                "summary": "Place the user's current ideology on the leaderboard",
                "parameters": [
                    {"type": "string", "default": "all_time", "description": "daily, weekly, monthly or all_time", "name": "period", "in": "query"},
                    {"type": "string", "description": "Language (en, es)", "name": "lang", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}},
                    "404": {"description": "Not Found", "schema": {"type": "object"}}
                }
            }
        },
        "/api/privacy/export": {
            "get": {
                "produces": ["application/json"],
                "tags": ["privacy"],
                "summary": "Download everything stored about the current user",
                "responses": {"200": {"description": "OK", "schema": {"type": "object"}}}
            }
        },
        "/api/privacy/data": {
            "delete": {
                "description": "Payment records are kept; the session stays valid.",
                "produces": ["application/json"],
                "tags": ["privacy"],
                "summary": "Erase the current user's answers, insights and match history",
                "responses": {"200": {"description": "OK", "schema": {"type": "object"}}}
            }
        },
        "/api/privacy/retention": {
            "get": {
                "produces": ["application/json"],
                "tags": ["privacy"],
                "summary": "Describe what is stored and for how long",
                "responses": {"200": {"description": "OK", "schema": {"type": "object"}}}
            }
        },
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["ops"],
                "summary": "Service health",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}},
                    "503": {"description": "Service Unavailable", "schema": {"type": "object"}}
                }
            }
        },
        "/metrics": {
            "get": {
                "produces": ["application/json"],
                "tags": ["ops"],
                "summary": "In-process metrics",
                "responses": {"200": {"description": "OK", "schema": {"type": "object"}}}
            }
        },
        "/alerts": {
            "get": {
                "produces": ["application/json"],
                "tags": ["ops"],
                "summary": "Alerts raised from the in-process metrics",
                "responses": {"200": {"description": "OK", "schema": {"type": "object"}}}
            }
        },
        "/alerts/{id}/silence": {
            "post": {
                "produces": ["application/json"],
                "tags": ["ops"],
                "summary": "Stop notifications for a firing alert",
                "parameters": [
                    {"type": "string", "description": "Alert id", "name": "id", "in": "path", "required": true},
                    {"type": "string", "description": "Go duration, default 30m", "name": "duration", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}},
                    "400": {"description": "Bad Request", "schema": {"type": "object"}},
                    "404": {"description": "Not Found", "schema": {"type": "object"}}
                }
            }
        },
        "/circuit-breakers/reset": {
            "post": {
                "produces": ["application/json"],
                "tags": ["ops"],
                "summary": "Close one named circuit breaker, or all of them",
                "parameters": [
                    {"type": "string", "description": "Breaker name, all when empty", "name": "name", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}},
                    "404": {"description": "Not Found", "schema": {"type": "object"}}
                }
            }
        }
    },
    "definitions": {
        "scoring.ScoreInput": {
            "type": "object",
            "properties": {
                "econ": {"type": "number"},
                "dipl": {"type": "number"},
                "govt": {"type": "number"},
                "scty": {"type": "number"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "ideoscope API",
	Description:      "Political ideology quiz: scoring, insights and ideology matching.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
