package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Lesson Queue API",
        "description": "Instructor lesson queue editing and scheduling service",
        "version": "0.1.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {
            "name": "Sessions",
            "description": "Buffered editing of instructor queues"
        },
        {
            "name": "Events",
            "description": "Direct event persistence"
        },
        {
            "name": "Teachers",
            "description": "Instructor roster"
        }
    ],
    "paths": {
        "/sessions": {
            "post": {
                "tags": [
                    "Sessions"
                ],
                "summary": "Open an editing session over a school day",
                "parameters": [
                    {
                        "name": "X-School-ID",
                        "in": "header",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/OpenSessionRequest"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/sessions/{id}": {
            "get": {
                "tags": [
                    "Sessions"
                ],
                "summary": "Render an editing session",
                "parameters": [
                    {
                        "name": "X-School-ID",
                        "in": "header",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            },
            "delete": {
                "tags": [
                    "Sessions"
                ],
                "summary": "Cancel every buffered edit and close the session",
                "parameters": [
                    {
                        "name": "X-School-ID",
                        "in": "header",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "204": {
                        "description": "No Content"
                    }
                }
            }
        },
        "/sessions/{id}/adjustment": {
            "post": {
                "tags": [
                    "Sessions"
                ],
                "summary": "Enter adjustment mode",
                "parameters": [
                    {
                        "name": "X-School-ID",
                        "in": "header",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            },
            "delete": {
                "tags": [
                    "Sessions"
                ],
                "summary": "Discard every buffered edit and leave adjustment mode",
                "parameters": [
                    {
                        "name": "X-School-ID",
                        "in": "header",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/sessions/{id}/discard": {
            "post": {
                "tags": [
                    "Sessions"
                ],
                "summary": "Reset every buffered edit",
                "parameters": [
                    {
                        "name": "X-School-ID",
                        "in": "header",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/sessions/{id}/settings": {
            "put": {
                "tags": [
                    "Sessions"
                ],
                "summary": "Replace the controller settings",
                "parameters": [
                    {
                        "name": "X-School-ID",
                        "in": "header",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/ControllerSettings"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/sessions/{id}/time": {
            "post": {
                "tags": [
                    "Sessions"
                ],
                "summary": "Move the first event of every opted-in teacher",
                "parameters": [
                    {
                        "name": "X-School-ID",
                        "in": "header",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/AdjustTimeRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/sessions/{id}/location": {
            "post": {
                "tags": [
                    "Sessions"
                ],
                "summary": "Move every opted-in event to a location",
                "parameters": [
                    {
                        "name": "X-School-ID",
                        "in": "header",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/AdjustLocationRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/sessions/{id}/lock-time": {
            "post": {
                "tags": [
                    "Sessions"
                ],
                "summary": "Opt in every teacher and align their first start",
                "parameters": [
                    {
                        "name": "X-School-ID",
                        "in": "header",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/AdjustTimeRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/sessions/{id}/lock-location": {
            "post": {
                "tags": [
                    "Sessions"
                ],
                "summary": "Opt in every teacher and move them to a location",
                "parameters": [
                    {
                        "name": "X-School-ID",
                        "in": "header",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/AdjustLocationRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/sessions/{id}/lock-status": {
            "get": {
                "tags": [
                    "Sessions"
                ],
                "summary": "Count teachers or events matching a bulk value",
                "parameters": [
                    {
                        "name": "X-School-ID",
                        "in": "header",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "time",
                        "in": "query",
                        "type": "string"
                    },
                    {
                        "name": "location",
                        "in": "query",
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/sessions/{id}/changes": {
            "get": {
                "tags": [
                    "Sessions"
                ],
                "summary": "List the changes a submit would send",
                "parameters": [
                    {
                        "name": "X-School-ID",
                        "in": "header",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/sessions/{id}/submit": {
            "post": {
                "tags": [
                    "Sessions"
                ],
                "summary": "Persist every buffered change in one batch",
                "parameters": [
                    {
                        "name": "X-School-ID",
                        "in": "header",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/sessions/{id}/lessons": {
            "post": {
                "tags": [
                    "Sessions"
                ],
                "summary": "Drop a lesson on a teacher queue",
                "parameters": [
                    {
                        "name": "X-School-ID",
                        "in": "header",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/DropLessonRequest"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/sessions/{id}/export": {
            "get": {
                "tags": [
                    "Sessions"
                ],
                "summary": "Download the session queues or pending changes",
                "parameters": [
                    {
                        "name": "X-School-ID",
                        "in": "header",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "format",
                        "in": "query",
                        "type": "string",
                        "enum": [
                            "csv",
                            "pdf"
                        ]
                    },
                    {
                        "name": "changes",
                        "in": "query",
                        "type": "boolean"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "File",
                        "schema": {
                            "type": "file"
                        }
                    }
                },
                "produces": [
                    "text/csv",
                    "application/pdf"
                ]
            }
        },
        "/sessions/{id}/teachers/{teacherId}/opt-in": {
            "post": {
                "tags": [
                    "Sessions"
                ],
                "summary": "Opt a teacher in",
                "parameters": [
                    {
                        "name": "X-School-ID",
                        "in": "header",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "teacherId",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            },
            "delete": {
                "tags": [
                    "Sessions"
                ],
                "summary": "Opt a teacher out, discarding their changes",
                "parameters": [
                    {
                        "name": "X-School-ID",
                        "in": "header",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "teacherId",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/sessions/{id}/teachers/{teacherId}/lock": {
            "post": {
                "tags": [
                    "Sessions"
                ],
                "summary": "Toggle cascade mode",
                "parameters": [
                    {
                        "name": "X-School-ID",
                        "in": "header",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "teacherId",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/sessions/{id}/teachers/{teacherId}/optimise": {
            "post": {
                "tags": [
                    "Sessions"
                ],
                "summary": "Pack a teacher queue to the configured gap",
                "parameters": [
                    {
                        "name": "X-School-ID",
                        "in": "header",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "teacherId",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/sessions/{id}/teachers/{teacherId}/events/{eventId}/{action}": {
            "post": {
                "tags": [
                    "Sessions"
                ],
                "summary": "Apply a per-event edit",
                "parameters": [
                    {
                        "name": "X-School-ID",
                        "in": "header",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "teacherId",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "eventId",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "action",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "enum": [
                            "move-up",
                            "move-down",
                            "earlier",
                            "later",
                            "grow",
                            "shrink",
                            "add-gap",
                            "remove-gap"
                        ]
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "Rejected, data carries the event capabilities",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/sessions/{id}/teachers/{teacherId}/events/{eventId}": {
            "delete": {
                "tags": [
                    "Sessions"
                ],
                "summary": "Delete an event from a teacher queue",
                "parameters": [
                    {
                        "name": "X-School-ID",
                        "in": "header",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "teacherId",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "eventId",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/events": {
            "get": {
                "tags": [
                    "Events"
                ],
                "summary": "List the instructors and events of a day",
                "parameters": [
                    {
                        "name": "X-School-ID",
                        "in": "header",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "date",
                        "in": "query",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            },
            "post": {
                "tags": [
                    "Events"
                ],
                "summary": "Create an event",
                "parameters": [
                    {
                        "name": "X-School-ID",
                        "in": "header",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/CreateEventRequest"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/events/{id}": {
            "patch": {
                "tags": [
                    "Events"
                ],
                "summary": "Update an event",
                "parameters": [
                    {
                        "name": "X-School-ID",
                        "in": "header",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/UpdateEventRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            },
            "delete": {
                "tags": [
                    "Events"
                ],
                "summary": "Delete an event",
                "parameters": [
                    {
                        "name": "X-School-ID",
                        "in": "header",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "204": {
                        "description": "No Content"
                    }
                }
            }
        },
        "/events/bulk-update": {
            "post": {
                "tags": [
                    "Events"
                ],
                "summary": "Apply updates and deletions in one transaction",
                "parameters": [
                    {
                        "name": "X-School-ID",
                        "in": "header",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/BulkUpdateRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/events/bulk-delete": {
            "post": {
                "tags": [
                    "Events"
                ],
                "summary": "Delete several events",
                "parameters": [
                    {
                        "name": "X-School-ID",
                        "in": "header",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/BulkDeleteRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/events/bulk-status": {
            "post": {
                "tags": [
                    "Events"
                ],
                "summary": "Set the status of several events",
                "parameters": [
                    {
                        "name": "X-School-ID",
                        "in": "header",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/BulkStatusRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/teachers": {
            "get": {
                "tags": [
                    "Teachers"
                ],
                "summary": "List teachers",
                "parameters": [
                    {
                        "name": "X-School-ID",
                        "in": "header",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "search",
                        "in": "query",
                        "type": "string"
                    },
                    {
                        "name": "active",
                        "in": "query",
                        "type": "boolean"
                    },
                    {
                        "name": "page",
                        "in": "query",
                        "type": "integer"
                    },
                    {
                        "name": "limit",
                        "in": "query",
                        "type": "integer"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            },
            "post": {
                "tags": [
                    "Teachers"
                ],
                "summary": "Register a teacher",
                "parameters": [
                    {
                        "name": "X-School-ID",
                        "in": "header",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/CreateTeacherRequest"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/teachers/{id}": {
            "get": {
                "tags": [
                    "Teachers"
                ],
                "summary": "Get teacher detail",
                "parameters": [
                    {
                        "name": "X-School-ID",
                        "in": "header",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        }
    },
    "definitions": {
        "ControllerSettings": {
            "type": "object",
            "properties": {
                "submitTime": {
                    "type": "string"
                },
                "location": {
                    "type": "string"
                },
                "durationCapOne": {
                    "type": "integer"
                },
                "durationCapTwo": {
                    "type": "integer"
                },
                "durationCapThree": {
                    "type": "integer"
                },
                "gapMinutes": {
                    "type": "integer"
                },
                "stepDuration": {
                    "type": "integer"
                },
                "minDuration": {
                    "type": "integer"
                },
                "maxDuration": {
                    "type": "integer"
                },
                "locked": {
                    "type": "boolean"
                }
            },
            "required": [
                "submitTime"
            ]
        },
        "OpenSessionRequest": {
            "type": "object",
            "properties": {
                "date": {
                    "type": "string"
                },
                "settings": {
                    "$ref": "#/definitions/ControllerSettings"
                }
            },
            "required": [
                "date"
            ]
        },
        "AdjustTimeRequest": {
            "type": "object",
            "properties": {
                "time": {
                    "type": "string"
                }
            },
            "required": [
                "time"
            ]
        },
        "AdjustLocationRequest": {
            "type": "object",
            "properties": {
                "location": {
                    "type": "string"
                }
            },
            "required": [
                "location"
            ]
        },
        "DropLessonRequest": {
            "type": "object",
            "properties": {
                "teacherId": {
                    "type": "string"
                },
                "lessonId": {
                    "type": "string"
                },
                "bookingId": {
                    "type": "string"
                },
                "capacity": {
                    "type": "integer"
                },
                "location": {
                    "type": "string"
                },
                "packageName": {
                    "type": "string"
                },
                "commission": {
                    "type": "string"
                },
                "revenue": {
                    "type": "string"
                }
            },
            "required": [
                "teacherId",
                "lessonId"
            ]
        },
        "CreateEventRequest": {
            "type": "object",
            "properties": {
                "teacherId": {
                    "type": "string"
                },
                "lessonId": {
                    "type": "string"
                },
                "bookingId": {
                    "type": "string"
                },
                "date": {
                    "type": "string",
                    "format": "date-time"
                },
                "duration": {
                    "type": "integer"
                },
                "location": {
                    "type": "string"
                },
                "status": {
                    "type": "string",
                    "enum": [
                        "planned",
                        "tbc",
                        "completed",
                        "uncompleted"
                    ]
                },
                "capacity": {
                    "type": "integer"
                },
                "commission": {
                    "type": "string"
                },
                "revenue": {
                    "type": "string"
                },
                "packageName": {
                    "type": "string"
                },
                "equipment": {
                    "type": "string"
                }
            },
            "required": [
                "teacherId",
                "lessonId",
                "date",
                "duration"
            ]
        },
        "UpdateEventRequest": {
            "type": "object",
            "properties": {
                "date": {
                    "type": "string",
                    "format": "date-time"
                },
                "duration": {
                    "type": "integer"
                },
                "location": {
                    "type": "string"
                },
                "status": {
                    "type": "string",
                    "enum": [
                        "planned",
                        "tbc",
                        "completed",
                        "uncompleted"
                    ]
                }
            }
        },
        "BulkUpdateRequest": {
            "type": "object",
            "properties": {
                "updates": {
                    "type": "array",
                    "items": {
                        "type": "object",
                        "properties": {
                            "date": {
                                "type": "string",
                                "format": "date-time"
                            },
                            "duration": {
                                "type": "integer"
                            },
                            "location": {
                                "type": "string"
                            },
                            "status": {
                                "type": "string",
                                "enum": [
                                    "planned",
                                    "tbc",
                                    "completed",
                                    "uncompleted"
                                ]
                            },
                            "id": {
                                "type": "string"
                            }
                        },
                        "required": [
                            "id"
                        ]
                    }
                },
                "deletions": {
                    "type": "array",
                    "items": {
                        "type": "string"
                    }
                }
            }
        },
        "BulkDeleteRequest": {
            "type": "object",
            "properties": {
                "ids": {
                    "type": "array",
                    "items": {
                        "type": "string"
                    }
                }
            },
            "required": [
                "ids"
            ]
        },
        "BulkStatusRequest": {
            "type": "object",
            "properties": {
                "ids": {
                    "type": "array",
                    "items": {
                        "type": "string"
                    }
                },
                "status": {
                    "type": "string",
                    "enum": [
                        "planned",
                        "tbc",
                        "completed",
                        "uncompleted"
                    ]
                }
            },
            "required": [
                "ids",
                "status"
            ]
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {
                    "type": "string"
                },
                "message": {
                    "type": "string"
                },
                "status": {
                    "type": "integer"
                }
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {
                    "type": "integer"
                },
                "page_size": {
                    "type": "integer"
                },
                "total_count": {
                    "type": "integer"
                }
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {
                    "type": "object"
                },
                "error": {
                    "$ref": "#/definitions/APIError"
                },
                "pagination": {
                    "$ref": "#/definitions/Pagination"
                },
                "meta": {
                    "type": "object"
                }
            }
        },
        "CreateTeacherRequest": {
            "type": "object",
            "required": [
                "username"
            ],
            "properties": {
                "username": {
                    "type": "string"
                },
                "full_name": {
                    "type": "string"
                }
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
