// Package docs holds the OpenAPI description served under /swagger.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        },
        "TeamToken": {
            "type": "apiKey",
            "name": "X-Team-Token",
            "in": "header"
        }
    },
    "paths": {
        "/auth/register": {
            "post": {"tags": ["auth"], "summary": "Register an organizer account", "responses": {"201": {"description": "Created"}, "409": {"description": "Email in use"}, "422": {"description": "Validation failed"}}}
        },
        "/auth/login": {
            "post": {"tags": ["auth"], "summary": "Sign in as an organizer", "responses": {"200": {"description": "Token"}, "401": {"description": "Invalid credentials"}}}
        },
        "/auth/me": {
            "get": {"tags": ["auth"], "summary": "Current organizer", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}}
        },
        "/join": {
            "post": {"tags": ["play"], "summary": "Join a race with its short code", "responses": {"201": {"description": "Joined"}, "404": {"description": "Unknown code"}, "409": {"description": "Race not joinable"}}}
        },
        "/play/{raceID}": {
            "get": {"tags": ["play"], "summary": "Current game view of the calling team", "security": [{"TeamToken": []}], "responses": {"200": {"description": "OK"}}}
        },
        "/play/{raceID}/teams": {
            "get": {"tags": ["play"], "summary": "Teams in the caller's race", "security": [{"TeamToken": []}], "responses": {"200": {"description": "OK"}, "401": {"description": "Unauthorized"}}}
        },
        "/play/{raceID}/verify": {
            "post": {"tags": ["play"], "summary": "Check the device position against the current waypoint", "security": [{"TeamToken": []}], "responses": {"200": {"description": "Outcome"}}}
        },
        "/play/{raceID}/hint": {
            "post": {"tags": ["play"], "summary": "Reveal the hint of the current waypoint for 10 points", "security": [{"TeamToken": []}], "responses": {"200": {"description": "Hint"}}}
        },
        "/play/{raceID}/proof": {
            "post": {"tags": ["play"], "summary": "Upload the photo proof for the current waypoint", "consumes": ["multipart/form-data"], "security": [{"TeamToken": []}], "responses": {"201": {"description": "Submitted"}}}
        },
        "/races": {
            "get": {"tags": ["races"], "summary": "Races run by the current organizer", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}},
            "post": {"tags": ["races"], "summary": "Create a race with its waypoints", "security": [{"BearerAuth": []}], "responses": {"201": {"description": "Created"}}}
        },
        "/races/{raceID}": {
            "get": {"tags": ["races"], "summary": "Race details including waypoints", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}}
        },
        "/races/{raceID}/status": {
            "patch": {"tags": ["races"], "summary": "Move a race forward through draft, lobby and active", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}}
        },
        "/races/{raceID}/teams": {
            "get": {"tags": ["races"], "summary": "Teams registered in a race", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}}
        },
        "/races/{raceID}/submissions": {
            "get": {"tags": ["review"], "summary": "Pending submissions of a race, oldest first", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}}
        },
        "/submissions/{submissionID}/review": {
            "post": {"tags": ["review"], "summary": "Approve or reject a submission", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}, "409": {"description": "Already reviewed or stale"}}}
        },
        "/teams/{teamID}/skip": {
            "post": {"tags": ["review"], "summary": "Move a team past its current waypoint without points", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}}
        },
        "/races/{raceID}/leaderboard": {
            "get": {"tags": ["dashboard"], "summary": "Ranked teams of a race", "responses": {"200": {"description": "OK"}}}
        },
        "/races/{raceID}/activity": {
            "get": {"tags": ["dashboard"], "summary": "Latest submissions of a race", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}}
        },
        "/races/{raceID}/map": {
            "get": {"tags": ["dashboard"], "summary": "Waypoints and team positions of a race", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}}
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Ralli API",
	Description:      "Location based scavenger races: organizers build races, teams verify waypoints and submit photo proofs.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
