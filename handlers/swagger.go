package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger serves a Swagger UI page and the OpenAPI description:
// GET /swagger/index.html and GET /swagger/doc.json.
func RegisterSwagger(r gin.IRoutes) {
	r.GET("/swagger/index.html", func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(swaggerHTML))
	})
	r.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>collabdocs API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "collabdocs", "version": "v1" },
  "components": {
    "securitySchemes": { "bearer": { "type": "http", "scheme": "bearer", "bearerFormat": "JWT" } },
    "schemas": {
      "Document": { "type": "object", "properties": {
        "id": {"type":"string"}, "title": {"type":"string"}, "isPublic": {"type":"boolean"},
        "createdBy": {"type":"string"}, "createdAt": {"type":"string","format":"date-time"},
        "lastModified": {"type":"string","format":"date-time"} } },
      "Error": { "type": "object", "properties": {
        "error": {"type":"string"}, "code": {"type":"string"}, "retryable": {"type":"boolean"} } }
    }
  },
  "security": [ { "bearer": [] } ],
  "paths": {
    "/health": { "get": { "summary": "Liveness check", "security": [], "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "security": [], "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } },
    "/test": { "get": { "summary": "Ping with server time", "security": [], "responses": { "200": { "description": "message and time" } } } },
    "/api/v1/me": { "get": { "summary": "Caller identity", "responses": { "200": { "description": "sub, name, email" }, "401": { "description": "not signed in" } } } },
    "/api/v1/session/logout": { "post": { "summary": "Revoke the presented access token", "responses": { "200": { "description": "logged out" } } } },
    "/api/v1/documents": {
      "get": { "summary": "List visible documents, or search titles with q",
        "parameters": [ { "name": "q", "in": "query", "schema": {"type":"string"} } ],
        "responses": { "200": { "description": "documents, most recently modified first" } } },
      "post": { "summary": "Create a document",
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","required":["title"],"properties":{"title":{"type":"string"},"isPublic":{"type":"boolean"}}} } } },
        "responses": { "201": { "description": "id of the new document" }, "400": { "description": "blank title" }, "401": { "description": "not signed in" } } }
    },
    "/api/v1/documents/{id}": {
      "get": { "summary": "Get a document", "responses": { "200": { "description": "document" }, "403": { "description": "private" }, "404": { "description": "missing" } } },
      "delete": { "summary": "Delete a document (owner)", "responses": { "204": { "description": "deleted" }, "403": { "description": "not owner" } } }
    },
    "/api/v1/documents/{id}/title": { "patch": { "summary": "Rename (owner)", "responses": { "204": { "description": "renamed" } } } },
    "/api/v1/documents/{id}/visibility": { "patch": { "summary": "Set isPublic (owner)", "responses": { "204": { "description": "updated" } } } },
    "/api/v1/documents/{id}/touch": { "post": { "summary": "Bump lastModified", "responses": { "204": { "description": "done or skipped" } } } },
    "/api/v1/documents/{id}/sync/snapshot": {
      "get": { "summary": "Latest snapshot and current version", "responses": { "200": { "description": "snapshot" } } },
      "post": { "summary": "Compact the step log into a snapshot",
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","required":["version","content"],"properties":{"version":{"type":"integer"},"content":{}}} } } },
        "responses": { "200": { "description": "new version" }, "409": { "description": "version conflict" } } }
    },
    "/api/v1/documents/{id}/sync/version": { "get": { "summary": "Current checkpoint version", "responses": { "200": { "description": "version" } } } },
    "/api/v1/documents/{id}/sync/steps": {
      "get": { "summary": "Step batches since a version",
        "parameters": [ { "name": "since", "in": "query", "required": true, "schema": {"type":"integer"} } ],
        "responses": { "200": { "description": "batches and version" }, "409": { "description": "refetch the snapshot" } } },
      "post": { "summary": "Append a step batch",
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","required":["baseVersion","clientId","steps"],"properties":{"baseVersion":{"type":"integer"},"clientId":{"type":"string"},"steps":{"type":"array","items":{}}}} } } },
        "responses": { "200": { "description": "new version" }, "409": { "description": "version conflict" } } }
    },
    "/api/v1/documents/{id}/presence": {
      "post": { "summary": "Heartbeat", "responses": { "200": { "description": "viewers and interval" } } },
      "get": { "summary": "Current viewers", "responses": { "200": { "description": "viewers" } } },
      "delete": { "summary": "Leave", "responses": { "204": { "description": "left" } } }
    },
    "/api/v1/documents/{id}/ws": { "get": { "summary": "Websocket of commit notifications", "responses": { "101": { "description": "switching protocols" } } } }
  }
}`
