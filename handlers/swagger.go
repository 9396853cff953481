package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers minimal Swagger/OpenAPI endpoints for the document service.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(rg gin.IRouter) {
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>docledger API</title>
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

// Minimal OpenAPI document for the lifecycle API. Errors share one body:
// {"error": string, "reason": string}.
const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "docledger", "version": "v1" },
  "components": {
    "securitySchemes": { "bearer": { "type": "http", "scheme": "bearer", "bearerFormat": "JWT" } },
    "responses": {
      "BadRequest": { "description": "invalid input" },
      "Forbidden": { "description": "denied by ACL" },
      "NotFound": { "description": "unknown, deleted or invisible document" },
      "Conflict": { "description": "state conflict (zero owners, version race, not deleted)" },
      "Locked": { "description": "hard-locked retention not yet expired" },
      "Unavailable": { "description": "infrastructure failure" }
    }
  },
  "security": [ { "bearer": [] } ],
  "paths": {
    "/api/v1/documents": {
      "get": { "summary": "List readable documents", "parameters": [
        {"name":"customerId","in":"query","schema":{"type":"string"}},
        {"name":"domain","in":"query","schema":{"type":"string"}},
        {"name":"category","in":"query","schema":{"type":"string"}},
        {"name":"docType","in":"query","schema":{"type":"string"}},
        {"name":"page","in":"query","schema":{"type":"integer","minimum":1}},
        {"name":"limit","in":"query","schema":{"type":"integer","minimum":1,"maximum":100}},
        {"name":"includeDeleted","in":"query","schema":{"type":"boolean"}}],
        "responses": { "200": { "description": "page of documents" } } },
      "post": { "summary": "Create a document", "responses": { "201": { "description": "created" }, "400": { "$ref": "#/components/responses/BadRequest" } } }
    },
    "/api/v1/documents/{id}": {
      "get": { "summary": "Get document metadata", "responses": { "200": { "description": "document" }, "404": { "$ref": "#/components/responses/NotFound" } } },
      "delete": { "summary": "Delete per retention policy", "responses": { "200": { "description": "deletion result" }, "423": { "$ref": "#/components/responses/Locked" } } }
    },
    "/api/v1/documents/{id}/content": {
      "get": { "summary": "Resolve version content", "parameters": [{"name":"version","in":"query","schema":{"type":"integer","minimum":1}}], "responses": { "200": { "description": "content reference with presigned URL" } } }
    },
    "/api/v1/documents/{id}/acl": {
      "put": { "summary": "Replace the ACL", "responses": { "200": { "description": "document" }, "409": { "$ref": "#/components/responses/Conflict" } } }
    },
    "/api/v1/documents/{id}/retention": {
      "put": { "summary": "Replace the retention settings", "responses": { "200": { "description": "document" }, "423": { "$ref": "#/components/responses/Locked" } } }
    },
    "/api/v1/documents/{id}/restore": {
      "post": { "summary": "Restore a soft-deleted document", "responses": { "200": { "description": "document" }, "409": { "$ref": "#/components/responses/Conflict" } } }
    },
    "/api/v1/documents/{id}/versions": {
      "get": { "summary": "List versions", "responses": { "200": { "description": "versions in ascending order" } } },
      "post": { "summary": "Append a version", "responses": { "201": { "description": "version" }, "409": { "$ref": "#/components/responses/Conflict" } } }
    },
    "/api/v1/documents/{id}/versions/{version}": {
      "patch": { "summary": "Change version status", "responses": { "200": { "description": "document" }, "409": { "$ref": "#/components/responses/Conflict" } } }
    },
    "/api/v1/documents/{id}/audit": {
      "get": { "summary": "Audit trail (manage-acl)", "responses": { "200": { "description": "records" }, "403": { "$ref": "#/components/responses/Forbidden" } } }
    },
    "/health": { "get": { "summary": "Liveness check", "security": [], "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "security": [], "responses": { "200": { "description": "ready" }, "503": { "$ref": "#/components/responses/Unavailable" } } } }
  }
}`
