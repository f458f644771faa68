// Package docs embeds the public OpenAPI document.
package docs

import _ "embed"

//go:embed openapi.yml
var OpenAPISpec []byte
