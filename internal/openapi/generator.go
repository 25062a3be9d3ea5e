// Package openapi builds the OpenAPI 3.1 document describing the Resumly
// HTTP API, served at /openapi.json so LLM clients and tooling can
// discover the surface.
package openapi

import (
	"encoding/json"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
)

// Generate builds the API document.
func Generate(baseURL string) *openapi3.T {
	doc := &openapi3.T{
		OpenAPI: "3.1.0",
		Info: &openapi3.Info{
			Title:       "Resumly API",
			Description: "Self-hosted AI-readable resume pages. Management endpoints use a Bearer session token; the read API uses scoped API keys.",
			Version:     "1.0.0",
		},
	}
	if baseURL != "" {
		doc.Servers = openapi3.Servers{{URL: baseURL}}
	}

	components := openapi3.NewComponents()
	components.Schemas = openapi3.Schemas{}
	components.SecuritySchemes = openapi3.SecuritySchemes{}
	doc.Components = &components

	doc.Components.SecuritySchemes["apiKey"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type: "apiKey",
			In:   "header",
			Name: "X-API-Key",
		},
	}
	doc.Components.SecuritySchemes["bearerAuth"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "JWT",
		},
	}

	addSchemas(doc)
	addPaths(doc)
	return doc
}

// Handler serves the generated document.
func Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(Generate(""))
	}
}

func addSchemas(doc *openapi3.T) {
	doc.Components.Schemas["ErrorResponse"] = &openapi3.SchemaRef{
		Value: objectSchema(openapi3.Schemas{
			"error": &openapi3.SchemaRef{
				Value: objectSchema(openapi3.Schemas{
					"code":    typed("integer"),
					"message": typed("string"),
					"context": typed("object"),
				}),
			},
		}),
	}

	doc.Components.Schemas["Resume"] = &openapi3.SchemaRef{
		Value: objectSchema(openapi3.Schemas{
			"id":           typed("integer"),
			"owner_id":     typed("integer"),
			"slug":         typed("string"),
			"title":        typed("string"),
			"role":         typed("string"),
			"display_name": typed("string"),
			"tags":         arrayOf("string"),
			"summary":      typed("string"),
			"sections":     typed("string"),
			"is_published": typed("boolean"),
		}),
	}

	doc.Components.Schemas["APIKey"] = &openapi3.SchemaRef{
		Value: objectSchema(openapi3.Schemas{
			"id":              typed("integer"),
			"name":            typed("string"),
			"key_prefix":      typed("string"),
			"key_suffix":      typed("string"),
			"resume_id":       typed("integer"),
			"is_admin":        typed("boolean"),
			"permissions":     arrayOf("string"),
			"expires_at":      typed("string"),
			"max_uses":        typed("integer"),
			"rate_limit":      typed("integer"),
			"rotation_policy": typed("string"),
			"key_version":     typed("integer"),
			"use_count":       typed("integer"),
			"unique_ips":      typed("integer"),
			"is_revoked":      typed("boolean"),
		}),
	}

	doc.Components.Schemas["SaveStatus"] = &openapi3.SchemaRef{
		Value: objectSchema(openapi3.Schemas{
			"status": typed("string"),
		}),
	}
}

func addPaths(doc *openapi3.T) {
	doc.Paths = openapi3.NewPaths()
	session := openapi3.SecurityRequirements{{"bearerAuth": {}}}
	key := openapi3.SecurityRequirements{{"apiKey": {}}}

	doc.Paths.Set("/api/v1/system/session", &openapi3.PathItem{
		Post:   op("Log in and receive a session token", nil),
		Delete: op("Log out", nil),
	})
	doc.Paths.Set("/api/v1/system/me", &openapi3.PathItem{
		Get: op("Current account", session),
	})

	doc.Paths.Set("/api/v1/system/resume", &openapi3.PathItem{
		Get:  op("List resumes", session),
		Post: op("Create a resume", session),
	})
	doc.Paths.Set("/api/v1/system/resume/{resumeId}", &openapi3.PathItem{
		Parameters: pathParams("resumeId"),
		Get:        op("Get a resume", session),
		Put:        op("Replace a resume", session),
		Delete:     op("Delete a resume", session),
	})
	doc.Paths.Set("/api/v1/system/resume/{resumeId}/fields", &openapi3.PathItem{
		Parameters: pathParams("resumeId"),
		Patch:      op("Record an edited field snapshot; persistence is debounced", session),
	})
	doc.Paths.Set("/api/v1/system/resume/{resumeId}/save", &openapi3.PathItem{
		Parameters: pathParams("resumeId"),
		Get:        op("Auto-save status", session),
		Post:       op("Save pending edits immediately", session),
	})
	doc.Paths.Set("/api/v1/system/resume/{resumeId}/session", &openapi3.PathItem{
		Parameters: pathParams("resumeId"),
		Delete:     op("Close the editing session", session),
	})

	doc.Paths.Set("/api/v1/system/key", &openapi3.PathItem{
		Get:  op("List API keys", session),
		Post: op("Create an API key; the plaintext is returned once", session),
	})
	doc.Paths.Set("/api/v1/system/key/{keyId}", &openapi3.PathItem{
		Parameters: pathParams("keyId"),
		Get:        op("Get an API key", session),
		Patch:      op("Update an API key's mutable settings", session),
		Delete:     op("Delete an API key permanently", session),
	})
	doc.Paths.Set("/api/v1/system/key/{keyId}/rotate", &openapi3.PathItem{
		Parameters: pathParams("keyId"),
		Post:       op("Rotate the key's secret; requires the typed confirmation phrase", session),
	})
	doc.Paths.Set("/api/v1/system/key/{keyId}/revoke", &openapi3.PathItem{
		Parameters: pathParams("keyId"),
		Post:       op("Revoke the key, keeping its record for audit", session),
	})
	doc.Paths.Set("/api/v1/system/key/{keyId}/usage", &openapi3.PathItem{
		Parameters: pathParams("keyId"),
		Get:        op("Usage analytics for the key", session),
	})

	doc.Paths.Set("/api/v1/resumes", &openapi3.PathItem{
		Get: op("List resumes visible to the API key", key),
	})
	doc.Paths.Set("/api/v1/resumes/{slug}", &openapi3.PathItem{
		Parameters: openapi3.Parameters{{
			Value: &openapi3.Parameter{
				Name:     "slug",
				In:       "path",
				Required: true,
				Schema:   typed("string"),
			},
		}},
		Get: op("Get a resume by slug", key),
	})

	doc.Paths.Set("/healthz", &openapi3.PathItem{Get: op("Liveness probe", nil)})
	doc.Paths.Set("/readyz", &openapi3.PathItem{Get: op("Readiness probe", nil)})
}

func op(summary string, security openapi3.SecurityRequirements) *openapi3.Operation {
	o := openapi3.NewOperation()
	o.Summary = summary
	o.Responses = openapi3.NewResponses()
	if security != nil {
		o.Security = &security
	}
	return o
}

func pathParams(name string) openapi3.Parameters {
	return openapi3.Parameters{{
		Value: &openapi3.Parameter{
			Name:     name,
			In:       "path",
			Required: true,
			Schema:   typed("integer"),
		},
	}}
}

func objectSchema(props openapi3.Schemas) *openapi3.Schema {
	return &openapi3.Schema{
		Type:       &openapi3.Types{"object"},
		Properties: props,
	}
}

func typed(t string) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{t}}}
}

func arrayOf(t string) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type:  &openapi3.Types{"array"},
			Items: typed(t),
		},
	}
}
