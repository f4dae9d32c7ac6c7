package handler

import (
	"strings"
)

const (
	forwardedForHeader = "x-forwarded-for"
	commandParam       = "command"
)

// Event is the inbound invocation record in the API-gateway proxy
// shape. Only the fields the terminal consumes are declared; unknown
// fields in the raw payload are ignored.
type Event struct {
	HTTPMethod            string            `json:"httpMethod"`
	Path                  string            `json:"path"`
	Headers               map[string]string `json:"headers"`
	QueryStringParameters map[string]string `json:"queryStringParameters"`
}

// Envelope is the fixed-shape response returned to the invoking
// platform. The body always carries base64-encoded HTML and the
// status is always 200; failures surface inside the page, never here.
type Envelope struct {
	IsBase64Encoded bool              `json:"isBase64Encoded"`
	StatusCode      int               `json:"statusCode"`
	Headers         map[string]string `json:"headers"`
	Body            string            `json:"body"`
}

// Identity derives the caller identity from the forwarded-address
// header. Proxies append hops after a comma, so only the first
// element counts. Header name matching is case-insensitive and a
// missing header yields the empty identity.
func (e Event) Identity() string {
	for name, value := range e.Headers {
		if strings.EqualFold(name, forwardedForHeader) {
			first, _, _ := strings.Cut(value, ",")
			return strings.TrimSpace(first)
		}
	}
	return ""
}

// Command returns the requested command, defaulting to the empty
// string when the parameter is absent.
func (e Event) Command() string {
	return e.QueryStringParameters[commandParam]
}
