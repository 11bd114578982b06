package server

import (
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"example.com/listingfs/internal/logger"
)

// jsonMarshalFunc allows swapping out json.Marshal for testing.
var jsonMarshalFunc = json.Marshal

// ErrorDetail represents the inner structure of a JSON error response.
type ErrorDetail struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Detail     string `json:"detail,omitempty"`
}

// ErrorResponseJSON represents the full JSON error response body.
type ErrorResponseJSON struct {
	Error ErrorDetail `json:"error"`
}

// defaultHTMLMessages maps HTTP status codes to their default HTML messages.
var defaultHTMLMessages = map[int]struct {
	Title   string
	Heading string
	Message string
}{
	http.StatusNotFound: {
		Title:   "404 Not Found",
		Heading: "Not Found",
		Message: "The requested resource was not found on this server.",
	},
	http.StatusInternalServerError: {
		Title:   "500 Internal Server Error",
		Heading: "Internal Server Error",
		Message: "The server encountered an internal error and was unable to complete your request.",
	},
	http.StatusForbidden: {
		Title:   "403 Forbidden",
		Heading: "Forbidden",
		Message: "You do not have permission to access this resource.",
	},
	http.StatusMethodNotAllowed: {
		Title:   "405 Method Not Allowed",
		Heading: "Method Not Allowed",
		Message: "The method specified in the Request-Line is not allowed for the resource identified by the Request-URI.",
	},
}

// PrefersJSON checks if the client prefers application/json based on the Accept header.
// Offers are ranked by q-value, then specificity, then header order; q=0 offers are ignored.
func PrefersJSON(acceptHeaderValue string) bool {
	if acceptHeaderValue == "" {
		return false
	}

	type offer struct {
		mediaType string
		q         float64
		specific  bool
		order     int
	}
	var offers []offer

	for i, part := range strings.Split(acceptHeaderValue, ",") {
		part = strings.TrimSpace(part)
		mediaType := part
		q := 1.0

		if idx := strings.Index(part, ";"); idx != -1 {
			mediaType = strings.TrimSpace(part[:idx])
			for _, param := range strings.Split(part[idx+1:], ";") {
				param = strings.TrimSpace(param)
				if !strings.HasPrefix(param, "q=") {
					continue
				}
				parsed, err := strconv.ParseFloat(param[2:], 64)
				if err != nil || parsed < 0 || parsed > 1 {
					parsed = 0
				}
				q = parsed
				break
			}
		}

		if q > 0 {
			offers = append(offers, offer{
				mediaType: strings.ToLower(mediaType),
				q:         q,
				specific:  !strings.HasSuffix(mediaType, "/*") && mediaType != "*/*",
				order:     i,
			})
		}
	}

	if len(offers) == 0 {
		return false
	}

	sort.SliceStable(offers, func(i, j int) bool {
		if offers[i].q != offers[j].q {
			return offers[i].q > offers[j].q
		}
		if offers[i].specific != offers[j].specific {
			return offers[i].specific
		}
		return offers[i].order < offers[j].order
	})
	return offers[0].mediaType == "application/json"
}

// WriteErrorResponse sends a default error page, JSON when the client's Accept
// header prefers it and HTML otherwise. HEAD requests get headers only.
func WriteErrorResponse(w http.ResponseWriter, r *http.Request, statusCode int, detailMessage string, log *logger.Logger) {
	statusText := http.StatusText(statusCode)
	if statusText == "" {
		statusText = "Error"
	}

	var (
		body        []byte
		contentType string
	)
	accept := ""
	if r != nil {
		accept = r.Header.Get("Accept")
	}

	sendJSON := PrefersJSON(accept)
	if sendJSON {
		contentType = "application/json; charset=utf-8"
		var err error
		body, err = jsonMarshalFunc(ErrorResponseJSON{
			Error: ErrorDetail{StatusCode: statusCode, Message: statusText, Detail: detailMessage},
		})
		if err != nil {
			if log != nil {
				log.Error("Failed to marshal JSON error response, falling back to HTML.", logger.LogFields{"error": err.Error(), "status_code": statusCode})
			}
			sendJSON = false
		}
	}

	if !sendJSON {
		contentType = "text/html; charset=utf-8"
		var title, heading, message string
		if msg, ok := defaultHTMLMessages[statusCode]; ok {
			title, heading, message = msg.Title, msg.Heading, msg.Message
			if detailMessage != "" {
				message += " " + html.EscapeString(detailMessage)
			}
		} else {
			title = fmt.Sprintf("%d %s", statusCode, statusText)
			heading = statusText
			message = "The server encountered an error processing your request."
			if detailMessage != "" {
				message = html.EscapeString(detailMessage)
			}
		}
		body = GenerateHTMLResponseBody(title, heading, message)
	}

	h := w.Header()
	h.Set("Content-Type", contentType)
	h.Set("Content-Length", strconv.Itoa(len(body)))
	h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(statusCode)

	if r != nil && r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write(body); err != nil && log != nil {
		log.Debug("Failed to write error response body", logger.LogFields{"error": err.Error(), "status_code": statusCode})
	}
}

// GenerateHTMLResponseBody creates a simple HTML error page. message is inserted verbatim.
func GenerateHTMLResponseBody(title, heading, message string) []byte {
	return []byte(fmt.Sprintf(`<html><head><title>%s</title></head><body><h1>%s</h1><p>%s</p></body></html>`,
		html.EscapeString(title), html.EscapeString(heading), message))
}
