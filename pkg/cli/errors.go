package cli

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// APIError is a non-2xx response from the gateway
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("gateway returned %d", e.Status)
	}
	return fmt.Sprintf("gateway returned %d: %s", e.Status, e.Message)
}

// HTTPErrorMessages maps gateway status codes to human-readable messages
var HTTPErrorMessages = map[int]string{
	http.StatusBadRequest:          "Invalid tool - every field is required and the category must be known",
	http.StatusNotFound:            "Tool not found",
	http.StatusInternalServerError: "Internal server error",
	http.StatusServiceUnavailable:  "Service unavailable - the catalog backend may be down",
	http.StatusGatewayTimeout:      "Request timed out",
}

// HTTPErrorSuggestions provides helpful suggestions for specific status codes
var HTTPErrorSuggestions = map[int][]string{
	http.StatusBadRequest: {
		"Provide all of " + CodeStyle.Render("--name --url --description --category"),
		"List valid categories: " + CodeStyle.Render("toolctl categories"),
	},
	http.StatusNotFound: {
		"List tool ids: " + CodeStyle.Render("toolctl list"),
	},
	http.StatusServiceUnavailable: {
		"Check the gateway health: " + CodeStyle.Render("curl <gateway>/api/v1/health"),
	},
}

var connectionSuggestions = []string{
	"Check that the gateway is running",
	"Verify the gateway address: " + CodeStyle.Render("--gateway <addr>"),
	"Check your " + CodeStyle.Render("TOOLSHELF_GATEWAY") + " environment variable",
}

// FormatError converts an error to a human-readable message.
func FormatError(err error) string {
	if err == nil {
		return ""
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if msg, ok := HTTPErrorMessages[apiErr.Status]; ok {
			// Include the server message if it adds context
			if apiErr.Message != "" && !strings.Contains(strings.ToLower(msg), strings.ToLower(apiErr.Message)) {
				return fmt.Sprintf("%s (%s)", msg, apiErr.Message)
			}
			return msg
		}
		return apiErr.Error()
	}

	if isConnectionError(err) {
		return "Cannot connect to gateway"
	}

	return cleanErrorMessage(err.Error())
}

// GetErrorSuggestions returns helpful suggestions for an error
func GetErrorSuggestions(err error) []string {
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return HTTPErrorSuggestions[apiErr.Status]
	}
	if isConnectionError(err) {
		return connectionSuggestions
	}
	return nil
}

func isConnectionError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	return strings.Contains(err.Error(), "connection refused")
}

// cleanErrorMessage cleans up common error message patterns
func cleanErrorMessage(msg string) string {
	msg = strings.TrimPrefix(msg, "error: ")
	msg = strings.TrimPrefix(msg, "Error: ")

	// For deeply nested errors, just show the most relevant part
	if parts := strings.Split(msg, ": "); len(parts) > 3 {
		msg = parts[0] + ": " + parts[len(parts)-1]
	}

	return msg
}

// PrintFormattedError prints an error with styling and optional suggestions
func PrintFormattedError(title string, err error) {
	fmt.Println()
	PrintErrorMsg(title)

	if err != nil {
		fmt.Printf("  %s\n", DimStyle.Render(FormatError(err)))

		if suggestions := GetErrorSuggestions(err); len(suggestions) > 0 {
			PrintSuggestions("Suggestions:", suggestions)
		}
	}
	fmt.Println()
}
