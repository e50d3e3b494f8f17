// Package shared
package shared

import (
	"os"
	"regexp"
	"strings"

	"github.com/labstack/echo/v4"
)

func GetEnv(env, fallback string) string {
	if value, ok := os.LookupEnv(env); ok {
		return value
	}
	return fallback
}

func ExtractAPIKey(c echo.Context) (string, error) {
	// Check Authorization header
	auth := c.Request().Header.Get("Authorization")
	if auth == "" {
		return "", ErrMissingAuth
	}

	// Validate bearer format
	parts := strings.Split(auth, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return "", ErrInvalidFormat
	}

	apiKey := parts[1]

	// Validate key length
	if len(apiKey) != APIKeyLength {
		return "", ErrInvalidKeyLen
	}

	return apiKey, nil
}

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]`)

// DownloadFilename builds the attachment name for an emoji download from the
// first characters of its prompt
func DownloadFilename(prompt string) string {
	runes := []rune(prompt)
	if len(runes) > DownloadSlugMaxChar {
		runes = runes[:DownloadSlugMaxChar]
	}
	slug := nonSlugChars.ReplaceAllString(strings.ToLower(string(runes)), "-")
	return "emoji-" + slug + ArtifactExtension
}
