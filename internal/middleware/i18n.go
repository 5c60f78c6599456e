// internal/middleware/i18n.go
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

func I18nMiddleware(defaultLang string) gin.HandlerFunc {
	return func(c *gin.Context) {
		lang := defaultLang

		// Handle cases like "cy-GB,cy;q=0.9,en;q=0.8"
		if header := c.GetHeader("Accept-Language"); header != "" {
			first := strings.TrimSpace(strings.Split(strings.Split(header, ",")[0], ";")[0])
			switch strings.ToLower(first) {
			case "cy", "cy-gb":
				lang = "cy"
			case "en", "en-gb", "en-us":
				lang = "en"
			}
		}

		c.Set("lang", lang)
		c.Next()
	}
}
