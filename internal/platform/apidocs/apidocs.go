package apidocs

import (
	_ "embed"
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

//go:embed openapi.yaml
var spec []byte

const SpecPath = "/api-docs/openapi.yaml"

// Spec returns the embedded OpenAPI document.
func Spec() []byte { return spec }

// RegisterRoutes serves the document and a Swagger UI pointed at it.
func RegisterRoutes(r gin.IRoutes) {
	r.GET(SpecPath, func(c *gin.Context) {
		c.Data(http.StatusOK, "application/yaml", spec)
	})
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL(SpecPath)))
}
