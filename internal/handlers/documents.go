package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/matlab-research/ontserve/internal/config"
	"github.com/matlab-research/ontserve/internal/services"
	"github.com/matlab-research/ontserve/internal/utils"
	"gorm.io/gorm"
)

// DocumentHandler handles ontology document and version routes
type DocumentHandler struct {
	DB     *gorm.DB
	ReadDB *gorm.DB
	Cfg    *config.Config
	Parser services.OntologyParser
}

// ListDocuments handles GET /api/ontology/documents
// @Summary List ontology documents
// @Description List documents, optionally filtered by domain
// @Tags Documents
// @Accept json
// @Produce json
// @Param domain query string false "Domain name"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} utils.ErrorResponseStruct
// @Failure 500 {object} utils.ErrorResponseStruct
// @Router /ontology/documents [get]
func (h *DocumentHandler) ListDocuments(c *fiber.Ctx) error {
	docs, err := services.ListDocuments(c.Context(), h.ReadDB, c.Query("domain"))
	if err != nil {
		return respondError(c, err, "listDocuments")
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"documents": docs})
}

// SaveVersion handles POST /api/ontology/:domain/:document/versions
// @Summary Save a new document version
// @Description Append a new version of an ontology document; identical content is a no-op
// @Tags Documents
// @Accept json
// @Produce json
// @Param domain path string true "Domain name"
// @Param document path string true "Document name"
// @Param body body services.SaveVersionInput true "Version content"
// @Success 200 {object} services.SaveVersionResult
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 409 {object} utils.ErrorResponseStruct
// @Failure 500 {object} utils.ErrorResponseStruct
// @Router /ontology/{domain}/{document}/versions [post]
func (h *DocumentHandler) SaveVersion(c *fiber.Ctx) error {
	ref := services.DocumentRef{
		Domain: c.Params("domain"),
		Name:   c.Params("document"),
	}

	var body services.SaveVersionInput
	if err := c.BodyParser(&body); err != nil {
		return utils.ErrorResponse(c, "Invalid input", fiber.StatusBadRequest, "ontology.validation.input")
	}
	if body.Content == "" {
		return utils.ErrorResponse(c, "Content is required", fiber.StatusBadRequest, "ontology.validation.input")
	}
	if body.Author == "" {
		body.Author = actorFrom(c)
	}

	result, err := services.SaveVersion(c.Context(), h.DB, h.Cfg, h.Parser, ref, body)
	if err != nil {
		return respondError(c, err, "saveVersion")
	}
	return c.Status(fiber.StatusOK).JSON(result)
}

// GetVersion handles GET /api/ontology/:domain/:document/versions/:selector
// @Summary Get one document version
// @Description Get a version by number, or the current one with selector "current"
// @Tags Documents
// @Accept json
// @Produce json
// @Param domain path string true "Domain name"
// @Param document path string true "Document name"
// @Param selector path string true "Version number or 'current'"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} utils.ErrorResponseStruct
// @Failure 500 {object} utils.ErrorResponseStruct
// @Router /ontology/{domain}/{document}/versions/{selector} [get]
func (h *DocumentHandler) GetVersion(c *fiber.Ctx) error {
	ref := services.DocumentRef{
		Domain: c.Params("domain"),
		Name:   c.Params("document"),
	}

	version, err := services.GetVersion(c.Context(), h.ReadDB, ref, c.Params("selector"))
	if err != nil {
		return respondError(c, err, "getVersion")
	}
	return c.Status(fiber.StatusOK).JSON(version)
}

// ListVersions handles GET /api/ontology/:domain/:document/versions
// @Summary List document versions
// @Description List version summaries for a document, oldest first
// @Tags Documents
// @Accept json
// @Produce json
// @Param domain path string true "Domain name"
// @Param document path string true "Document name"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} utils.ErrorResponseStruct
// @Failure 500 {object} utils.ErrorResponseStruct
// @Router /ontology/{domain}/{document}/versions [get]
func (h *DocumentHandler) ListVersions(c *fiber.Ctx) error {
	ref := services.DocumentRef{
		Domain: c.Params("domain"),
		Name:   c.Params("document"),
	}

	versions, err := services.ListVersions(c.Context(), h.ReadDB, ref)
	if err != nil {
		return respondError(c, err, "listVersions")
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"versions": versions})
}
