package handlers

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/matlab-research/ontserve/internal/services"
	"github.com/matlab-research/ontserve/internal/utils"
	"gorm.io/gorm"
)

// AuditHandler handles audit log routes
type AuditHandler struct {
	ReadDB *gorm.DB
}

// QueryAudit handles GET /api/audit
// @Summary Query the audit log
// @Description List audit entries by entity, record, action, actor and time range
// @Tags Audit
// @Accept json
// @Produce json
// @Param entity query string false "Entity name"
// @Param record query string false "Record ID"
// @Param action query string false "Action"
// @Param actor query string false "Actor"
// @Param since query string false "RFC3339 lower bound"
// @Param until query string false "RFC3339 upper bound"
// @Param limit query int false "Page size"
// @Param offset query int false "Page offset"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 500 {object} utils.ErrorResponseStruct
// @Router /audit [get]
func (h *AuditHandler) QueryAudit(c *fiber.Ctx) error {
	filter := services.AuditFilter{
		EntityName: c.Query("entity"),
		RecordID:   c.Query("record"),
		Action:     c.Query("action"),
		Actor:      c.Query("actor"),
	}

	if raw := c.Query("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return utils.ErrorResponse(c, "Invalid since timestamp", fiber.StatusBadRequest, "ontology.validation.input")
		}
		filter.Since = &t
	}
	if raw := c.Query("until"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return utils.ErrorResponse(c, "Invalid until timestamp", fiber.StatusBadRequest, "ontology.validation.input")
		}
		filter.Until = &t
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))

	entries, err := services.QueryAudit(c.Context(), h.ReadDB, filter, limit, offset)
	if err != nil {
		return respondError(c, err, "queryAudit")
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"entries": entries})
}
