package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/matlab-research/ontserve/internal/config"
	"github.com/matlab-research/ontserve/internal/models"
	"github.com/matlab-research/ontserve/internal/services"
	"github.com/matlab-research/ontserve/internal/utils"
	"gorm.io/gorm"
)

// ConceptHandler handles concept and workflow routes
type ConceptHandler struct {
	DB       *gorm.DB
	ReadDB   *gorm.DB
	Cfg      *config.Config
	Embedder services.Embedder
}

// SubmitConcept handles POST /api/concepts
// @Summary Submit a candidate concept
// @Description Validate, store and route one extracted concept
// @Tags Concepts
// @Accept json
// @Produce json
// @Param body body services.SubmitConceptInput true "Candidate concept"
// @Success 200 {object} services.SubmitResult
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 409 {object} utils.ErrorResponseStruct
// @Failure 500 {object} utils.ErrorResponseStruct
// @Router /concepts [post]
func (h *ConceptHandler) SubmitConcept(c *fiber.Ctx) error {
	var body services.SubmitConceptInput
	if err := c.BodyParser(&body); err != nil {
		return utils.ErrorResponse(c, "Invalid input", fiber.StatusBadRequest, "ontology.validation.input")
	}
	if body.Label == "" {
		return utils.ErrorResponse(c, "Label is required", fiber.StatusBadRequest, "ontology.validation.input")
	}
	body.SubmittedBy = actorFrom(c)

	result, err := services.SubmitCandidate(c.Context(), h.DB, h.Cfg, h.Embedder, body)
	if err != nil {
		return respondError(c, err, "submitConcept")
	}
	if result.Duplicate {
		return c.Status(fiber.StatusOK).JSON(result)
	}
	return c.Status(fiber.StatusCreated).JSON(result)
}

// ListConcepts handles GET /api/concepts
// @Summary List concepts
// @Description List concepts by domain and status with cursor pagination
// @Tags Concepts
// @Accept json
// @Produce json
// @Param domain query string false "Domain name"
// @Param status query string false "Concept status"
// @Param limit query int false "Page size"
// @Param cursor query string false "Opaque page cursor"
// @Success 200 {object} services.ConceptPage
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Failure 500 {object} utils.ErrorResponseStruct
// @Router /concepts [get]
func (h *ConceptHandler) ListConcepts(c *fiber.Ctx) error {
	status, ok := parseStatus(c)
	if !ok {
		return utils.ErrorResponse(c, "Unknown status", fiber.StatusBadRequest, "ontology.validation.status")
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	page, err := services.ListByStatus(c.Context(), h.ReadDB, c.Query("domain"), status, limit, c.Query("cursor"))
	if err != nil {
		return respondError(c, err, "listConcepts")
	}
	return c.Status(fiber.StatusOK).JSON(page)
}

// GetConcept handles GET /api/concepts/:uuid
// @Summary Get one concept
// @Tags Concepts
// @Accept json
// @Produce json
// @Param uuid path string true "Concept UUID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} utils.ErrorResponseStruct
// @Failure 500 {object} utils.ErrorResponseStruct
// @Router /concepts/{uuid} [get]
func (h *ConceptHandler) GetConcept(c *fiber.Ctx) error {
	concept, err := services.GetConcept(c.Context(), h.ReadDB, c.Params("uuid"))
	if err != nil {
		return respondError(c, err, "getConcept")
	}
	return c.Status(fiber.StatusOK).JSON(concept)
}

// GetConceptHistory handles GET /api/concepts/:uuid/history
// @Summary Get concept snapshots
// @Description List the immutable snapshots of a concept, oldest first
// @Tags Concepts
// @Accept json
// @Produce json
// @Param uuid path string true "Concept UUID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} utils.ErrorResponseStruct
// @Failure 500 {object} utils.ErrorResponseStruct
// @Router /concepts/{uuid}/history [get]
func (h *ConceptHandler) GetConceptHistory(c *fiber.Ctx) error {
	history, err := services.ConceptHistory(c.Context(), h.ReadDB, c.Params("uuid"))
	if err != nil {
		return respondError(c, err, "getConceptHistory")
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"history": history})
}

// GetSimilarConcepts handles GET /api/concepts/:uuid/similar
// @Summary Find similar approved concepts
// @Tags Concepts
// @Accept json
// @Produce json
// @Param uuid path string true "Concept UUID"
// @Param limit query int false "Max neighbors"
// @Param allDomains query bool false "Search across all domains"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} utils.ErrorResponseStruct
// @Failure 500 {object} utils.ErrorResponseStruct
// @Router /concepts/{uuid}/similar [get]
func (h *ConceptHandler) GetSimilarConcepts(c *fiber.Ctx) error {
	limit, _ := strconv.Atoi(c.Query("limit"))
	if limit <= 0 {
		limit = 10
	}
	allDomains := c.QueryBool("allDomains")

	neighbors, err := services.FindSimilar(c.Context(), h.ReadDB, c.Params("uuid"), limit, allDomains)
	if err != nil {
		return respondError(c, err, "getSimilarConcepts")
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"neighbors": neighbors})
}

// TransitionConcept handles POST /api/concepts/:uuid/transition
// @Summary Transition a concept
// @Description Move a concept through the approval state machine
// @Tags Concepts
// @Accept json
// @Produce json
// @Param uuid path string true "Concept UUID"
// @Param body body object true "Target status and reason"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 409 {object} utils.ErrorResponseStruct
// @Failure 422 {object} utils.ErrorResponseStruct
// @Failure 500 {object} utils.ErrorResponseStruct
// @Router /concepts/{uuid}/transition [post]
func (h *ConceptHandler) TransitionConcept(c *fiber.Ctx) error {
	var body struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	}
	if err := c.BodyParser(&body); err != nil {
		return utils.ErrorResponse(c, "Invalid input", fiber.StatusBadRequest, "ontology.validation.input")
	}

	status, ok := models.ParseConceptStatus(body.Status)
	if !ok {
		return utils.ErrorResponse(c, "Unknown status", fiber.StatusBadRequest, "ontology.validation.status")
	}

	concept, err := services.Transition(c.Context(), h.DB, h.Cfg, c.Params("uuid"), status, actorFrom(c), body.Reason)
	if err != nil {
		return respondError(c, err, "transitionConcept")
	}
	return c.Status(fiber.StatusOK).JSON(concept)
}

// ReopenConcept handles POST /api/concepts/:uuid/reopen
// @Summary Reopen a rejected or deprecated concept
// @Description Administrative reversal back to under_review; requires a justification
// @Tags Concepts
// @Accept json
// @Produce json
// @Param uuid path string true "Concept UUID"
// @Param body body object true "Justification"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} utils.ErrorResponseStruct
// @Failure 422 {object} utils.ErrorResponseStruct
// @Failure 500 {object} utils.ErrorResponseStruct
// @Router /concepts/{uuid}/reopen [post]
func (h *ConceptHandler) ReopenConcept(c *fiber.Ctx) error {
	var body struct {
		Reason string `json:"reason"`
	}
	if err := c.BodyParser(&body); err != nil {
		return utils.ErrorResponse(c, "Invalid input", fiber.StatusBadRequest, "ontology.validation.input")
	}

	concept, err := services.Reopen(c.Context(), h.DB, h.Cfg, c.Params("uuid"), actorFrom(c), body.Reason)
	if err != nil {
		return respondError(c, err, "reopenConcept")
	}
	return c.Status(fiber.StatusOK).JSON(concept)
}

// AssignConcept handles POST /api/concepts/:uuid/assign
// @Summary Assign a concept for review
// @Tags Concepts
// @Accept json
// @Produce json
// @Param uuid path string true "Concept UUID"
// @Param body body object true "Assignee and priority"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Failure 422 {object} utils.ErrorResponseStruct
// @Failure 500 {object} utils.ErrorResponseStruct
// @Router /concepts/{uuid}/assign [post]
func (h *ConceptHandler) AssignConcept(c *fiber.Ctx) error {
	var body struct {
		Assignee string `json:"assignee"`
		Priority int    `json:"priority"`
	}
	if err := c.BodyParser(&body); err != nil {
		return utils.ErrorResponse(c, "Invalid input", fiber.StatusBadRequest, "ontology.validation.input")
	}
	if body.Assignee == "" {
		return utils.ErrorResponse(c, "Assignee is required", fiber.StatusBadRequest, "ontology.validation.input")
	}

	workflow, err := services.AssignWorkflow(c.Context(), h.DB, h.Cfg, c.Params("uuid"), body.Assignee, body.Priority, actorFrom(c))
	if err != nil {
		return respondError(c, err, "assignConcept")
	}
	return c.Status(fiber.StatusOK).JSON(workflow)
}

// ListPendingWorkflows handles GET /api/workflows/pending
// @Summary List open review workflows
// @Tags Concepts
// @Accept json
// @Produce json
// @Param assignee query string false "Filter by assignee"
// @Param limit query int false "Page size"
// @Success 200 {object} map[string]interface{}
// @Failure 500 {object} utils.ErrorResponseStruct
// @Router /workflows/pending [get]
func (h *ConceptHandler) ListPendingWorkflows(c *fiber.Ctx) error {
	limit, _ := strconv.Atoi(c.Query("limit"))

	workflows, err := services.PendingWorkflows(c.Context(), h.ReadDB, c.Query("assignee"), limit)
	if err != nil {
		return respondError(c, err, "listPendingWorkflows")
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"workflows": workflows})
}

// GetConceptStats handles GET /api/concepts/stats
// @Summary Count concepts by status
// @Tags Concepts
// @Accept json
// @Produce json
// @Param domain query string false "Domain name"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} utils.ErrorResponseStruct
// @Failure 500 {object} utils.ErrorResponseStruct
// @Router /concepts/stats [get]
func (h *ConceptHandler) GetConceptStats(c *fiber.Ctx) error {
	stats, err := services.ConceptStats(c.Context(), h.ReadDB, c.Query("domain"))
	if err != nil {
		return respondError(c, err, "getConceptStats")
	}
	return c.Status(fiber.StatusOK).JSON(stats)
}

// GetConceptTriples handles GET /api/concepts/:uuid/triples
// @Summary List the materialized facts of a concept
// @Tags Triples
// @Accept json
// @Produce json
// @Param uuid path string true "Concept UUID"
// @Param includeSuperseded query bool false "Include superseded facts"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} utils.ErrorResponseStruct
// @Failure 500 {object} utils.ErrorResponseStruct
// @Router /concepts/{uuid}/triples [get]
func (h *ConceptHandler) GetConceptTriples(c *fiber.Ctx) error {
	concept, err := services.GetConcept(c.Context(), h.ReadDB, c.Params("uuid"))
	if err != nil {
		return respondError(c, err, "getConceptTriples")
	}

	triples, err := services.QueryTriplesByConcept(c.Context(), h.ReadDB, concept.ConceptID, c.QueryBool("includeSuperseded"))
	if err != nil {
		return respondError(c, err, "getConceptTriples")
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"triples": triples})
}

// QueryTriples handles GET /api/triples
// @Summary Query facts by subject URI
// @Tags Triples
// @Accept json
// @Produce json
// @Param subject query string true "Subject URI"
// @Param includeSuperseded query bool false "Include superseded facts"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 500 {object} utils.ErrorResponseStruct
// @Router /triples [get]
func (h *ConceptHandler) QueryTriples(c *fiber.Ctx) error {
	subject := c.Query("subject")
	if subject == "" {
		return utils.ErrorResponse(c, "Subject is required", fiber.StatusBadRequest, "ontology.validation.input")
	}

	triples, err := services.QueryTriplesBySubject(c.Context(), h.ReadDB, subject, c.QueryBool("includeSuperseded"))
	if err != nil {
		return respondError(c, err, "queryTriples")
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"triples": triples})
}

// SupersedeTriple handles POST /api/triples/:id/supersede
// @Summary Supersede one fact with a correction
// @Tags Triples
// @Accept json
// @Produce json
// @Param id path int true "Triple ID"
// @Param body body services.TripleInput true "Replacement fact"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} utils.ErrorResponseStruct
// @Failure 404 {object} utils.ErrorResponseStruct
// @Failure 409 {object} utils.ErrorResponseStruct
// @Failure 500 {object} utils.ErrorResponseStruct
// @Router /triples/{id}/supersede [post]
func (h *ConceptHandler) SupersedeTriple(c *fiber.Ctx) error {
	tripleID, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil {
		return utils.ErrorResponse(c, "Invalid triple id", fiber.StatusBadRequest, "ontology.validation.input")
	}

	var body services.TripleInput
	if err := c.BodyParser(&body); err != nil {
		return utils.ErrorResponse(c, "Invalid input", fiber.StatusBadRequest, "ontology.validation.input")
	}

	triple, err := services.SupersedeTriple(c.Context(), h.DB, h.Cfg, tripleID, body, actorFrom(c))
	if err != nil {
		return respondError(c, err, "supersedeTriple")
	}
	return c.Status(fiber.StatusOK).JSON(triple)
}
