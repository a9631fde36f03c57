// common.go
//
// Ontology version and concept approval data service
// Copyright (c) 2026 MatLab Research
//
// This file is part of ontserve.
// ontserve is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published by the Free Software
// Foundation, either version 3 of the License, or (at your option) any later version.
// ontserve is distributed in the hope that it will be useful, but WITHOUT ANY WARRANTY;
// without even the implied warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
// See the GNU Affero General Public License for more details.
// You should have received a copy of the GNU Affero General Public License along with ontserve.
// If not, see <https://www.gnu.org/licenses/>.

package handlers

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/matlab-research/ontserve/internal/models"
	"github.com/matlab-research/ontserve/internal/types"
	"github.com/matlab-research/ontserve/internal/utils"
)

// respondError maps service sentinel errors to HTTP responses.
func respondError(c *fiber.Ctx, err error, errorType string) error {
	switch {
	case errors.Is(err, types.ErrConflict):
		return utils.ConflictResponse(c)
	case errors.Is(err, types.ErrNotFound):
		return utils.NotFoundResponse(c, err.Error())
	case errors.Is(err, types.ErrInvalidTransition):
		return utils.ErrorResponse(c, err.Error(), fiber.StatusUnprocessableEntity, errorType)
	case errors.Is(err, types.ErrInvalidType),
		errors.Is(err, types.ErrInvalidConfidence),
		errors.Is(err, types.ErrDimensionMismatch):
		return utils.ErrorResponse(c, err.Error(), fiber.StatusBadRequest, errorType)
	case errors.Is(err, types.ErrParse):
		return utils.ErrorResponse(c, err.Error(), fiber.StatusBadGateway, errorType)
	}
	return utils.ErrorResponse(c, err.Error(), fiber.StatusInternalServerError, errorType)
}

// actorFrom extracts a stable identity for the authenticated user set by
// the auth middleware. Email is preferred, then the user id.
func actorFrom(c *fiber.Ctx) string {
	user := c.Locals("user")
	if user == nil {
		return "anonymous"
	}

	b, err := json.Marshal(user)
	if err != nil {
		return "anonymous"
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		return "anonymous"
	}
	if email, ok := m["email"].(string); ok && email != "" {
		return email
	}
	if id, ok := m["id"].(string); ok && id != "" {
		return id
	}
	return "anonymous"
}

// parseStatus validates an optional status query parameter.
func parseStatus(c *fiber.Ctx) (models.ConceptStatus, bool) {
	raw := strings.TrimSpace(c.Query("status"))
	if raw == "" {
		return "", true
	}
	return models.ParseConceptStatus(raw)
}
