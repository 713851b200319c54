package server

import (
	"strconv"

	"github.com/gofiber/fiber/v3"
	"github.com/sicko7947/flowstate"
)

func (s *Server) handleHealth(c fiber.Ctx) error {
	resp := HealthResponse{
		Status:     "healthy",
		Connection: s.manager.Status().String(),
		Backend:    s.manager.BackendName(),
	}

	if !s.manager.IsConnected() {
		resp.Status = "unhealthy"
		return c.Status(fiber.StatusServiceUnavailable).JSON(resp)
	}
	return c.JSON(resp)
}

func (s *Server) handleCreateExecution(c fiber.Ctx) error {
	var req CreateExecutionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := s.validate.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	var opts []flowstate.CreateOption
	if req.UserID != "" {
		opts = append(opts, flowstate.WithUserID(req.UserID))
	}

	id, err := s.manager.CreateExecution(c.Context(), req.WorkflowID, req.WorkflowName, req.Input, opts...)
	if err != nil {
		return s.handleError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(CreateExecutionResponse{ExecutionID: id})
}

func (s *Server) handleGetExecution(c fiber.Ctx) error {
	id := c.Params("id")

	record, err := s.manager.GetExecutionStatus(c.Context(), id)
	if err != nil {
		return s.handleError(c, err)
	}
	if record == nil {
		return notFound(c, "Execution not found")
	}

	return c.JSON(record)
}

func (s *Server) handleGetActive(c fiber.Ctx) error {
	records, err := s.manager.GetActiveExecutions(c.Context())
	if err != nil {
		return s.handleError(c, err)
	}

	return c.JSON(newExecutionList(records))
}

func (s *Server) handleGetWorkflowExecutions(c fiber.Ctx) error {
	limit := 0
	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 0 {
			return badRequest(c, "limit must be a non-negative integer")
		}
		limit = parsed
	}

	records, err := s.manager.GetWorkflowExecutions(c.Context(), c.Params("workflowId"), limit)
	if err != nil {
		return s.handleError(c, err)
	}

	return c.JSON(newExecutionList(records))
}

func (s *Server) handleUpdateState(c fiber.Ctx) error {
	var req UpdateStateRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := s.validate.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	state, err := flowstate.ParseExecutionState(req.State)
	if err != nil {
		return badRequest(c, err.Error())
	}

	var opts []flowstate.UpdateOption
	if req.CurrentVertex != nil {
		opts = append(opts, flowstate.WithCurrentVertex(*req.CurrentVertex))
	}
	if req.Progress != nil {
		opts = append(opts, flowstate.WithProgress(*req.Progress))
	}

	id := c.Params("id")
	if err := s.manager.UpdateExecutionState(c.Context(), id, state, opts...); err != nil {
		return s.handleError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleUpdateVertex(c fiber.Ctx) error {
	var req UpdateVertexRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := s.validate.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	state, err := flowstate.ParseVertexState(req.State)
	if err != nil {
		return badRequest(c, err.Error())
	}

	id := c.Params("id")
	if err := s.manager.UpdateVertexState(c.Context(), id, c.Params("vertexId"), state, req.Output); err != nil {
		return s.handleError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleSetOutput(c fiber.Ctx) error {
	var req SetOutputRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := s.validate.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	if err := s.manager.SetExecutionOutput(c.Context(), c.Params("id"), req.Output); err != nil {
		return s.handleError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleSetError(c fiber.Ctx) error {
	var req SetErrorRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := s.validate.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	if err := s.manager.SetExecutionError(c.Context(), c.Params("id"), req.Message); err != nil {
		return s.handleError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleCancel(c fiber.Ctx) error {
	id := c.Params("id")

	cancelled, err := s.manager.CancelExecution(c.Context(), id)
	if err != nil {
		return s.handleError(c, err)
	}

	return c.JSON(CancelResponse{ExecutionID: id, Cancelled: cancelled})
}
