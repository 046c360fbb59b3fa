package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/meddb/internal/jobs"
	"github.com/localnerve/meddb/internal/models"
	"github.com/localnerve/meddb/internal/reconcile"
	"gorm.io/gorm"
)

// ReconcileHandler exposes the reconciliation run log and manual triggering
type ReconcileHandler struct {
	DB     *gorm.DB
	Engine jobs.Reconciler
	// Background starts a run without waiting for it, normally jobs.Scheduler.ReconcileAsync.
	// It returns reconcile.ErrAlreadyRunning when a run is in progress.
	Background func(trigger string) error
}

// StartedResponse is returned when a run was started in the background
type StartedResponse struct {
	Message string `json:"message"`
	Ok      bool   `json:"ok"`
	Trigger string `json:"trigger"`
}

// GetRuns handles GET /api/reconciliation/runs
// @Summary List reconciliation runs
// @Description Most recent first
// @Tags Reconciliation
// @Produce json
// @Param limit query int false "Maximum number of runs" default(20)
// @Success 200 {array} models.ReconciliationRun
// @Router /reconciliation/runs [get]
func (h *ReconcileHandler) GetRuns(c *fiber.Ctx) error {
	runs, err := reconcile.ListRuns(h.DB, c.QueryInt("limit", 20))
	if err != nil {
		return respondError(c, err, "getReconciliationRuns")
	}
	if runs == nil {
		runs = []models.ReconciliationRun{}
	}
	return c.Status(fiber.StatusOK).JSON(runs)
}

// StartRun handles POST /api/reconciliation/runs
// @Summary Start a reconciliation run
// @Description Starts a run in the background. With wait=true the run completes before the response.
// @Tags Reconciliation
// @Produce json
// @Param wait query bool false "Wait for the run to finish"
// @Success 200 {object} models.ReconciliationRun
// @Success 202 {object} StartedResponse
// @Failure 409 {object} utils.ErrorResponseStruct
// @Security CookieAuth
// @Router /reconciliation/runs [post]
func (h *ReconcileHandler) StartRun(c *fiber.Ctx) error {
	if !c.QueryBool("wait", false) && h.Background != nil {
		if err := h.Background(reconcile.TriggerManual); err != nil {
			return respondError(c, err, "startReconciliationRun")
		}
		return c.Status(fiber.StatusAccepted).JSON(StartedResponse{
			Message: "Reconciliation started",
			Ok:      true,
			Trigger: reconcile.TriggerManual,
		})
	}

	run, err := h.Engine.Run(c.UserContext(), reconcile.TriggerManual)
	if err != nil {
		return respondError(c, err, "startReconciliationRun")
	}
	return c.Status(fiber.StatusOK).JSON(run)
}
