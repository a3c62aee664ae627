package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"droidagent/models"
	"droidagent/service"
)

// GetDevices returns all known devices
func GetDevices(c *gin.Context, dm *service.DeviceManager) {
	c.JSON(http.StatusOK, models.SuccessResponse(dm.GetAllDevices()))
}

// ScanDevices refreshes the device list via adb and returns it
func ScanDevices(c *gin.Context, dm *service.DeviceManager) {
	if err := dm.ScanDevices(); err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, models.SuccessResponse(dm.GetAllDevices()))
}

// StartSession boots the agent session for a device
func StartSession(c *gin.Context, sm *service.SessionManager) {
	deviceID := c.Param("device_id")
	if err := sm.StartSession(deviceID); err != nil {
		c.JSON(statusFor(err), models.ErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, models.SuccessResponse(sm.Status(deviceID)))
}

// StopSession tears the agent session down
func StopSession(c *gin.Context, sm *service.SessionManager) {
	deviceID := c.Param("device_id")
	if err := sm.StopSession(deviceID); err != nil {
		c.JSON(statusFor(err), models.ErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, models.SuccessResponse(sm.Status(deviceID)))
}

// GetSession reports the session state for a device
func GetSession(c *gin.Context, sm *service.SessionManager) {
	c.JSON(http.StatusOK, models.SuccessResponse(sm.Status(c.Param("device_id"))))
}

// ExecuteStep runs one line of model output against a device
func ExecuteStep(c *gin.Context, sm *service.SessionManager) {
	var req models.StepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponsef("invalid step request: %v", err))
		return
	}

	record, result, err := sm.ExecuteStep(c.Param("device_id"), req.Text)
	if err != nil {
		c.JSON(statusFor(err), models.ErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, models.SuccessResponse(gin.H{
		"step":   record,
		"result": result,
	}))
}

// GetScreenshot captures the device screen. The source query parameter
// picks the tier: auto (default), remote, stream, or device.
func GetScreenshot(c *gin.Context, sm *service.SessionManager) {
	data, contentType, err := sm.CaptureScreen(c.Param("device_id"), c.Query("source"))
	if err != nil {
		c.JSON(statusFor(err), models.ErrorResponse(err.Error()))
		return
	}
	c.Data(http.StatusOK, contentType, data)
}

// PostConfirm answers a pending sensitive-step confirmation
func PostConfirm(c *gin.Context, sm *service.SessionManager) {
	var req models.ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponsef("invalid confirm request: %v", err))
		return
	}
	if err := sm.ResolveConfirmation(c.Param("device_id"), req.ID, req.Approve); err != nil {
		c.JSON(statusFor(err), models.ErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, models.MessageResponse("confirmation resolved"))
}

// PostCancel flags the in-flight step for cancellation
func PostCancel(c *gin.Context, sm *service.SessionManager) {
	if err := sm.RequestCancel(c.Param("device_id")); err != nil {
		c.JSON(statusFor(err), models.ErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, models.MessageResponse("cancel requested"))
}

// PostTouch forwards one raw touch event to the virtual display
func PostTouch(c *gin.Context, sm *service.SessionManager) {
	var req models.TouchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponsef("invalid touch request: %v", err))
		return
	}
	if err := sm.Touch(c.Param("device_id"), req.Phase, req.X, req.Y); err != nil {
		c.JSON(statusFor(err), models.ErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, models.MessageResponse("touch delivered"))
}

// GetSteps returns recent step history for a device
func GetSteps(c *gin.Context, store *service.StepStore) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	steps, err := store.RecentSteps(c.Param("device_id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, models.SuccessResponse(steps))
}

// statusFor maps manager errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrNoSession), errors.Is(err, service.ErrDeviceNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
