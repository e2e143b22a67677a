// Settings and account HTTP handlers.
//
//   - GET    /settings/simulation-mode
//   - PUT    /settings/simulation-mode
//   - PUT    /account/x-credentials
//   - DELETE /account/x-credentials
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// SimulationModeResponse reports the effective simulation flag.
type SimulationModeResponse struct {
	SimulationMode bool `json:"simulation_mode"`
}

// SetSimulationModeRequest toggles the simulation flag.
type SetSimulationModeRequest struct {
	Enabled *bool `json:"enabled" binding:"required" example:"false"`
}

// SaveCredentialsRequest carries platform credentials obtained elsewhere.
type SaveCredentialsRequest struct {
	AccessToken string `json:"access_token" binding:"required,max=4096"`
	ClientID    string `json:"client_id" binding:"omitempty,max=128"`
	Handle      string `json:"handle" binding:"omitempty,max=64" example:"acme"`
}

// AccountResponse is the public view of an account; tokens are never echoed.
type AccountResponse struct {
	ID         string `json:"id"`
	Handle     string `json:"handle"`
	Configured bool   `json:"configured"`
}

// GetSimulationMode godoc
// @ID          getSimulationMode
// @Summary     Read simulation mode
// @Tags        Settings
// @Produce     json
// @Success     200  {object} handlers.SimulationModeResponse
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /settings/simulation-mode [get]
func (h *Handlers) GetSimulationMode(c *gin.Context) {
	on, err := h.settings.SimulationMode(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, SimulationModeResponse{SimulationMode: on})
}

// SetSimulationMode godoc
// @ID          setSimulationMode
// @Summary     Change simulation mode
// @Description When on, every publish is simulated regardless of credentials.
// @Tags        Settings
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.SetSimulationModeRequest  true  "New value"
// @Success     200  {object} handlers.SimulationModeResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /settings/simulation-mode [put]
func (h *Handlers) SetSimulationMode(c *gin.Context) {
	var req SetSimulationModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, bindMessage(err))
		return
	}
	if err := h.settings.SetSimulationMode(c.Request.Context(), *req.Enabled); err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, SimulationModeResponse{SimulationMode: *req.Enabled})
}

// SaveCredentials godoc
// @ID          saveCredentials
// @Summary     Store X credentials
// @Description Saves the access token used to publish for the current user.
// @Tags        Account
// @Accept      json
// @Produce     json
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       body       body    handlers.SaveCredentialsRequest  true  "Credentials"
// @Success     200  {object} handlers.AccountResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /account/x-credentials [put]
func (h *Handlers) SaveCredentials(c *gin.Context) {
	var req SaveCredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, bindMessage(err))
		return
	}
	a, err := h.accounts.SaveCredentials(c.Request.Context(), userID(c), req.Handle, req.AccessToken, req.ClientID)
	if err != nil {
		failService(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, AccountResponse{ID: a.ID, Handle: a.Handle, Configured: a.HasCredentials()})
}

// ClearCredentials godoc
// @ID          clearCredentials
// @Summary     Remove X credentials
// @Description Posts of the current user are simulated until new credentials are saved.
// @Tags        Account
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Success     204  {string} string "No Content"
// @Failure     404  {object} handlers.ErrorResponse "Account not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /account/x-credentials [delete]
func (h *Handlers) ClearCredentials(c *gin.Context) {
	if err := h.accounts.ClearCredentials(c.Request.Context(), userID(c)); err != nil {
		failService(c, err, ErrCodeInternal)
		return
	}
	noContent(c)
}
