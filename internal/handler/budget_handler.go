package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/docchat/internal/budget"
	"github.com/xxxsen/docchat/internal/pkg/response"
)

type BudgetHandler struct {
	ledger *budget.Ledger
}

func NewBudgetHandler(ledger *budget.Ledger) *BudgetHandler {
	return &BudgetHandler{ledger: ledger}
}

// Status reports the caller's spend against the user and global ceilings
// for the current period.
func (h *BudgetHandler) Status(c *gin.Context) {
	status, err := h.ledger.Status(c.Request.Context(), getUserID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, status)
}
