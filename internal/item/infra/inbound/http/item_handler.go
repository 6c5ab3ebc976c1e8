package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/davicafu/eventlab/internal/item/application"
	"github.com/davicafu/eventlab/internal/item/domain"
	sharedDomain "github.com/davicafu/eventlab/internal/shared/domain"
	sharedUtils "github.com/davicafu/eventlab/internal/shared/infra/utils"
	"github.com/davicafu/eventlab/pkg/utils"
)

// Header con el token de versión esperado en las lecturas.
const ExpectedVersionHeader = "X-Expected-Version"

// ItemHandler encapsula los endpoints HTTP relacionados con Item.
type ItemHandler struct {
	commands   *application.CommandService
	queries    *application.QueryService
	retryAfter time.Duration // hint fijo del servidor, nunca del cliente
}

// NewItemHandler crea un nuevo ItemHandler.
func NewItemHandler(commands *application.CommandService, queries *application.QueryService, retryAfter time.Duration) *ItemHandler {
	return &ItemHandler{
		commands:   commands,
		queries:    queries,
		retryAfter: retryAfter,
	}
}

// commandAck es la respuesta de todo comando aceptado: el id y el token
// opaco que el cliente puede mandar como X-Expected-Version para leer su
// propia escritura.
type commandAck struct {
	ItemID       string `json:"item_id"`
	VersionToken string `json:"version_token"`
}

// itemView es la fila proyectada tal y como se expone por HTTP. La versión
// viaja como token opaco, nunca como número crudo.
type itemView struct {
	ItemID         string    `json:"item_id"`
	State          string    `json:"state"`
	Price          float64   `json:"price"`
	VersionToken   string    `json:"version_token"`
	LastModifiedAt time.Time `json:"last_modified_at"`
}

// ---------------- Comandos ----------------

// InitializeItem endpoint POST /items
func (h *ItemHandler) InitializeItem(c *gin.Context) {
	at, ok := h.bindOccurredAt(c)
	if !ok {
		return
	}

	id, version, err := h.commands.InitializeItem(c.Request.Context(), at)
	if err != nil {
		h.sendCommandError(c, err)
		return
	}

	c.JSON(http.StatusCreated, commandAck{
		ItemID:       id.String(),
		VersionToken: sharedUtils.EncodeVersionToken(version),
	})
}

// BuyItem endpoint POST /items/:id/buy
func (h *ItemHandler) BuyItem(c *gin.Context) {
	id, ok := h.bindItemID(c)
	if !ok {
		return
	}

	var req struct {
		Price      float64 `json:"price" binding:"required,gt=0"`
		OccurredAt *string `json:"occurred_at,omitempty"` // RFC3339
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendBadRequest(c, err.Error())
		return
	}

	at, ok := h.parseOccurredAt(c, req.OccurredAt)
	if !ok {
		return
	}

	version, err := h.commands.BuyItem(c.Request.Context(), id, req.Price, at)
	if err != nil {
		h.sendCommandError(c, err)
		return
	}

	c.JSON(http.StatusOK, commandAck{
		ItemID:       id.String(),
		VersionToken: sharedUtils.EncodeVersionToken(version),
	})
}

// PayItem endpoint POST /items/:id/pay
func (h *ItemHandler) PayItem(c *gin.Context) {
	h.simpleCommand(c, h.commands.PayItem)
}

// MarkPaymentMissing endpoint POST /items/:id/payment-missing
func (h *ItemHandler) MarkPaymentMissing(c *gin.Context) {
	h.simpleCommand(c, h.commands.MarkPaymentMissing)
}

func (h *ItemHandler) simpleCommand(c *gin.Context, cmd func(ctx context.Context, id uuid.UUID, at time.Time) (uint64, error)) {
	id, ok := h.bindItemID(c)
	if !ok {
		return
	}

	at, ok := h.bindOccurredAt(c)
	if !ok {
		return
	}

	version, err := cmd(c.Request.Context(), id, at)
	if err != nil {
		h.sendCommandError(c, err)
		return
	}

	c.JSON(http.StatusOK, commandAck{
		ItemID:       id.String(),
		VersionToken: sharedUtils.EncodeVersionToken(version),
	})
}

// ---------------- Lecturas ----------------

// GetItem endpoint GET /items/:id
// Con X-Expected-Version presente, una proyección rezagada contesta 503 con
// Retry-After fijo: el servidor nunca espera en el sitio ni acepta un
// retardo elegido por el cliente.
func (h *ItemHandler) GetItem(c *gin.Context) {
	id, ok := h.bindItemID(c)
	if !ok {
		return
	}

	var expected *uint64
	if token := c.GetHeader(ExpectedVersionHeader); token != "" {
		v, err := sharedUtils.DecodeVersionToken(token)
		if err != nil {
			utils.SendBadRequest(c, "invalid expected version token")
			return
		}
		expected = &v
	}

	row, err := h.queries.GetItem(c.Request.Context(), id, expected)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotYetConsistent):
			c.Header("Retry-After", fmt.Sprintf("%d", int(h.retryAfter.Seconds())))
			utils.SendError(c, http.StatusServiceUnavailable, "requested version not yet projected, retry later")
		case errors.Is(err, domain.ErrItemNotFound):
			utils.SendNotFound(c, "item not found")
		default:
			utils.SendInternalServerError(c, err.Error())
		}
		return
	}

	c.Header("Last-Modified", row.LastModifiedAt.UTC().Format(http.TimeFormat))
	c.JSON(http.StatusOK, itemView{
		ItemID:         row.ItemID.String(),
		State:          string(row.State),
		Price:          row.Price,
		VersionToken:   sharedUtils.EncodeVersionToken(row.Version),
		LastModifiedAt: row.LastModifiedAt,
	})
}

// GetItemHistory endpoint GET /items/:id/history?as_of=<RFC3339>
// Reconstruye el estado del item en un instante pasado.
func (h *ItemHandler) GetItemHistory(c *gin.Context) {
	id, ok := h.bindItemID(c)
	if !ok {
		return
	}

	asOf := time.Now().UTC()
	if asOfStr := c.Query("as_of"); asOfStr != "" {
		parsed, err := time.Parse(time.RFC3339, asOfStr)
		if err != nil {
			utils.SendBadRequest(c, "invalid as_of, use RFC3339")
			return
		}
		asOf = parsed
	}

	item, records, err := h.queries.ItemAsOf(c.Request.Context(), id, asOf)
	if err != nil {
		if errors.Is(err, domain.ErrItemNotFound) {
			utils.SendNotFound(c, "item not found as of that instant")
			return
		}
		utils.SendInternalServerError(c, err.Error())
		return
	}

	type historyEntry struct {
		Sequence   uint64    `json:"sequence"`
		Kind       string    `json:"kind"`
		OccurredAt time.Time `json:"occurred_at"`
	}
	history := make([]historyEntry, 0, len(records))
	for _, rec := range records {
		history = append(history, historyEntry{
			Sequence:   rec.Sequence,
			Kind:       rec.Kind,
			OccurredAt: rec.OccurredAt,
		})
	}

	utils.SendSuccess(c, http.StatusOK, gin.H{
		"item_id": item.ID.String(),
		"state":   string(item.State),
		"as_of":   asOf,
		"history": history,
	})
}

// ---------------- Helpers ----------------

func (h *ItemHandler) bindItemID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.SendBadRequest(c, "invalid item id")
		return uuid.Nil, false
	}
	return id, true
}

// bindOccurredAt lee el occurred_at opcional del body. Es tiempo de negocio:
// si el cliente no lo manda, el comando ocurre "ahora".
func (h *ItemHandler) bindOccurredAt(c *gin.Context) (time.Time, bool) {
	var req struct {
		OccurredAt *string `json:"occurred_at,omitempty"` // RFC3339
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.SendBadRequest(c, err.Error())
			return time.Time{}, false
		}
	}
	return h.parseOccurredAt(c, req.OccurredAt)
}

func (h *ItemHandler) parseOccurredAt(c *gin.Context, raw *string) (time.Time, bool) {
	if raw == nil {
		return time.Now().UTC(), true
	}
	at, err := time.Parse(time.RFC3339, *raw)
	if err != nil {
		utils.SendBadRequest(c, "invalid occurred_at format, use RFC3339")
		return time.Time{}, false
	}
	return at.UTC(), true
}

func (h *ItemHandler) sendCommandError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidStateTransition):
		utils.SendUnprocessable(c, err.Error())
	case errors.Is(err, domain.ErrItemNotFound):
		utils.SendNotFound(c, "item not found")
	case errors.Is(err, sharedDomain.ErrConcurrencyConflict):
		// el llamante debe recargar y reintentar el comando
		utils.SendConflict(c, err.Error())
	default:
		utils.SendInternalServerError(c, err.Error())
	}
}
