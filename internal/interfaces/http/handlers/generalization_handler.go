package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/MetaNet-Generalizer/internal/application/generalize"
	"github.com/turtacn/MetaNet-Generalizer/internal/domain/network"
	"github.com/turtacn/MetaNet-Generalizer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MetaNet-Generalizer/internal/infrastructure/search/opensearch"
)

// GeneralizationHandler serves the generalization runs and the species
// group search.
type GeneralizationHandler struct {
	svc         generalize.Service
	maxBodySize int64
	logger      logging.Logger
}

func NewGeneralizationHandler(svc generalize.Service, maxBodySize int64, logger logging.Logger) *GeneralizationHandler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &GeneralizationHandler{svc: svc, maxBodySize: maxBodySize, logger: logger}
}

// Create handles POST /api/v1/generalizations. The body is a network
// document; ?persist=false skips the run store and ?refresh=true bypasses
// the result cache.
func (h *GeneralizationHandler) Create(c *gin.Context) {
	persist, err := boolQuery(c, "persist", true)
	if err != nil {
		writeAppError(c, err)
		return
	}
	refresh, err := boolQuery(c, "refresh", false)
	if err != nil {
		writeAppError(c, err)
		return
	}

	body := c.Request.Body
	if h.maxBodySize > 0 {
		body = http.MaxBytesReader(c.Writer, body, h.maxBodySize)
	}
	net, err := network.Decode(body)
	if err != nil {
		writeAppError(c, err)
		return
	}

	out, err := h.svc.Generalize(c.Request.Context(), &generalize.GeneralizeInput{
		Network: net,
		Persist: persist,
		Refresh: refresh,
	})
	if err != nil {
		writeAppError(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

// List handles GET /api/v1/generalizations.
func (h *GeneralizationHandler) List(c *gin.Context) {
	limit, err := intQuery(c, "limit", 20)
	if err != nil {
		writeAppError(c, err)
		return
	}
	offset, err := intQuery(c, "offset", 0)
	if err != nil {
		writeAppError(c, err)
		return
	}

	page, err := h.svc.ListRuns(c.Request.Context(), &generalize.ListInput{
		NetworkID: c.Query("network_id"),
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		writeAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// Get handles GET /api/v1/generalizations/:id.
func (h *GeneralizationHandler) Get(c *gin.Context) {
	r, err := h.svc.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// SearchGroups handles GET /api/v1/species-groups.
func (h *GeneralizationHandler) SearchGroups(c *gin.Context) {
	from, err := intQuery(c, "from", 0)
	if err != nil {
		writeAppError(c, err)
		return
	}
	size, err := intQuery(c, "size", 0)
	if err != nil {
		writeAppError(c, err)
		return
	}

	res, err := h.svc.SearchGroups(c.Request.Context(), opensearch.SearchQuery{
		Text:      c.Query("q"),
		NetworkID: c.Query("network_id"),
		TermID:    c.Query("term_id"),
		From:      from,
		Size:      size,
	})
	if err != nil {
		writeAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
