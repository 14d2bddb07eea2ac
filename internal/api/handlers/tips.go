package handlers

import (
	"math/rand/v2"
	"net/http"
	"strconv"

	"github.com/soillink/soillink/internal/apierr"
	"github.com/soillink/soillink/internal/cache"
	"github.com/soillink/soillink/internal/soil"
)

const tipsEndpoint = "tips"

type tipsResponse struct {
	Tips  []string `json:"tips"`
	Count int      `json:"count"`
}

// TipsHandler serves random soil care tips.
type TipsHandler struct {
	cache *cache.Manager
	rand  *Rand
}

func NewTipsHandler(c *cache.Manager, rnd *Rand) *TipsHandler {
	return &TipsHandler{cache: c, rand: rnd}
}

// Get returns ?count=n unique tips (default 3). Responses are cached per
// count, so repeated calls inside the cache window return the same tips.
// GET /api/tips
func (h *TipsHandler) Get(w http.ResponseWriter, r *http.Request) {
	count := soil.DefaultTipCount
	if raw := r.URL.Query().Get("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			apierr.WriteErrorWithContext(w, r, apierr.ValidationInvalidValue("count", "count must be a positive integer"))
			return
		}
		count = min(n, len(soil.Tips()))
	}

	params := map[string]int{"count": count}
	if cached, ok := h.cache.GetAPIResponse(tipsEndpoint, params); ok {
		w.Header().Set("X-Cache", "HIT")
		writeJSON(w, http.StatusOK, cached)
		return
	}

	var tips []string
	h.rand.With(func(rng *rand.Rand) { tips = soil.RandomTips(rng, count) })
	resp := tipsResponse{Tips: tips, Count: len(tips)}
	h.cache.SetAPIResponse(tipsEndpoint, params, resp, 0)
	w.Header().Set("X-Cache", "MISS")
	writeJSON(w, http.StatusOK, resp)
}
