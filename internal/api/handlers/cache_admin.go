package handlers

import (
	"net/http"

	"github.com/vrui-vr/networkviewer/internal/cache"
)

// CacheAdminHandler exposes the document cache for operators.
type CacheAdminHandler struct {
	cache cache.Cache
}

func NewCacheAdminHandler(c cache.Cache) *CacheAdminHandler {
	return &CacheAdminHandler{cache: c}
}

type cacheStatsResponse struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	KeysAdded uint64 `json:"keysAdded"`
	Evictions uint64 `json:"evictions"`
	SizeBytes int64  `json:"sizeBytes"`
	Items     int64  `json:"items"`
}

// InvalidateCache drops every cached document. The store stays
// authoritative, so the worst case is a burst of reads against it.
// POST /api/admin/cache/invalidate
func (h *CacheAdminHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	h.cache.Clear()
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "cache invalidated",
	})
}

// GetCacheStats reports hit/miss and size counters.
// GET /api/admin/cache/stats
func (h *CacheAdminHandler) GetCacheStats(w http.ResponseWriter, r *http.Request) {
	st := h.cache.Stats()
	writeJSON(w, http.StatusOK, cacheStatsResponse{
		Hits:      st.Hits,
		Misses:    st.Misses,
		KeysAdded: st.KeysAdded,
		Evictions: st.Evictions,
		SizeBytes: st.Size,
		Items:     st.Items,
	})
}
