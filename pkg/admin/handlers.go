package admin

import (
	"net/http"
	"strconv"

	"github.com/mockdeck/mockdeck/pkg/httputil"
	"github.com/mockdeck/mockdeck/pkg/logging"
	"github.com/mockdeck/mockdeck/pkg/requestlog"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	State   string `json:"state"`
	Mode    string `json:"mode"`
	Address string `json:"address,omitempty"`
	Uptime  int    `json:"uptime"`
}

// ExchangeListResponse is the body of GET /exchanges and GET /recordings.
type ExchangeListResponse struct {
	Exchanges []requestlog.NetworkExchange `json:"exchanges"`
	Count     int                          `json:"count"`
	Total     int                          `json:"total"`
}

// LogListResponse is the body of GET /logs.
type LogListResponse struct {
	Events []logging.LogEvent `json:"events"`
	Count  int                `json:"count"`
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		State:   a.src.State().String(),
		Mode:    string(a.src.Mode()),
		Address: a.src.URL(),
		Uptime:  a.Uptime(),
	})
}

func (a *API) handleListExchanges(w http.ResponseWriter, r *http.Request) {
	a.listExchanges(w, r, a.src.BufferedNetworkExchanges())
}

func (a *API) handleListRecordings(w http.ResponseWriter, r *http.Request) {
	a.listExchanges(w, r, a.src.BufferedRecordedExchanges())
}

func (a *API) listExchanges(w http.ResponseWriter, r *http.Request, all []requestlog.NetworkExchange) {
	filter, err := parseFilter(r)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid_filter", err)
		return
	}
	matched := filter.Apply(all)
	httputil.WriteJSON(w, http.StatusOK, ExchangeListResponse{
		Exchanges: matched,
		Count:     len(matched),
		Total:     len(all),
	})
}

func (a *API) handleListLogs(w http.ResponseWriter, r *http.Request) {
	events := a.src.BufferedLogEvents()
	if limit, ok := parsePositiveInt(r.URL.Query().Get("limit")); ok && limit < len(events) {
		events = events[len(events)-limit:]
	}
	httputil.WriteJSON(w, http.StatusOK, LogListResponse{Events: events, Count: len(events)})
}

func (a *API) handleClearExchanges(w http.ResponseWriter, _ *http.Request) {
	a.src.ClearBufferedNetworkExchanges()
	httputil.WriteNoContent(w)
}

func (a *API) handleClearRecordings(w http.ResponseWriter, _ *http.Request) {
	a.src.ClearBufferedRecordedExchanges()
	httputil.WriteNoContent(w)
}

func (a *API) handleClearLogs(w http.ResponseWriter, _ *http.Request) {
	a.src.ClearBufferedLogEvents()
	httputil.WriteNoContent(w)
}

// parsePositiveInt returns a parsed int only when the value is a valid positive integer.
func parsePositiveInt(v string) (int, bool) {
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
