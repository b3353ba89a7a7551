package restserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/chrissnell/designflood/internal/atlas"
	"github.com/chrissnell/designflood/internal/cache"
	"github.com/chrissnell/designflood/internal/constants"
	"github.com/chrissnell/designflood/internal/pipeline"
	"github.com/chrissnell/designflood/pkg/frequency"
	"github.com/chrissnell/designflood/pkg/hydroerr"
	"github.com/chrissnell/designflood/pkg/responseformat"
)

// maxBodyBytes bounds request bodies; a long flood record is a few KB.
const maxBodyBytes = 1 << 20

// Handlers contains all HTTP handlers for the REST server
type Handlers struct {
	controller *Controller
	formatter  *responseformat.Formatter
}

// NewHandlers creates a new handlers instance
func NewHandlers(ctrl *Controller) *Handlers {
	return &Handlers{
		controller: ctrl,
		formatter:  responseformat.NewFormatter(ctrl.serverConfig.EnableCORS),
	}
}

// GetHealth reports liveness and the loaded dataset
func (h *Handlers) GetHealth(w http.ResponseWriter, req *http.Request) {
	ds := h.controller.pipeline.Dataset()
	h.formatter.WriteResponse(w, req, http.StatusOK, map[string]any{
		"status":      "ok",
		"version":     constants.Version,
		"dataset":     ds.Name(),
		"fingerprint": ds.Fingerprint(),
		"regions":     len(ds.Regions()),
	}, nil)
}

// PostDesignFlood computes a design flood hydrograph
func (h *Handlers) PostDesignFlood(w http.ResponseWriter, req *http.Request) {
	runID := runIDFrom(req)

	var body DesignFloodRequest
	if err := decodeBody(req, &body); err != nil {
		h.writeError(w, req, runID, err)
		return
	}
	preq, err := body.toPipeline()
	if err != nil {
		h.writeError(w, req, runID, err)
		return
	}

	key, cached := h.lookupDesignFlood(req.Context(), body)
	if cached != nil {
		cached.RunID = runID
		h.formatter.WriteResponse(w, req, http.StatusOK, cached, map[string]string{
			runIDHeader: runID,
			cacheHeader: "hit",
		})
		return
	}

	ctx, cancel := context.WithTimeout(req.Context(), h.controller.timeout)
	defer cancel()

	res, err := h.controller.pipeline.Run(ctx, preq)
	if err != nil {
		h.writeError(w, req, runID, err)
		return
	}

	resp := newDesignFloodResponse(runID, res)
	headers := map[string]string{runIDHeader: runID}
	if key != "" {
		h.storeDesignFlood(req.Context(), key, resp)
		headers[cacheHeader] = "miss"
	}
	h.formatter.WriteResponse(w, req, http.StatusOK, resp, headers)
}

// lookupDesignFlood returns the cache key for a request and any stored
// response. The key is empty when caching is off or the lookup failed; cache
// errors never fail the request.
func (h *Handlers) lookupDesignFlood(ctx context.Context, body DesignFloodRequest) (string, *DesignFloodResponse) {
	c := h.controller.cache
	if c == nil {
		return "", nil
	}
	lookups := h.controller.metrics.CacheLookups

	key, err := cache.Key(h.controller.pipeline.Dataset().Fingerprint(), body)
	if err != nil {
		lookups.WithLabelValues("error").Inc()
		h.controller.logger.Warnf("cache key: %v", err)
		return "", nil
	}
	b, found, err := c.Get(ctx, key)
	if err != nil {
		lookups.WithLabelValues("error").Inc()
		h.controller.logger.Warnf("cache lookup: %v", err)
		return key, nil
	}
	if !found {
		lookups.WithLabelValues("miss").Inc()
		return key, nil
	}

	var resp DesignFloodResponse
	if err := cache.Unmarshal(b, &resp); err != nil {
		lookups.WithLabelValues("error").Inc()
		h.controller.logger.Warnf("cache entry %s: %v", key, err)
		return key, nil
	}
	lookups.WithLabelValues("hit").Inc()
	return key, &resp
}

func (h *Handlers) storeDesignFlood(ctx context.Context, key string, resp *DesignFloodResponse) {
	b, err := cache.Marshal(resp)
	if err == nil {
		err = h.controller.cache.Set(ctx, key, b, h.controller.cacheTTL)
	}
	if err != nil {
		h.controller.logger.Warnf("caching design flood %s: %v", resp.RunID, err)
	}
}

// PostFrequency fits Pearson-III curves to a flood record
func (h *Handlers) PostFrequency(w http.ResponseWriter, req *http.Request) {
	runID := runIDFrom(req)

	var body FrequencyRequest
	if err := decodeBody(req, &body); err != nil {
		h.writeError(w, req, runID, err)
		return
	}

	floods := body.Floods
	if body.Table != "" {
		parsed, err := frequency.ParseFloodsString(body.Table)
		if err != nil {
			h.writeError(w, req, runID, err)
			return
		}
		floods = append(floods, parsed...)
	}

	methods := h.controller.defaults.FitMethods()
	if len(body.Methods) > 0 {
		var err error
		if methods, err = frequency.ParseMethods(body.Methods...); err != nil {
			h.writeError(w, req, runID, err)
			return
		}
	}
	fitMean := h.controller.defaults.FitMean
	if body.FitMean != nil {
		fitMean = *body.FitMean
	}

	ctx, cancel := context.WithTimeout(req.Context(), h.controller.timeout)
	defer cancel()

	res, err := h.controller.analyzer.Analyze(ctx, pipeline.FrequencyRequest{
		Floods:        floods,
		Survey:        body.Survey,
		N:             body.N,
		L:             body.L,
		Methods:       methods,
		FitMean:       fitMean,
		Manual:        body.Manual,
		Active:        frequency.Method(body.Active),
		Probabilities: body.P,
	})
	if err != nil {
		h.writeError(w, req, runID, err)
		return
	}

	h.formatter.WriteResponse(w, req, http.StatusOK, &FrequencyResponse{RunID: runID, FrequencyResult: res}, map[string]string{
		runIDHeader: runID,
	})
}

// GetRegion classifies a coordinate and returns its atlas values
func (h *Handlers) GetRegion(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()
	lng, err := parseCoordinate("lng", q.Get("lng"))
	if err != nil {
		h.writeError(w, req, "", err)
		return
	}
	lat, err := parseCoordinate("lat", q.Get("lat"))
	if err != nil {
		h.writeError(w, req, "", err)
		return
	}
	c := atlas.Coordinate{Lng: lng, Lat: lat}

	ds := h.controller.pipeline.Dataset()
	code, err := ds.Region(c)
	if err != nil {
		h.writeError(w, req, "", err)
		return
	}
	region, err := ds.RegionByCode(code)
	if err != nil {
		h.writeError(w, req, "", err)
		return
	}

	resp := RegionResponse{
		Coordinate:       c,
		Region:           pipeline.RegionInfo{Code: code, Name: region.Name(), Runoff: region.DefaultRunoff()},
		InfiltrationRate: region.InfiltrationRate(),
		Statistics:       make(map[atlas.Duration]atlas.Statistics, len(atlas.Durations)),
	}
	for _, d := range atlas.Durations {
		if resp.Statistics[d], err = ds.Statistics(c, d); err != nil {
			h.writeError(w, req, "", err)
			return
		}
	}
	if resp.Exponents, err = ds.Exponents(c); err != nil {
		h.writeError(w, req, "", err)
		return
	}

	h.formatter.WriteResponse(w, req, http.StatusOK, resp, nil)
}

func (h *Handlers) writeError(w http.ResponseWriter, req *http.Request, runID string, err error) {
	status, kind := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.controller.logger.Errorf("run %s failed: %v", runID, err)
	}
	recordError(req, err)

	headers := map[string]string{}
	if runID != "" {
		headers[runIDHeader] = runID
	}
	h.formatter.WriteResponse(w, req, status, ErrorResponse{Error: err.Error(), Kind: kind, RunID: runID}, headers)
}

// decodeBody reads a JSON request body, rejecting unknown fields.
func decodeBody(req *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(req.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &hydroerr.InputError{Field: "body", Message: fmt.Sprintf("malformed JSON: %v", err)}
	}
	return nil
}

func parseCoordinate(name, s string) (float64, error) {
	if strings.TrimSpace(s) == "" {
		return 0, &hydroerr.InputError{Field: name, Message: "is required"}
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, &hydroerr.InputError{Field: name, Message: fmt.Sprintf("not a number: %q", s)}
	}
	return v, nil
}

// runIDFrom returns the run id assigned by the access log middleware, or a
// fresh one when the handler is called directly.
func runIDFrom(req *http.Request) string {
	if id, ok := req.Context().Value(runIDContextKey).(string); ok {
		return id
	}
	return uuid.NewString()
}
