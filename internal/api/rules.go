package api

import (
	"encoding/json"
	"io"
	"net/http"

	"codeberg.org/d-buckner/notifyicon/internal/engine"
	"codeberg.org/d-buckner/notifyicon/internal/resolver"
	"codeberg.org/d-buckner/notifyicon/internal/rules"
	"codeberg.org/d-buckner/notifyicon/internal/rulesync"
	"codeberg.org/d-buckner/notifyicon/internal/store"
	"github.com/go-chi/chi/v5"
)

// maxRulesBody caps uploaded rule documents.
const maxRulesBody = 32 << 20

// ResolveRequest describes one notification to resolve
type ResolveRequest struct {
	PackageName   string      `json:"packageName"`
	IsGrayscale   bool        `json:"isGrayscale"`
	NativeColor   rules.Color `json:"nativeColor,omitempty"`
	DarkMode      bool        `json:"darkMode"`
	AccentColor   rules.Color `json:"accentColor,omitempty"`
	SenderPackage string      `json:"senderPackage,omitempty"`
}

// ResolveResponse is the wire form of a resolver decision
type ResolveResponse struct {
	Source string         `json:"source"`
	Custom bool           `json:"custom"`
	Style  resolver.Style `json:"style"`
	Color  string         `json:"color,omitempty"`
	Rule   string         `json:"rule,omitempty"`
	Image  string         `json:"image,omitempty"`
}

// RuleSummary describes a rule without its bitmap
type RuleSummary struct {
	AppName         string `json:"appName"`
	PackageName     string `json:"packageName"`
	IsEnabled       bool   `json:"isEnabled"`
	IsEnabledAll    bool   `json:"isEnabledAll"`
	IconColor       string `json:"iconColor,omitempty"`
	ContributorName string `json:"contributorName,omitempty"`
}

// RuleDetail is a rule including its base64 PNG bitmap
type RuleDetail struct {
	RuleSummary
	IconBitmap string `json:"iconBitmap"`
}

func summarize(e rules.Entry) RuleSummary {
	sum := RuleSummary{
		AppName:         e.AppName,
		PackageName:     e.PackageName,
		IsEnabled:       e.IsEnabled,
		IsEnabledAll:    e.IsEnabledAll,
		ContributorName: e.ContributorName,
	}
	if c, ok := e.Color(); ok {
		sum.IconColor = c.String()
	}
	return sum
}

// handleResolve runs the resolver against the current rule snapshot
func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PackageName == "" {
		respondError(w, http.StatusBadRequest, "packageName is required")
		return
	}

	d := s.engine.Resolve(resolver.Input{
		PackageName:   req.PackageName,
		IsGrayscale:   req.IsGrayscale,
		NativeColor:   req.NativeColor,
		DarkMode:      req.DarkMode,
		AccentColor:   req.AccentColor,
		SenderPackage: req.SenderPackage,
	})

	resp := ResolveResponse{
		Source: d.Source.String(),
		Custom: d.Custom,
		Style:  d.Style,
	}
	if d.HasColor {
		resp.Color = d.Color.String()
	}
	if d.Rule != nil {
		resp.Rule = d.Rule.PackageName
	}
	if d.Image != nil {
		img, err := rules.EncodeImage(d.Image)
		if err != nil {
			s.logger.Error("failed to encode icon", "package", req.PackageName, "error", err)
			respondError(w, http.StatusInternalServerError, "failed to encode icon")
			return
		}
		resp.Image = img
	}

	respondJSON(w, http.StatusOK, resp)
}

// handleListRules returns summaries of the active rules
func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	entries := s.engine.Rules().Entries()
	out := make([]RuleSummary, 0, len(entries))
	for _, e := range entries {
		out = append(out, summarize(e))
	}
	respondJSON(w, http.StatusOK, out)
}

// handleGetRule returns the first rule for a package, enabled or not
func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	pkg := chi.URLParam(r, "package")

	e, ok := s.engine.Rules().Find(pkg)
	if !ok {
		respondError(w, http.StatusNotFound, "no rule for package")
		return
	}

	bitmap, err := rules.EncodeImage(e.Icon)
	if err != nil {
		s.logger.Error("failed to encode rule icon", "package", pkg, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to encode icon")
		return
	}

	respondJSON(w, http.StatusOK, RuleDetail{RuleSummary: summarize(e), IconBitmap: bitmap})
}

// handleReplaceRules stores an uploaded rule document and asks the engine to reload it
func (s *Server) handleReplaceRules(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRulesBody))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	doc := string(body)

	if rules.IsChallengePage(doc) {
		respondError(w, http.StatusUnprocessableEntity, "document is a challenge page")
		return
	}
	if !rules.IsValidJSONArray(doc) {
		respondError(w, http.StatusUnprocessableEntity, "document is not a JSON array")
		return
	}
	set, report := rules.ParseWithReport(doc)
	if report.Malformed {
		respondError(w, http.StatusUnprocessableEntity, "document is malformed")
		return
	}

	if err := s.blobs.Put(r.Context(), store.RulesKey, doc); err != nil {
		s.logger.Error("failed to store rules", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to store rules")
		return
	}
	if err := s.engine.Submit(engine.RulesChanged()); err != nil {
		respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]int{
		"count":   set.Len(),
		"dropped": report.Dropped,
	})
}

// handleSync runs a sync now and reports its result
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	result, err := s.engine.SyncNow(r.Context())
	if err != nil {
		status := http.StatusBadGateway
		kind, ok := rulesync.KindOf(err)
		switch {
		case ok && kind == rulesync.InvalidPayload:
			status = http.StatusUnprocessableEntity
		case !ok && r.Context().Err() != nil:
			status = http.StatusRequestTimeout
		}
		resp := map[string]string{"error": err.Error(), "result": "failed"}
		if ok {
			resp["result"] = kind.String()
		}
		respondJSON(w, status, resp)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"result": result.String()})
}
