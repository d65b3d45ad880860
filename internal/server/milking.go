package server

import (
	"net/http"
	"strings"

	"dairyops/internal/shared"
	"dairyops/internal/store"
)

func (a *API) CreateMilkingEvent(w http.ResponseWriter, r *http.Request) {
	caller, ok := a.requireCaller(w, r)
	if !ok {
		return
	}
	var req shared.CreateMilkingEventRequest
	if !a.decode(w, r, &req) {
		return
	}
	req.CowTag = strings.TrimSpace(req.CowTag)
	req.MilkingTime = strings.TrimSpace(req.MilkingTime)
	if req.CowID == "" && req.CowTag == "" {
		writeErr(w, http.StatusBadRequest, "provide either cow_id (UUID) or cow_tag")
		return
	}
	if req.MilkLiters == nil || req.MilkingTime == "" {
		writeErr(w, http.StatusBadRequest, "missing milk_liters or milking_time")
		return
	}
	if req.CowID != "" && !validUUID(req.CowID) {
		writeErr(w, http.StatusBadRequest, "cow_id must be a valid UUID")
		return
	}
	if req.MilkLiters.Float64() < 0 {
		writeErr(w, http.StatusBadRequest, "milk_liters must not be negative")
		return
	}
	admin, ok := a.requireAdmin(w, r, caller)
	if !ok {
		return
	}

	// cow_id wins when both are given
	var (
		cow *store.Cow
		err error
	)
	if req.CowID != "" {
		cow, err = a.Store.GetCow(r.Context(), req.CowID)
	} else {
		cow, err = a.Store.CowByTag(r.Context(), req.CowTag)
	}
	if err != nil {
		a.storeFailed(w, r, err, "resolve cow")
		return
	}
	if cow == nil {
		writeErr(w, http.StatusNotFound, "cow not found")
		return
	}

	e, err := a.Store.CreateMilkingEvent(r.Context(), store.NewMilkingEvent{
		CowID:       cow.ID,
		MilkLiters:  req.MilkLiters.Float64(),
		MilkingTime: req.MilkingTime,
		RecordedBy:  admin.ID,
	})
	if err != nil {
		a.storeFailed(w, r, err, "create milking event")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"data": []store.MilkingEvent{*e}})
}

func (a *API) ListMilkingEvents(w http.ResponseWriter, r *http.Request) {
	caller, ok := a.requireCaller(w, r)
	if !ok {
		return
	}
	cowID := r.URL.Query().Get("cow_id")
	if cowID != "" && !validUUID(cowID) {
		writeErr(w, http.StatusBadRequest, "cow_id must be a valid UUID")
		return
	}
	if _, ok := a.requireAdmin(w, r, caller); !ok {
		return
	}
	list, err := a.Store.ListMilkingEvents(r.Context(), store.MilkingFilter{CowID: cowID})
	if err != nil {
		a.storeFailed(w, r, err, "list milking events")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": list})
}
