package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/villagevault/villagevault/server/models"
	"github.com/villagevault/villagevault/server/services"
)

type ResponsePayload struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

type dataMap map[string]interface{}

// ---------------------------------------------------------------------------------//
// Platform
// --------------------------------------------------------------------------------//

func health(rw http.ResponseWriter, r *http.Request) {
	json.NewEncoder(rw).Encode(dataMap{
		"status":    "OK",
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"service":   "VillageVault API",
	})
}

func (s *Server) jwks(rw http.ResponseWriter, r *http.Request) {
	jwks, err := s.auth.JWKS()
	if err != nil {
		writeError(rw, err, "Internal server error")
		return
	}
	json.NewEncoder(rw).Encode(jwks)
}

func (s *Server) jobStats(rw http.ResponseWriter, r *http.Request) {
	stats, err := s.store.JobStats(r.Context())
	if err != nil {
		writeError(rw, err, "Failed to load job stats")
		return
	}
	writeData(rw, "", dataMap{"stats": stats}, http.StatusOK)
}

func notFoundRoute(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "application/json")
	writeResponse(rw, ResponsePayload{Message: "Route not found - " + r.URL.Path}, http.StatusNotFound)
}

// ---------------------------------------------------------------------------------//
// Auth
// --------------------------------------------------------------------------------//

func (s *Server) register(rw http.ResponseWriter, r *http.Request) {
	var input services.RegisterInput
	if !decodeBody(rw, r, &input) {
		return
	}

	user, err := s.auth.Register(r.Context(), input)
	if err != nil {
		writeError(rw, err, "Internal server error")
		return
	}

	writeData(rw, "User registered successfully. Please verify your phone number.", dataMap{
		"userId":      user.ID,
		"phoneNumber": user.PhoneNumber,
		"name":        user.Name,
		"role":        user.Role,
		"villageId":   user.VillageID,
	}, http.StatusCreated)
}

func (s *Server) login(rw http.ResponseWriter, r *http.Request) {
	var input services.LoginInput
	if !decodeBody(rw, r, &input) {
		return
	}

	if err := s.auth.Login(r.Context(), input); err != nil {
		writeError(rw, err, "Internal server error")
		return
	}

	writeData(rw, "OTP sent to your phone number", dataMap{"phoneNumber": input.PhoneNumber}, http.StatusOK)
}

func (s *Server) verifyOTP(rw http.ResponseWriter, r *http.Request) {
	var input services.VerifyOTPInput
	if !decodeBody(rw, r, &input) {
		return
	}

	session, err := s.auth.VerifyOTP(r.Context(), input)
	if err != nil {
		writeError(rw, err, "Internal server error")
		return
	}

	writeData(rw, "OTP verified successfully", session, http.StatusOK)
}

func (s *Server) profile(rw http.ResponseWriter, r *http.Request) {
	writeData(rw, "", s.auth.Profile(r.Context(), currentUser(r)), http.StatusOK)
}

func (s *Server) updateProfile(rw http.ResponseWriter, r *http.Request) {
	var input struct {
		Name string `json:"name"`
	}
	if !decodeBody(rw, r, &input) {
		return
	}

	user, err := s.auth.UpdateProfile(r.Context(), currentUser(r), input.Name)
	if err != nil {
		writeError(rw, err, "Internal server error")
		return
	}

	writeData(rw, "Profile updated successfully", dataMap{"user": user}, http.StatusOK)
}

// ---------------------------------------------------------------------------------//
// Alerts
// --------------------------------------------------------------------------------//

func (s *Server) listAlerts(rw http.ResponseWriter, r *http.Request) {
	alerts := s.alerts.List(r.Context(), models.AlertFilter{
		VillageID: r.URL.Query().Get("villageId"),
		Limit:     queryLimit(r),
	})
	writeData(rw, "", dataMap{"alerts": alerts}, http.StatusOK)
}

func (s *Server) findAlert(rw http.ResponseWriter, r *http.Request) {
	alert, err := s.alerts.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(rw, err, "Failed to fetch alert")
		return
	}
	writeData(rw, "", dataMap{"alert": alert}, http.StatusOK)
}

func (s *Server) createAlert(rw http.ResponseWriter, r *http.Request) {
	var input services.CreateAlertInput
	if !decodeBody(rw, r, &input) {
		return
	}

	alert, err := s.alerts.Create(r.Context(), currentUser(r), input)
	if err != nil {
		writeError(rw, err, "Failed to create alert")
		return
	}
	writeData(rw, "Alert created successfully", dataMap{"alert": alert}, http.StatusCreated)
}

func (s *Server) updateAlert(rw http.ResponseWriter, r *http.Request) {
	var input services.UpdateAlertInput
	if !decodeBody(rw, r, &input) {
		return
	}

	alert, err := s.alerts.Update(r.Context(), mux.Vars(r)["id"], input)
	if err != nil {
		writeError(rw, err, "Failed to update alert")
		return
	}
	writeData(rw, "Alert updated successfully", dataMap{"alert": alert}, http.StatusOK)
}

func (s *Server) deleteAlert(rw http.ResponseWriter, r *http.Request) {
	if err := s.alerts.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(rw, err, "Failed to delete alert")
		return
	}
	writeData(rw, "Alert deleted successfully", nil, http.StatusOK)
}

func (s *Server) alertDeliveries(rw http.ResponseWriter, r *http.Request) {
	deliveries, err := s.alerts.Deliveries(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(rw, err, "Failed to fetch deliveries")
		return
	}
	writeData(rw, "", dataMap{"deliveries": deliveries}, http.StatusOK)
}

// ---------------------------------------------------------------------------------//
// Messages
// --------------------------------------------------------------------------------//

func (s *Server) listMessages(rw http.ResponseWriter, r *http.Request) {
	messages := s.messages.List(r.Context(), currentUser(r), queryLimit(r))
	writeData(rw, "", dataMap{"messages": messages}, http.StatusOK)
}

func (s *Server) findMessage(rw http.ResponseWriter, r *http.Request) {
	message, err := s.messages.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(rw, err, "Failed to fetch message")
		return
	}
	writeData(rw, "", dataMap{"message": message}, http.StatusOK)
}

func (s *Server) createMessage(rw http.ResponseWriter, r *http.Request) {
	var input services.CreateMessageInput
	if !decodeBody(rw, r, &input) {
		return
	}

	message, err := s.messages.Create(r.Context(), currentUser(r), input)
	if err != nil {
		writeError(rw, err, "Failed to send message")
		return
	}
	writeData(rw, "Message sent successfully", dataMap{"message": message}, http.StatusCreated)
}

func (s *Server) updateMessage(rw http.ResponseWriter, r *http.Request) {
	var input services.UpdateMessageInput
	if !decodeBody(rw, r, &input) {
		return
	}

	message, err := s.messages.Update(r.Context(), currentUser(r), mux.Vars(r)["id"], input)
	if err != nil {
		writeError(rw, err, "Failed to update message")
		return
	}
	writeData(rw, "Message updated successfully", dataMap{"message": message}, http.StatusOK)
}

func (s *Server) deleteMessage(rw http.ResponseWriter, r *http.Request) {
	if err := s.messages.Delete(r.Context(), currentUser(r), mux.Vars(r)["id"]); err != nil {
		writeError(rw, err, "Failed to delete message")
		return
	}
	writeData(rw, "Message deleted successfully", nil, http.StatusOK)
}

func (s *Server) clearMessages(rw http.ResponseWriter, r *http.Request) {
	cleared, err := s.messages.Clear(r.Context(), currentUser(r))
	if err != nil {
		writeError(rw, err, "Failed to clear messages")
		return
	}
	writeData(rw, "All messages cleared by Sarpanch", dataMap{"cleared": cleared}, http.StatusOK)
}

// ---------------------------------------------------------------------------------//
// SOS
// --------------------------------------------------------------------------------//

func (s *Server) listSOSReports(rw http.ResponseWriter, r *http.Request) {
	reports := s.sos.List(r.Context(), models.SOSFilter{
		VillageID: r.URL.Query().Get("villageId"),
		Status:    r.URL.Query().Get("status"),
		Limit:     queryLimit(r),
	})
	writeData(rw, "", dataMap{"sosReports": reports}, http.StatusOK)
}

func (s *Server) findSOSReport(rw http.ResponseWriter, r *http.Request) {
	report, err := s.sos.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(rw, err, "Failed to fetch SOS report")
		return
	}
	writeData(rw, "", dataMap{"sosReport": report}, http.StatusOK)
}

func (s *Server) createSOSReport(rw http.ResponseWriter, r *http.Request) {
	var input services.CreateSOSInput
	if !decodeBody(rw, r, &input) {
		return
	}

	report, err := s.sos.Create(r.Context(), currentUser(r), input)
	if err != nil {
		writeError(rw, err, "Failed to create SOS report")
		return
	}
	writeData(rw, "SOS report created successfully", dataMap{"sosReport": report}, http.StatusCreated)
}

func (s *Server) updateSOSReport(rw http.ResponseWriter, r *http.Request) {
	var input services.UpdateSOSInput
	if !decodeBody(rw, r, &input) {
		return
	}

	report, err := s.sos.Update(r.Context(), mux.Vars(r)["id"], input)
	if err != nil {
		writeError(rw, err, "Failed to update SOS report")
		return
	}
	writeData(rw, "SOS report updated successfully", dataMap{"sosReport": report}, http.StatusOK)
}

func (s *Server) updateSOSStatus(rw http.ResponseWriter, r *http.Request) {
	var input struct {
		Status string `json:"status"`
	}
	if !decodeBody(rw, r, &input) {
		return
	}

	report, err := s.sos.UpdateStatus(r.Context(), mux.Vars(r)["id"], input.Status)
	if err != nil {
		writeError(rw, err, "Failed to update SOS status")
		return
	}
	writeData(rw, "SOS status updated successfully", dataMap{"sosReport": report}, http.StatusOK)
}

func (s *Server) deleteSOSReport(rw http.ResponseWriter, r *http.Request) {
	if err := s.sos.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(rw, err, "Failed to delete SOS report")
		return
	}
	writeData(rw, "SOS report deleted successfully", nil, http.StatusOK)
}

// ---------------------------------------------------------------------------------//
// Users & villages
// --------------------------------------------------------------------------------//

func (s *Server) villageUsers(rw http.ResponseWriter, r *http.Request) {
	users, err := s.directory.VillageUsers(r.Context(), currentUser(r), r.URL.Query().Get("role"))
	if err != nil {
		writeError(rw, err, "Internal server error")
		return
	}
	writeData(rw, "", dataMap{"users": users}, http.StatusOK)
}

func (s *Server) villageUser(rw http.ResponseWriter, r *http.Request) {
	user, err := s.directory.VillageUser(r.Context(), currentUser(r), mux.Vars(r)["id"])
	if err != nil {
		writeError(rw, err, "Internal server error")
		return
	}
	writeData(rw, "", dataMap{"user": user}, http.StatusOK)
}

func (s *Server) villageStats(rw http.ResponseWriter, r *http.Request) {
	stats := s.directory.Stats(r.Context(), currentUser(r))
	writeData(rw, "", dataMap{"stats": stats}, http.StatusOK)
}

func (s *Server) searchVillages(rw http.ResponseWriter, r *http.Request) {
	villages, err := s.directory.SearchVillages(r.Context(), r.URL.Query().Get("pinCode"))
	if err != nil {
		writeError(rw, err, "Internal server error")
		return
	}
	writeData(rw, "", dataMap{"villages": villages}, http.StatusOK)
}

func (s *Server) currentVillage(rw http.ResponseWriter, r *http.Request) {
	village, err := s.directory.CurrentVillage(r.Context(), currentUser(r))
	if err != nil {
		writeError(rw, err, "Internal server error")
		return
	}
	writeData(rw, "", dataMap{"village": village}, http.StatusOK)
}
