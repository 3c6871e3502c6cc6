package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/villagevault/villagevault/server/auth/key"
	"github.com/villagevault/villagevault/server/delivery"
	"github.com/villagevault/villagevault/server/gateway"
	"github.com/villagevault/villagevault/server/models"
	"github.com/villagevault/villagevault/server/otp"
	"github.com/villagevault/villagevault/server/scheduler"
	"github.com/villagevault/villagevault/server/store"
	"github.com/villagevault/villagevault/server/store/memstore"
	"github.com/villagevault/villagevault/server/twilio"
	"github.com/villagevault/villagevault/server/work"
	"github.com/villagevault/villagevault/shared"
)

var otpRegex = regexp.MustCompile(`code is (\d+)`)

type otpRecorder struct {
	mu    sync.Mutex
	codes map[string]string
}

func (r *otpRecorder) SendMessage(ctx context.Context, to, msg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if match := otpRegex.FindStringSubmatch(msg); match != nil {
		r.codes[to] = match[1]
	}
	return nil
}

func (r *otpRecorder) code(phone string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.codes[phone]
}

type response struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	*httptest.Server
	store         *memstore.MemStore
	otps          *otpRecorder
	sarpanch      *models.User
	villager      *models.User
	sarpanchToken string
	villagerToken string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()

	st := memstore.New()
	require.NoError(t, store.SeedDemoData(ctx, st))

	keyPair, err := key.GenerateKeyPair(RSA_KEY_BITS)
	require.NoError(t, err)

	hub := gateway.NewHub()
	workerPool := work.NewWorkerAdapter(st, work.AdapterConfig{
		TimeZone:      "UTC",
		SleepBackoffs: []time.Duration{10 * time.Millisecond},
		ScheduledPoll: 10 * time.Millisecond,
	})
	engine := delivery.NewEngine(st,
		delivery.DefaultSenders(hub, twilio.NewClient(shared.TwilioConfig{}), 0, 0),
		delivery.Config{},
	)
	alertScheduler, err := scheduler.NewAlertScheduler(st, workerPool, engine)
	require.NoError(t, err)
	require.NoError(t, workerPool.Start())

	recorder := &otpRecorder{codes: map[string]string{}}
	s := NewServer(Options{
		Store:     st,
		Hub:       hub,
		OTPs:      otp.NewManager(otp.NewMemoryStore(), otp.Config{}),
		OTPSender: recorder,
		KeyPair:   keyPair,
		Scheduler: alertScheduler,
	})

	ts := &testServer{Server: httptest.NewServer(s.Handler()), store: st, otps: recorder}
	t.Cleanup(func() {
		hub.Close()
		ts.Close()
		workerPool.Stop()
	})

	ts.sarpanch, err = st.GetUserByPhone(ctx, "7286973788")
	require.NoError(t, err)
	ts.villager, err = st.GetUserByPhone(ctx, "9849119427")
	require.NoError(t, err)

	ts.sarpanchToken, err = s.auth.IssueToken(ts.sarpanch)
	require.NoError(t, err)
	ts.villagerToken, err = s.auth.IssueToken(ts.villager)
	require.NoError(t, err)

	return ts
}

func (ts *testServer) do(t *testing.T, method, path, token string, body interface{}) (int, response) {
	t.Helper()

	var reqBody bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&reqBody).Encode(body))
	}

	req, err := http.NewRequest(method, ts.URL+path, &reqBody)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var payload response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	return resp.StatusCode, payload
}

func decodeData(t *testing.T, payload response, field string, v interface{}) {
	t.Helper()

	var data map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(payload.Data, &data))
	require.Contains(t, data, field)
	require.NoError(t, json.Unmarshal(data[field], v))
}

func TestHealthAndUnknownRoutes(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var health map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", health["status"])
	assert.Equal(t, "VillageVault API", health["service"])

	status, payload := ts.do(t, "GET", "/api/weather", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.False(t, payload.Success)
	assert.Equal(t, "Route not found - /api/weather", payload.Message)
}

func TestVillagerCannotUpdateAlert(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	alert := &models.Alert{
		Title:     "Water Supply Maintenance",
		Message:   "No water tomorrow",
		Priority:  models.HIGH_PRIORITY,
		VillageID: ts.sarpanch.VillageID,
		Channels:  []string{models.IN_APP_CHANNEL},
		SenderID:  ts.sarpanch.ID,
	}
	require.NoError(t, ts.store.CreateAlert(ctx, alert))

	status, payload := ts.do(t, "PUT", "/api/alerts/"+alert.ID, ts.villagerToken, map[string]string{"title": "Hacked"})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "Access denied. Insufficient permissions.", payload.Message)

	status, payload = ts.do(t, "PUT", "/api/alerts/"+alert.ID, "", map[string]string{"title": "Hacked"})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Access denied. No token provided.", payload.Message)

	stored, err := ts.store.GetAlert(ctx, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, "Water Supply Maintenance", stored.Title)

	status, payload = ts.do(t, "PUT", "/api/alerts/"+alert.ID, ts.sarpanchToken, map[string]string{"title": "Water Supply Restored"})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Alert updated successfully", payload.Message)

	status, payload = ts.do(t, "GET", "/api/alerts/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Alert not found", payload.Message)
}

func TestCreateAlertFansOut(t *testing.T) {
	ts := newTestServer(t)

	socketURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/socket?token=" + ts.villagerToken
	conn, _, err := websocket.DefaultDialer.Dial(socketURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	status, payload := ts.do(t, "POST", "/api/alerts", ts.sarpanchToken, map[string]interface{}{
		"title":     "Water Supply Maintenance",
		"message":   "Water supply will be off tomorrow between 9 and 12.",
		"priority":  "HIGH",
		"villageId": ts.sarpanch.VillageID,
		"channels":  []string{"IN_APP", "SMS"},
	})
	require.Equal(t, http.StatusCreated, status, payload.Message)
	assert.Equal(t, "Alert created successfully", payload.Message)

	var alert models.Alert
	decodeData(t, payload, "alert", &alert)
	assert.Equal(t, ts.sarpanch.ID, alert.SenderID)
	assert.Equal(t, ts.sarpanch.Name, alert.SenderName)
	assert.Equal(t, models.SARPANCH_ROLE, alert.SenderRole)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	for frame.Event != "newAlert" {
		require.NoError(t, conn.ReadJSON(&frame))
	}

	// 5 verified village members, one IN_APP & one SMS delivery each
	assert.Eventually(t, func() bool {
		deliveries, err := ts.store.ListDeliveries(context.Background(), alert.ID)
		if err != nil || len(deliveries) != 10 {
			return false
		}
		for _, d := range deliveries {
			if d.Status != models.DELIVERED_DELIVERY {
				return false
			}
		}
		return true
	}, 5*time.Second, 20*time.Millisecond)

	status, payload = ts.do(t, "GET", "/api/alerts/"+alert.ID+"/deliveries", ts.sarpanchToken, nil)
	assert.Equal(t, http.StatusOK, status)
	var deliveries []models.AlertDelivery
	decodeData(t, payload, "deliveries", &deliveries)
	assert.Len(t, deliveries, 10)
}

func TestCreateAlertValidation(t *testing.T) {
	ts := newTestServer(t)

	status, payload := ts.do(t, "POST", "/api/alerts", ts.sarpanchToken, map[string]interface{}{
		"message":   "No title",
		"priority":  "HIGH",
		"villageId": ts.sarpanch.VillageID,
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, `"title" is required`, payload.Message)

	req, err := http.NewRequest("POST", ts.URL+"/api/alerts", strings.NewReader("{not json"))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+ts.sarpanchToken)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSOSStatusUpdate(t *testing.T) {
	ts := newTestServer(t)

	status, payload := ts.do(t, "POST", "/api/sos", ts.villagerToken, map[string]interface{}{
		"type":        "MEDICAL",
		"description": "Elderly neighbour collapsed",
		"location":    "Near the temple",
		"villageId":   ts.villager.VillageID,
	})
	require.Equal(t, http.StatusCreated, status, payload.Message)

	var report models.SOSReport
	decodeData(t, payload, "sosReport", &report)
	assert.Equal(t, models.PENDING_SOS, report.Status)

	status, _ = ts.do(t, "PATCH", "/api/sos/"+report.ID+"/status", ts.villagerToken, map[string]string{"status": "resolved"})
	assert.Equal(t, http.StatusForbidden, status)

	status, payload = ts.do(t, "PATCH", "/api/sos/"+report.ID+"/status", ts.sarpanchToken, map[string]string{"status": "done"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Invalid status", payload.Message)

	status, payload = ts.do(t, "PATCH", "/api/sos/"+report.ID+"/status", ts.sarpanchToken, map[string]string{"status": "resolved"})
	require.Equal(t, http.StatusOK, status, payload.Message)
	decodeData(t, payload, "sosReport", &report)
	assert.Equal(t, models.RESOLVED_SOS, report.Status)

	status, payload = ts.do(t, "GET", "/api/sos?status=resolved", "", nil)
	assert.Equal(t, http.StatusOK, status)
	var reports []models.SOSReport
	decodeData(t, payload, "sosReports", &reports)
	assert.Len(t, reports, 1)
}

func TestClearMessages(t *testing.T) {
	ts := newTestServer(t)

	status, payload := ts.do(t, "POST", "/api/messages", ts.villagerToken, map[string]string{
		"content":   "Hello everyone",
		"villageId": ts.villager.VillageID,
	})
	require.Equal(t, http.StatusCreated, status, payload.Message)

	status, payload = ts.do(t, "DELETE", "/api/messages/clear", ts.villagerToken, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "Only Sarpanch can clear all messages", payload.Message)

	status, payload = ts.do(t, "DELETE", "/api/messages/clear", ts.sarpanchToken, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "All messages cleared by Sarpanch", payload.Message)

	status, payload = ts.do(t, "GET", "/api/messages", ts.villagerToken, nil)
	assert.Equal(t, http.StatusOK, status)
	var messages []models.Message
	decodeData(t, payload, "messages", &messages)
	assert.Empty(t, messages)
}

func TestRegisterAndVerify(t *testing.T) {
	ts := newTestServer(t)
	phone := "9876543210"

	status, payload := ts.do(t, "POST", "/api/auth/register", "", map[string]string{
		"phoneNumber": phone,
		"name":        "Lakshmi",
		"role":        "VILLAGER",
		"pinCode":     "522508",
		"villageName": "Test Village",
	})
	require.Equal(t, http.StatusCreated, status, payload.Message)

	code := ts.otps.code(phone)
	require.NotEmpty(t, code)

	status, payload = ts.do(t, "POST", "/api/auth/verify-otp", "", map[string]string{"phoneNumber": phone, "otp": code})
	require.Equal(t, http.StatusOK, status, payload.Message)

	var session struct {
		Token string       `json:"token"`
		User  *models.User `json:"user"`
	}
	require.NoError(t, json.Unmarshal(payload.Data, &session))
	assert.True(t, session.User.IsVerified)
	assert.Equal(t, ts.villager.VillageID, session.User.VillageID)

	status, payload = ts.do(t, "GET", "/api/auth/profile", session.Token, nil)
	assert.Equal(t, http.StatusOK, status)

	status, payload = ts.do(t, "GET", "/api/villages/stats", session.Token, nil)
	assert.Equal(t, http.StatusOK, status)
	var stats models.VillageStats
	decodeData(t, payload, "stats", &stats)
	assert.EqualValues(t, 6, stats.TotalUsers)

	status, payload = ts.do(t, "POST", "/api/auth/login", "", map[string]string{"phoneNumber": "9000000001"})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "User not found. Please register first.", payload.Message)
}
