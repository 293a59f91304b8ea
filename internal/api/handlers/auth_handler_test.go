package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/enhub-AU/enquiry-partner/internal/api/handlers"
	"github.com/enhub-AU/enquiry-partner/internal/auth"
	"github.com/enhub-AU/enquiry-partner/internal/config"
	"github.com/enhub-AU/enquiry-partner/internal/models"
	"github.com/enhub-AU/enquiry-partner/internal/services"
)

func authRouter(agentSvc services.IAgentService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{JwtSecret: "test-secret", JwtTTL: time.Hour}
	handler := handlers.NewAuthHandler(cfg, agentSvc)
	r := gin.New()
	r.POST("/v1/auth/login", handler.Login)
	return r
}

func TestAuthHandler_Login_Success(t *testing.T) {
	mockSvc := new(MockAgentService)
	r := authRouter(mockSvc)

	agent := &models.Agent{
		ID:       primitive.NewObjectID(),
		Email:    "agent@agency.example.com",
		FullName: "Alex Reid",
	}
	mockSvc.On("Authenticate", mock.Anything, "agent@agency.example.com", "hunter2").Return(agent, nil)

	payload, _ := json.Marshal(gin.H{"email": "agent@agency.example.com", "password": "hunter2"})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Token string `json:"token"`
		Agent struct {
			ID       string `json:"id"`
			Email    string `json:"email"`
			FullName string `json:"full_name"`
		} `json:"agent"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, agent.ID.Hex(), resp.Agent.ID)
	assert.Equal(t, "Alex Reid", resp.Agent.FullName)

	claims, err := auth.ValidateJWT(resp.Token, "test-secret")
	assert.NoError(t, err)
	assert.Equal(t, agent.ID.Hex(), claims.AgentID)
	mockSvc.AssertExpectations(t)
}

func TestAuthHandler_Login_BadCredentials(t *testing.T) {
	mockSvc := new(MockAgentService)
	r := authRouter(mockSvc)

	mockSvc.On("Authenticate", mock.Anything, "agent@agency.example.com", "wrong").Return(nil, services.ErrInvalidCredentials)

	payload, _ := json.Marshal(gin.H{"email": "agent@agency.example.com", "password": "wrong"})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	mockSvc.AssertExpectations(t)
}

func TestAuthHandler_Login_MissingPassword(t *testing.T) {
	mockSvc := new(MockAgentService)
	r := authRouter(mockSvc)

	payload, _ := json.Marshal(gin.H{"email": "agent@agency.example.com"})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	mockSvc.AssertNotCalled(t, "Authenticate")
}
