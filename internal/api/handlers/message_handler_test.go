package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/enhub-AU/enquiry-partner/internal/api/handlers"
	"github.com/enhub-AU/enquiry-partner/internal/models"
	"github.com/enhub-AU/enquiry-partner/internal/services"
)

func messageRouter(svc services.IMessageService, agentID primitive.ObjectID) *gin.Engine {
	gin.SetMode(gin.TestMode)
	handler := handlers.NewMessageHandler(svc)
	r := gin.New()
	r.Use(asAgent(agentID))
	r.GET("/v1/enquiries/:id/messages", handler.List)
	r.POST("/v1/enquiries/:id/messages", handler.Send)
	r.PATCH("/v1/messages/:id", handler.Edit)
	r.POST("/v1/messages/:id/approve", handler.Approve)
	return r
}

func TestMessageHandler_Send(t *testing.T) {
	agentID := primitive.NewObjectID()
	enquiryID := primitive.NewObjectID()
	mockSvc := new(MockMessageService)
	r := messageRouter(mockSvc, agentID)

	sent := &models.Message{
		ID:        primitive.NewObjectID(),
		EnquiryID: enquiryID,
		Sender:    models.SenderAgent,
		Content:   "I can do 2pm Saturday.",
		Status:    models.MessageStatusSent,
	}
	mockSvc.On("AppendAgentMessage", mock.Anything, agentID, enquiryID, "I can do 2pm Saturday.").Return(sent, nil)

	payload, _ := json.Marshal(gin.H{"content": "I can do 2pm Saturday."})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/enquiries/"+enquiryID.Hex()+"/messages", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	var resp models.Message
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, models.SenderAgent, resp.Sender)
	assert.Equal(t, models.MessageStatusSent, resp.Status)
	mockSvc.AssertExpectations(t)
}

func TestMessageHandler_Send_EmptyContent(t *testing.T) {
	agentID := primitive.NewObjectID()
	mockSvc := new(MockMessageService)
	r := messageRouter(mockSvc, agentID)

	payload, _ := json.Marshal(gin.H{"content": ""})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/enquiries/"+primitive.NewObjectID().Hex()+"/messages", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	mockSvc.AssertNotCalled(t, "AppendAgentMessage")
}

func TestMessageHandler_Edit_DraftNotFound(t *testing.T) {
	agentID := primitive.NewObjectID()
	messageID := primitive.NewObjectID()
	mockSvc := new(MockMessageService)
	r := messageRouter(mockSvc, agentID)

	mockSvc.On("EditDraft", mock.Anything, agentID, messageID, "Adjusted wording").Return(nil, services.ErrMessageNotFound)

	payload, _ := json.Marshal(gin.H{"content": "Adjusted wording"})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("PATCH", "/v1/messages/"+messageID.Hex(), bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	var resp map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Draft not found", resp["error"])
	mockSvc.AssertExpectations(t)
}

func TestMessageHandler_Approve(t *testing.T) {
	agentID := primitive.NewObjectID()
	messageID := primitive.NewObjectID()
	mockSvc := new(MockMessageService)
	r := messageRouter(mockSvc, agentID)

	approved := &models.Message{
		ID:     messageID,
		Sender: models.SenderAI,
		Status: models.MessageStatusSent,
	}
	mockSvc.On("ApproveDraft", mock.Anything, agentID, messageID).Return(approved, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/messages/"+messageID.Hex()+"/approve", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp models.Message
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, models.MessageStatusSent, resp.Status)
	mockSvc.AssertExpectations(t)
}

func TestMessageHandler_List_OtherAgentsEnquiry(t *testing.T) {
	agentID := primitive.NewObjectID()
	enquiryID := primitive.NewObjectID()
	mockSvc := new(MockMessageService)
	r := messageRouter(mockSvc, agentID)

	mockSvc.On("ListByEnquiry", mock.Anything, agentID, enquiryID).Return(nil, services.ErrEnquiryNotFound)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/enquiries/"+enquiryID.Hex()+"/messages", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	mockSvc.AssertExpectations(t)
}
