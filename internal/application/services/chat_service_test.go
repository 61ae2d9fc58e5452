package services_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/bpcare/internal/application/services"
	"github.com/zatekoja/bpcare/internal/domain/entities"
	apperrors "github.com/zatekoja/bpcare/pkg/errors"
)

type chatFixture struct {
	messages *MockChatMessageRepository
	users    *MockUserRepository
	records  *MockMedicalRecordRepository
	readings *MockBPReadingRepository
	gen      *stubGenerator
	flags    *services.FeatureFlags
	service  *services.ChatService
}

func newChatFixture() *chatFixture {
	f := &chatFixture{
		messages: new(MockChatMessageRepository),
		users:    new(MockUserRepository),
		records:  new(MockMedicalRecordRepository),
		readings: new(MockBPReadingRepository),
		gen:      &stubGenerator{},
		flags:    services.NewFeatureFlags(false),
	}
	f.service = services.NewChatService(f.messages, f.users, f.records, f.readings, f.gen, f.flags, "gpt-4o-mini", time.UTC)

	f.users.On("GetByID", mock.Anything, "patient-1").Return(&entities.User{ID: "patient-1", City: "Accra", Country: "Ghana"}, nil)
	f.readings.On("ListByPatient", mock.Anything, "patient-1", mock.Anything).Return([]*entities.BPReading{
		{Systolic: 142, Diastolic: 91, Timestamp: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)},
		{Systolic: 138, Diastolic: 88, Timestamp: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)},
	}, nil)
	f.records.On("ListByPatient", mock.Anything, "patient-1", mock.Anything).Return([]*entities.MedicalRecord{
		{Type: entities.MedicalRecordTypeMedication, Title: "Amlodipine", Dosage: "5mg", Status: entities.MedicalRecordStatusActive},
	}, nil)
	return f
}

func TestChatService_Send(t *testing.T) {
	t.Run("gateway answer with history", func(t *testing.T) {
		f := newChatFixture()
		f.gen.ready = true
		f.gen.text = "Try to reduce salt."
		f.messages.On("ListRecent", mock.Anything, "patient-1", 10).Return([]*entities.ChatMessage{
			{Role: entities.ChatRoleUser, Content: "hi"},
			{Role: entities.ChatRoleAssistant, Content: "hello"},
		}, nil)
		f.messages.On("Create", mock.Anything, mock.Anything).Return(nil).Twice()

		reply, err := f.service.Send(context.Background(), "patient-1", "  How can I lower my BP? ")
		require.NoError(t, err)
		assert.Equal(t, services.ChatSourceAI, reply.Source)
		assert.Equal(t, "Try to reduce salt.", reply.Message.Content)
		assert.Equal(t, entities.ChatRoleAssistant, reply.Message.Role)

		require.Len(t, f.gen.calls, 1)
		call := f.gen.calls[0]
		assert.Equal(t, "How can I lower my BP?", call.Prompt)
		assert.Len(t, call.History, 2)
		assert.Equal(t, 0.7, call.Temperature)
		assert.Equal(t, 500, call.MaxTokens)
		assert.Contains(t, call.System, "Latest BP: 142/91 mmHg (2026-03-02)")
		assert.Contains(t, call.System, "Current medications: Amlodipine 5mg")
		assert.Contains(t, call.System, "Region: Accra, Ghana")
		f.messages.AssertExpectations(t)
	})

	t.Run("demo mode answers from keywords", func(t *testing.T) {
		f := newChatFixture()
		f.flags.SetDemoMode(true)
		f.gen.ready = true
		f.messages.On("ListRecent", mock.Anything, "patient-1", 10).Return([]*entities.ChatMessage{}, nil)
		f.messages.On("Create", mock.Anything, mock.Anything).Return(nil)

		reply, err := f.service.Send(context.Background(), "patient-1", "I have chest pain")
		require.NoError(t, err)
		assert.Equal(t, services.ChatSourceFallback, reply.Source)
		assert.True(t, strings.Contains(reply.Message.Content, "emergency services"))
		assert.Contains(t, reply.Message.Content, "Latest BP: 142/91 mmHg")
		assert.Empty(t, f.gen.calls)
	})

	t.Run("gateway failure stores an apology", func(t *testing.T) {
		f := newChatFixture()
		f.gen.ready = true
		f.gen.err = apperrors.NewProviderUnavailableError("all AI transports failed", errors.New("503"))
		f.messages.On("ListRecent", mock.Anything, "patient-1", 10).Return([]*entities.ChatMessage{}, nil)
		f.messages.On("Create", mock.Anything, mock.Anything).Return(nil)

		reply, err := f.service.Send(context.Background(), "patient-1", "hello")
		require.NoError(t, err)
		assert.Equal(t, services.ChatSourceError, reply.Source)
		assert.Contains(t, reply.Message.Content, "consult your doctor")
	})

	t.Run("context failure stores nothing", func(t *testing.T) {
		f := newChatFixture()
		f.gen.ready = true
		f.users.On("GetByID", mock.Anything, "patient-9").Return(nil, apperrors.NewNotFoundError("user not found"))
		f.messages.On("ListRecent", mock.Anything, "patient-9", 10).Return([]*entities.ChatMessage{}, nil)

		_, err := f.service.Send(context.Background(), "patient-9", "hello")
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))
		f.messages.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		assert.Empty(t, f.gen.calls)
	})

	t.Run("empty message", func(t *testing.T) {
		f := newChatFixture()
		_, err := f.service.Send(context.Background(), "patient-1", "   ")
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
	})
}

func TestChatService_History(t *testing.T) {
	f := newChatFixture()
	f.messages.On("ListRecent", mock.Anything, "patient-1", 50).Return([]*entities.ChatMessage{{Content: "hi"}}, nil)

	msgs, err := f.service.History(context.Background(), "patient-1", 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}
