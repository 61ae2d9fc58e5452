package services_test

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/zatekoja/bpcare/internal/domain/entities"
	"github.com/zatekoja/bpcare/internal/domain/providers"
	"github.com/zatekoja/bpcare/internal/domain/repositories"
)

// Mocks

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*entities.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.User), args.Error(1)
}

func (m *MockUserRepository) FilterDoctorIDs(ctx context.Context, ids []string) ([]string, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

type MockMedicalRecordRepository struct {
	mock.Mock
}

func (m *MockMedicalRecordRepository) ListByPatient(ctx context.Context, patientID string, filter repositories.MedicalRecordFilter) ([]*entities.MedicalRecord, error) {
	args := m.Called(ctx, patientID, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.MedicalRecord), args.Error(1)
}

type MockBPReadingRepository struct {
	mock.Mock
}

func (m *MockBPReadingRepository) CreateWithinDailyQuota(ctx context.Context, reading *entities.BPReading, limit int) (int, error) {
	args := m.Called(ctx, reading, limit)
	return args.Int(0), args.Error(1)
}

func (m *MockBPReadingRepository) ListByPatient(ctx context.Context, patientID string, filter repositories.BPReadingFilter) ([]*entities.BPReading, error) {
	args := m.Called(ctx, patientID, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.BPReading), args.Error(1)
}

func (m *MockBPReadingRepository) CountForDay(ctx context.Context, patientID, localDay string) (int, error) {
	args := m.Called(ctx, patientID, localDay)
	return args.Int(0), args.Error(1)
}

type MockDoctorLinkRepository struct {
	mock.Mock
}

func (m *MockDoctorLinkRepository) CreateRequested(ctx context.Context, patientID string, doctorIDs []string, limit int) ([]*entities.DoctorLink, error) {
	args := m.Called(ctx, patientID, doctorIDs, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.DoctorLink), args.Error(1)
}

func (m *MockDoctorLinkRepository) GetByID(ctx context.Context, id string) (*entities.DoctorLink, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.DoctorLink), args.Error(1)
}

func (m *MockDoctorLinkRepository) Respond(ctx context.Context, link *entities.DoctorLink) error {
	args := m.Called(ctx, link)
	return args.Error(0)
}

func (m *MockDoctorLinkRepository) ListByPatient(ctx context.Context, patientID string, statuses ...entities.DoctorLinkStatus) ([]*entities.DoctorLink, error) {
	args := m.Called(ctx, patientID, statuses)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.DoctorLink), args.Error(1)
}

func (m *MockDoctorLinkRepository) ListByDoctor(ctx context.Context, doctorID string, statuses ...entities.DoctorLinkStatus) ([]*entities.DoctorLink, error) {
	args := m.Called(ctx, doctorID, statuses)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.DoctorLink), args.Error(1)
}

type MockRecommendationRepository struct {
	mock.Mock
}

func (m *MockRecommendationRepository) Create(ctx context.Context, rec *entities.Recommendation) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockRecommendationRepository) GetByID(ctx context.Context, id string) (*entities.Recommendation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Recommendation), args.Error(1)
}

func (m *MockRecommendationRepository) Review(ctx context.Context, rec *entities.Recommendation) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockRecommendationRepository) UpdateAssignment(ctx context.Context, id string, previous, next []string) error {
	args := m.Called(ctx, id, previous, next)
	return args.Error(0)
}

func (m *MockRecommendationRepository) UpdateSelection(ctx context.Context, rec *entities.Recommendation) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockRecommendationRepository) ListByPatient(ctx context.Context, patientID string, filter repositories.RecommendationFilter) ([]*entities.Recommendation, error) {
	args := m.Called(ctx, patientID, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Recommendation), args.Error(1)
}

func (m *MockRecommendationRepository) ListAssignedToDoctor(ctx context.Context, doctorID string, filter repositories.RecommendationFilter) ([]*entities.Recommendation, error) {
	args := m.Called(ctx, doctorID, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Recommendation), args.Error(1)
}

type MockChatMessageRepository struct {
	mock.Mock
}

func (m *MockChatMessageRepository) Create(ctx context.Context, msg *entities.ChatMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MockChatMessageRepository) ListRecent(ctx context.Context, patientID string, limit int) ([]*entities.ChatMessage, error) {
	args := m.Called(ctx, patientID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.ChatMessage), args.Error(1)
}

type MockCacheProvider struct {
	mock.Mock
}

func (m *MockCacheProvider) Increment(ctx context.Context, key string, windowSeconds int) (int64, error) {
	args := m.Called(ctx, key, windowSeconds)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockCacheProvider) TTL(ctx context.Context, key string) (time.Duration, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(time.Duration), args.Error(1)
}

// recordingBus keeps every published event per channel
type recordingBus struct {
	mu     sync.Mutex
	events map[string][]*entities.WorkflowEvent
}

func newRecordingBus() *recordingBus {
	return &recordingBus{events: make(map[string][]*entities.WorkflowEvent)}
}

func (b *recordingBus) Publish(ctx context.Context, channel string, event *entities.WorkflowEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events[channel] = append(b.events[channel], event)
	return nil
}

func (b *recordingBus) Subscribe(ctx context.Context, channel string) (<-chan *entities.WorkflowEvent, error) {
	return make(chan *entities.WorkflowEvent), nil
}

func (b *recordingBus) Unsubscribe(ctx context.Context, channel string) error { return nil }

func (b *recordingBus) Close() error { return nil }

func (b *recordingBus) on(channel string) []*entities.WorkflowEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.events[channel]
}

var _ providers.EventBus = (*recordingBus)(nil)

// fakeTransport answers probes and completions from fixed values
type fakeTransport struct {
	name     string
	probeErr error
	text     string
	err      error

	mu       sync.Mutex
	probes   int
	requests []providers.CompletionRequest
}

func (t *fakeTransport) Name() string { return t.name }

func (t *fakeTransport) Probe(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.probes++
	return t.probeErr
}

func (t *fakeTransport) Complete(ctx context.Context, req providers.CompletionRequest) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.requests = append(t.requests, req)
	return t.text, t.err
}

func (t *fakeTransport) probeCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.probes
}

func (t *fakeTransport) lastRequest() providers.CompletionRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.requests) == 0 {
		return providers.CompletionRequest{}
	}
	return t.requests[len(t.requests)-1]
}

// stubGenerator is a TextGenerator with a fixed readiness and answer
type stubGenerator struct {
	ready bool
	text  string
	err   error
	calls []providers.CompletionRequest
}

func (g *stubGenerator) EnsureReady(ctx context.Context) bool { return g.ready }

func (g *stubGenerator) Generate(ctx context.Context, req providers.CompletionRequest) (string, error) {
	g.calls = append(g.calls, req)
	return g.text, g.err
}

func floatPtr(v float64) *float64 { return &v }
