package handlers_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/zatekoja/bpcare/internal/api/middleware"
	"github.com/zatekoja/bpcare/internal/application/services"
	"github.com/zatekoja/bpcare/internal/domain/entities"
)

func newRequest(method, target, body string, principal *entities.Principal) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if principal != nil {
		req = req.WithContext(middleware.WithPrincipal(req.Context(), *principal))
	}
	return req
}

var (
	patient = &entities.Principal{ID: "patient-1", Role: entities.UserRolePatient}
	doctor  = &entities.Principal{ID: "doc-1", Role: entities.UserRoleDoctor}
)

type stubReadingService struct {
	submit    func(patientID string, in services.ReadingInput) (*services.SubmitResult, error)
	trendArgs []interface{}
}

func (s *stubReadingService) SubmitReading(ctx context.Context, patientID string, in services.ReadingInput) (*services.SubmitResult, error) {
	return s.submit(patientID, in)
}

func (s *stubReadingService) Progress(ctx context.Context, patientID string) (*services.DailyProgress, error) {
	return &services.DailyProgress{Date: "2026-03-02", TodayCount: 2, Remaining: 3, Limit: 5}, nil
}

func (s *stubReadingService) Trend(ctx context.Context, principal entities.Principal, patientID string, days int) (*services.BPTrend, error) {
	s.trendArgs = []interface{}{principal.ID, patientID, days}
	return &services.BPTrend{PatientID: patientID, Days: days, Daily: []services.DailyAverage{}}, nil
}

type stubRecommendations struct {
	err           error
	generatedWith []string
	calledWith    []interface{}
	medications   []services.MedicationInput
}

func (s *stubRecommendations) rec(id string) *entities.Recommendation {
	return &entities.Recommendation{ID: id, PatientID: "patient-1", Status: entities.RecommendationStatusPending}
}

func (s *stubRecommendations) Generate(ctx context.Context, patientID string, assignedDoctorIDs []string) (*entities.Recommendation, error) {
	s.generatedWith = assignedDoctorIDs
	if s.err != nil {
		return nil, s.err
	}
	return s.rec("rec-1"), nil
}

func (s *stubRecommendations) Approve(ctx context.Context, id, doctorID, notes string) (*entities.Recommendation, error) {
	s.calledWith = []interface{}{"approve", id, doctorID, notes}
	if s.err != nil {
		return nil, s.err
	}
	rec := s.rec(id)
	rec.Status = entities.RecommendationStatusApproved
	return rec, nil
}

func (s *stubRecommendations) Reject(ctx context.Context, id, doctorID, notes string) (*entities.Recommendation, error) {
	s.calledWith = []interface{}{"reject", id, doctorID, notes}
	return s.rec(id), s.err
}

func (s *stubRecommendations) Modify(ctx context.Context, id, doctorID, notes string, medications []services.MedicationInput) (*entities.Recommendation, error) {
	s.calledWith = []interface{}{"modify", id, doctorID, notes}
	s.medications = medications
	return s.rec(id), s.err
}

func (s *stubRecommendations) AssignDoctors(ctx context.Context, id, patientID string, doctorIDs []string) (*entities.Recommendation, error) {
	s.calledWith = []interface{}{"assign", id, patientID, doctorIDs}
	return s.rec(id), s.err
}

func (s *stubRecommendations) SelectMedications(ctx context.Context, id, patientID string, selection []services.MedicationInput, doctorIDs []string) (*entities.Recommendation, error) {
	s.calledWith = []interface{}{"select", id, patientID, doctorIDs}
	s.medications = selection
	return s.rec(id), s.err
}

func (s *stubRecommendations) Get(ctx context.Context, id string, principal entities.Principal) (*entities.Recommendation, error) {
	s.calledWith = []interface{}{"get", id, principal.ID}
	if s.err != nil {
		return nil, s.err
	}
	return s.rec(id), nil
}

func (s *stubRecommendations) ListForPatient(ctx context.Context, patientID string, status entities.RecommendationStatus, limit int) (*services.RecommendationList, error) {
	s.calledWith = []interface{}{"list", patientID, status, limit}
	return &services.RecommendationList{
		Items:          []*entities.Recommendation{s.rec("rec-1")},
		CountsByStatus: map[entities.RecommendationStatus]int{entities.RecommendationStatusPending: 1},
	}, s.err
}

func (s *stubRecommendations) ListPendingForDoctor(ctx context.Context, doctorID string, limit int) ([]*entities.Recommendation, error) {
	s.calledWith = []interface{}{"pending", doctorID, limit}
	return []*entities.Recommendation{s.rec("rec-1"), s.rec("rec-2")}, s.err
}

type stubLinks struct {
	result     *services.LinkRequestResult
	err        error
	calledWith []interface{}
}

func (s *stubLinks) Request(ctx context.Context, patientID string, doctorIDs []string) (*services.LinkRequestResult, error) {
	s.calledWith = []interface{}{"request", patientID, doctorIDs}
	return s.result, s.err
}

func (s *stubLinks) Accept(ctx context.Context, linkID, doctorID, comment string) (*entities.DoctorLink, error) {
	s.calledWith = []interface{}{"accept", linkID, doctorID, comment}
	if s.err != nil {
		return nil, s.err
	}
	return &entities.DoctorLink{ID: linkID, DoctorID: doctorID, Status: entities.DoctorLinkStatusApproved, Comment: comment}, nil
}

func (s *stubLinks) Decline(ctx context.Context, linkID, doctorID, comment string) (*entities.DoctorLink, error) {
	s.calledWith = []interface{}{"decline", linkID, doctorID, comment}
	if s.err != nil {
		return nil, s.err
	}
	return &entities.DoctorLink{ID: linkID, DoctorID: doctorID, Status: entities.DoctorLinkStatusDeclined}, nil
}

func (s *stubLinks) MyDoctors(ctx context.Context, patientID string) (*services.PatientLinks, error) {
	return &services.PatientLinks{Counts: map[string]int{"approved": 1}}, nil
}

func (s *stubLinks) IncomingRequests(ctx context.Context, doctorID string) ([]*entities.DoctorLink, error) {
	s.calledWith = []interface{}{"requests", doctorID}
	return []*entities.DoctorLink{{ID: "link-1"}}, nil
}

func (s *stubLinks) AssignedPatients(ctx context.Context, doctorID string) ([]*entities.DoctorLink, error) {
	s.calledWith = []interface{}{"patients", doctorID}
	return []*entities.DoctorLink{}, nil
}

type stubChat struct {
	reply        *services.ChatReply
	err          error
	sent         string
	historyLimit int
}

func (s *stubChat) Send(ctx context.Context, patientID, text string) (*services.ChatReply, error) {
	s.sent = text
	return s.reply, s.err
}

func (s *stubChat) History(ctx context.Context, patientID string, limit int) ([]*entities.ChatMessage, error) {
	s.historyLimit = limit
	return []*entities.ChatMessage{{ID: "m1", Role: entities.ChatRoleUser, Content: "hi"}}, nil
}

type stubGateway struct {
	status   services.GatewayStatus
	selfTest services.SelfTestResult
	reinits  int
}

func (s *stubGateway) Status() services.GatewayStatus { return s.status }

func (s *stubGateway) SelfTest(ctx context.Context) services.SelfTestResult { return s.selfTest }

func (s *stubGateway) Reinit(ctx context.Context) services.GatewayStatus {
	s.reinits++
	return s.status
}

// memoryBus is an in-process EventBus for stream tests
type memoryBus struct {
	mu          sync.Mutex
	subscribers map[string][]chan *entities.WorkflowEvent
}

func newMemoryBus() *memoryBus {
	return &memoryBus{subscribers: make(map[string][]chan *entities.WorkflowEvent)}
}

func (b *memoryBus) Publish(ctx context.Context, channel string, event *entities.WorkflowEvent) error {
	b.mu.Lock()
	subs := append([]chan *entities.WorkflowEvent(nil), b.subscribers[channel]...)
	b.mu.Unlock()
	for _, ch := range subs {
		ch <- event
	}
	return nil
}

func (b *memoryBus) Subscribe(ctx context.Context, channel string) (<-chan *entities.WorkflowEvent, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan *entities.WorkflowEvent, 10)
	b.subscribers[channel] = append(b.subscribers[channel], ch)
	return ch, nil
}

func (b *memoryBus) subscriberCount(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers[channel])
}

func (b *memoryBus) Unsubscribe(ctx context.Context, channel string) error { return nil }

func (b *memoryBus) Close() error { return nil }
