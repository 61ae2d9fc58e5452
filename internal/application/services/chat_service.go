package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zatekoja/bpcare/internal/domain/entities"
	"github.com/zatekoja/bpcare/internal/domain/providers"
	"github.com/zatekoja/bpcare/internal/domain/repositories"
	"github.com/zatekoja/bpcare/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/bpcare/pkg/errors"
)

const (
	chatHistoryTurns     = 10
	chatContextReadings  = 10
	chatDefaultHistory   = 50
	chatMaxMessageLength = 2000

	// Reply sources
	ChatSourceAI       = "ai"
	ChatSourceFallback = "fallback"
	ChatSourceError    = "error"

	chatApology = "I'm sorry, I couldn't reach the assistant service just now. Please try again in a moment. " +
		"For anything urgent or specific to your treatment, please consult your doctor."
)

// ChatReply is the stored assistant answer and where it came from
type ChatReply struct {
	Message *entities.ChatMessage `json:"message"`
	Source  string                `json:"source"`
}

// ChatService runs the patient-facing health assistant
type ChatService struct {
	messages repositories.ChatMessageRepository
	users    repositories.UserRepository
	records  repositories.MedicalRecordRepository
	readings repositories.BPReadingRepository
	gateway  TextGenerator
	flags    *FeatureFlags
	model    string
	loc      *time.Location
	now      func() time.Time
}

// NewChatService creates a new chat service
func NewChatService(
	messages repositories.ChatMessageRepository,
	users repositories.UserRepository,
	records repositories.MedicalRecordRepository,
	readings repositories.BPReadingRepository,
	gateway TextGenerator,
	flags *FeatureFlags,
	model string,
	loc *time.Location,
) *ChatService {
	if loc == nil {
		loc = time.Local
	}
	return &ChatService{
		messages: messages,
		users:    users,
		records:  records,
		readings: readings,
		gateway:  gateway,
		flags:    flags,
		model:    model,
		loc:      loc,
		now:      time.Now,
	}
}

type chatContext struct {
	LatestBP    string
	RecentBP    string
	Medications string
	Conditions  string
	Allergies   string
	Region      string
}

// Send stores the patient's message and the assistant's answer
func (s *ChatService) Send(ctx context.Context, patientID, text string) (*ChatReply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperrors.NewValidationError("message is required")
	}
	if len(text) > chatMaxMessageLength {
		return nil, apperrors.NewValidationError(fmt.Sprintf("message must be at most %d characters", chatMaxMessageLength))
	}

	history, err := s.messages.ListRecent(ctx, patientID, chatHistoryTurns)
	if err != nil {
		return nil, fmt.Errorf("failed to load chat history: %w", err)
	}

	cctx, err := s.buildContext(ctx, patientID)
	if err != nil {
		return nil, err
	}

	userMsg := &entities.ChatMessage{
		ID:        uuid.New().String(),
		PatientID: patientID,
		Role:      entities.ChatRoleUser,
		Content:   text,
		Timestamp: s.now(),
	}
	if err := s.messages.Create(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("failed to save chat message: %w", err)
	}

	var content, source string
	if s.flags.DemoMode() || !s.gateway.EnsureReady(ctx) {
		content, source = contextualFallback(cctx, text), ChatSourceFallback
	} else {
		turns := make([]providers.ChatTurn, 0, len(history))
		for _, m := range history {
			turns = append(turns, providers.ChatTurn{Role: string(m.Role), Content: m.Content})
		}
		answer, err := s.gateway.Generate(ctx, providers.CompletionRequest{
			Model:       s.model,
			System:      chatSystemPrompt(cctx),
			History:     turns,
			Prompt:      text,
			Temperature: 0.7,
			MaxTokens:   500,
		})
		if err != nil {
			observability.LoggerFromContext(ctx).Warn().Err(err).Str("patient_id", patientID).Msg("chat generation failed")
			content, source = chatApology, ChatSourceError
		} else {
			content, source = answer, ChatSourceAI
		}
	}

	reply := &entities.ChatMessage{
		ID:        uuid.New().String(),
		PatientID: patientID,
		Role:      entities.ChatRoleAssistant,
		Content:   content,
		Timestamp: s.now(),
	}
	if err := s.messages.Create(ctx, reply); err != nil {
		return nil, fmt.Errorf("failed to save chat reply: %w", err)
	}

	return &ChatReply{Message: reply, Source: source}, nil
}

// History returns the newest messages in chronological order
func (s *ChatService) History(ctx context.Context, patientID string, limit int) ([]*entities.ChatMessage, error) {
	if limit <= 0 || limit > 200 {
		limit = chatDefaultHistory
	}
	return s.messages.ListRecent(ctx, patientID, limit)
}

func (s *ChatService) buildContext(ctx context.Context, patientID string) (*chatContext, error) {
	patient, err := s.users.GetByID(ctx, patientID)
	if err != nil {
		return nil, err
	}

	readings, err := s.readings.ListByPatient(ctx, patientID, repositories.BPReadingFilter{Limit: chatContextReadings})
	if err != nil {
		return nil, fmt.Errorf("failed to load readings: %w", err)
	}

	records, err := s.records.ListByPatient(ctx, patientID, repositories.MedicalRecordFilter{
		Statuses: []entities.MedicalRecordStatus{entities.MedicalRecordStatusActive, entities.MedicalRecordStatusOngoing},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load medical history: %w", err)
	}

	var meds, conditions, allergies []string
	for _, r := range records {
		switch r.Type {
		case entities.MedicalRecordTypeMedication:
			meds = append(meds, strings.TrimSpace(r.Title+" "+r.Dosage))
		case entities.MedicalRecordTypeCondition:
			conditions = append(conditions, r.Title)
		case entities.MedicalRecordTypeAllergy:
			allergies = append(allergies, r.Title)
		}
	}

	c := &chatContext{
		LatestBP:    "No BP readings available",
		Medications: "No current medications",
		Conditions:  "No active conditions",
		Allergies:   "No known allergies",
		Region:      "Region: Not specified",
	}
	if len(readings) > 0 {
		latest := readings[0]
		c.LatestBP = fmt.Sprintf("Latest BP: %d/%d mmHg (%s)", latest.Systolic, latest.Diastolic, latest.Timestamp.In(s.loc).Format(localDayLayout))

		recent := readings
		if len(recent) > 5 {
			recent = recent[:5]
		}
		parts := make([]string, 0, len(recent))
		for i := len(recent) - 1; i >= 0; i-- {
			r := recent[i]
			parts = append(parts, fmt.Sprintf("%d/%d on %s", r.Systolic, r.Diastolic, r.Timestamp.In(s.loc).Format(localDayLayout)))
		}
		c.RecentBP = fmt.Sprintf("Recent BP (last %d): %s", len(readings), strings.Join(parts, "; "))
	}
	if len(meds) > 0 {
		c.Medications = "Current medications: " + strings.Join(meds, ", ")
	}
	if len(conditions) > 0 {
		c.Conditions = "Current conditions: " + strings.Join(conditions, ", ")
	}
	if len(allergies) > 0 {
		c.Allergies = "Allergies: " + strings.Join(allergies, ", ")
	}
	if region := patient.Region(); region != "" {
		c.Region = "Region: " + region
	}
	return c, nil
}

func chatSystemPrompt(c *chatContext) string {
	var b strings.Builder
	b.WriteString("You are HealthAI Assistant, a helpful and empathetic AI health assistant for a blood pressure management app.\n\n")
	b.WriteString("Patient Context:\n")
	for _, line := range []string{c.LatestBP, c.RecentBP, c.Medications, c.Conditions, c.Allergies, c.Region} {
		if line != "" {
			fmt.Fprintf(&b, "- %s\n", line)
		}
	}
	b.WriteString(`
Guidelines:
- Provide helpful, accurate health information about blood pressure management
- Answer questions about medications, lifestyle, diet, and symptoms
- Be empathetic and supportive
- Always recommend consulting a doctor for medical advice
- Never diagnose or prescribe medications
- Keep responses concise but informative
- If asked about specific medical conditions, provide general information only`)
	return b.String()
}

type fallbackTopic struct {
	keywords []string
	response string
}

// Emergency is checked first so urgent symptoms are never answered with general advice.
var fallbackTopics = []fallbackTopic{
	{
		keywords: []string{"emergency", "urgent", "severe", "chest pain", "difficulty breathing"},
		response: "If you are experiencing a medical emergency, such as chest pain, difficulty breathing, severe headache, or blood pressure above 180/120 mmHg, please call emergency services immediately. Do not delay seeking medical attention for serious symptoms.",
	},
	{
		keywords: []string{"side effect", "side effects", "adverse", "reaction"},
		response: "Common side effects of blood pressure medications may include dizziness, fatigue, headache, or dry cough. If you experience severe side effects like difficulty breathing, chest pain, or severe allergic reactions, seek immediate medical attention. Always report side effects to your doctor.",
	},
	{
		keywords: []string{"blood pressure", "bp", "hypertension", "hypotension"},
		response: "Blood pressure is the force of blood pushing against the walls of your arteries. Normal blood pressure is typically below 120/80 mmHg. High blood pressure (hypertension) is 130/80 mmHg or higher. If you have concerns about your blood pressure, please consult with your doctor.",
	},
	{
		keywords: []string{"medication", "medicine", "drug", "prescription", "pill"},
		response: "It's important to take medications exactly as prescribed by your doctor. Never stop taking medications without consulting your healthcare provider first. If you have questions about your medications, their side effects, or interactions, please discuss them with your doctor or pharmacist.",
	},
	{
		keywords: []string{"diet", "food", "eat", "nutrition", "dash"},
		response: "The DASH (Dietary Approaches to Stop Hypertension) diet is excellent for blood pressure management. It emphasizes fruits, vegetables, whole grains, lean proteins, and low-fat dairy while limiting sodium, saturated fats, and added sugars. Aim for less than 2,300mg of sodium per day.",
	},
	{
		keywords: []string{"exercise", "workout", "physical activity", "fitness"},
		response: "Regular exercise is important for blood pressure management. Aim for at least 150 minutes of moderate-intensity exercise per week, such as brisk walking, swimming, or cycling. Always consult your doctor before starting a new exercise program, especially if you have health concerns.",
	},
	{
		keywords: []string{"lifestyle", "lifestyle changes", "healthy living"},
		response: "Lifestyle changes that can help manage blood pressure include: maintaining a healthy weight, eating a balanced diet low in sodium, exercising regularly, limiting alcohol consumption, managing stress, getting adequate sleep, and avoiding tobacco products.",
	},
}

// keywordResponse answers common questions without the AI provider
func keywordResponse(message string) string {
	lower := strings.ToLower(message)
	for _, topic := range fallbackTopics {
		for _, kw := range topic.keywords {
			if strings.Contains(lower, kw) {
				return topic.response
			}
		}
	}
	return fmt.Sprintf("I understand you're asking about %q. While I can provide general health information, I recommend discussing specific concerns with your doctor. "+
		"For personalized medical advice, please consult with your healthcare provider. "+
		"Is there anything else I can help you with regarding your blood pressure monitoring or medications?", message)
}

// contextualFallback appends what the patient's own data shows to the keyword answer
func contextualFallback(c *chatContext, message string) string {
	lines := make([]string, 0, 3)
	for _, line := range []string{c.LatestBP, c.Medications, c.Conditions} {
		if line != "" {
			lines = append(lines, "- "+line)
		}
	}
	return strings.TrimSpace(keywordResponse(message) + "\n\nHere's what I can tell based on your recent data:\n" + strings.Join(lines, "\n"))
}
