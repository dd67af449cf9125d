package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/planforge-backend/internal/data/repos"
	"github.com/yungbote/planforge-backend/internal/domain"
	"github.com/yungbote/planforge-backend/internal/pipeline/errs"
	"github.com/yungbote/planforge-backend/internal/platform/dbctx"
	"github.com/yungbote/planforge-backend/internal/platform/logger"
	"github.com/yungbote/planforge-backend/internal/questionnaire"
)

type CreateSessionInput struct {
	Description string
	Name        string
	Audience    string
}

// AnswerInput is one submitted answer. Choices is used by multi_choice
// questions; every other kind reads Text.
type AnswerInput struct {
	QuestionID string
	Text       string
	Choices    []string
}

type SessionService interface {
	Create(ctx context.Context, ownerUserID uuid.UUID, in CreateSessionInput) (*domain.Session, error)
	Get(ctx context.Context, ownerUserID, sessionID uuid.UUID) (*domain.Session, error)
	// SavePhase upserts the phase's answers and advances the session's
	// progress counters in one transaction.
	SavePhase(ctx context.Context, ownerUserID, sessionID uuid.UUID, phase int, answers []AnswerInput) (*domain.Session, error)
	Archive(ctx context.Context, ownerUserID, sessionID uuid.UUID) error
}

type sessionService struct {
	db       *gorm.DB
	log      *logger.Logger
	sessions repos.SessionRepo
	answers  repos.AnswerRepo
	catalog  *questionnaire.Catalog
}

func NewSessionService(db *gorm.DB, baseLog *logger.Logger, sessions repos.SessionRepo, answers repos.AnswerRepo, catalog *questionnaire.Catalog) SessionService {
	return &sessionService{
		db:       db,
		log:      baseLog.With("service", "SessionService"),
		sessions: sessions,
		answers:  answers,
		catalog:  catalog,
	}
}

// ownedSession loads a session and tells a missing row from a foreign one.
func ownedSession(dbc dbctx.Context, sessions repos.SessionRepo, ownerUserID, sessionID uuid.UUID) (*domain.Session, error) {
	s, err := sessions.GetByID(dbc, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if s == nil {
		return nil, errs.NotFound("session")
	}
	if s.UserID != ownerUserID {
		return nil, errs.Unauthorized("session")
	}
	return s, nil
}

func (s *sessionService) Create(ctx context.Context, ownerUserID uuid.UUID, in CreateSessionInput) (*domain.Session, error) {
	if ownerUserID == uuid.Nil {
		return nil, errs.Unauthorized("session")
	}
	desc := strings.TrimSpace(in.Description)
	if desc == "" {
		return nil, errs.InvalidArgument("description is required")
	}
	session := &domain.Session{
		UserID:       ownerUserID,
		Description:  desc,
		Name:         strings.TrimSpace(in.Name),
		Audience:     strings.TrimSpace(in.Audience),
		CurrentPhase: 1,
		Status:       domain.SessionStatusInProgress,
	}
	created, err := s.sessions.Create(dbctx.New(ctx), session)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	s.log.Info("session created", "session_id", created.ID, "user_id", ownerUserID)
	return created, nil
}

func (s *sessionService) Get(ctx context.Context, ownerUserID, sessionID uuid.UUID) (*domain.Session, error) {
	return ownedSession(dbctx.New(ctx), s.sessions, ownerUserID, sessionID)
}

func (s *sessionService) SavePhase(ctx context.Context, ownerUserID, sessionID uuid.UUID, phase int, in []AnswerInput) (*domain.Session, error) {
	p, ok := s.catalog.Phase(phase)
	if !ok {
		return nil, errs.InvalidArgument(fmt.Sprintf("unknown phase %d", phase))
	}
	if len(in) == 0 {
		return nil, errs.InvalidArgument("no answers submitted")
	}

	session, err := ownedSession(dbctx.New(ctx), s.sessions, ownerUserID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.IsArchived() {
		return nil, errs.InvalidArgument("session is archived")
	}

	rows := make([]*domain.Answer, 0, len(in))
	seen := map[string]bool{}
	for i, a := range in {
		q, ok := p.Question(strings.TrimSpace(a.QuestionID))
		if !ok {
			return nil, errs.InvalidArgument(fmt.Sprintf("phase %d has no question %q", phase, a.QuestionID))
		}
		if seen[q.ID] {
			return nil, errs.InvalidArgument(fmt.Sprintf("question %q answered twice", q.ID))
		}
		seen[q.ID] = true
		text, err := answerText(q, a)
		if err != nil {
			return nil, err
		}
		rows = append(rows, &domain.Answer{
			SessionID:    session.ID,
			UserID:       ownerUserID,
			PhaseNumber:  phase,
			QuestionID:   q.ID,
			QuestionText: q.Text,
			AnswerText:   text,
			AnswerKind:   q.Kind,
			Position:     i,
		})
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		if err := s.answers.Upsert(dbc, rows); err != nil {
			return fmt.Errorf("upsert answers: %w", err)
		}
		count, err := s.answers.CountPhases(dbc, ownerUserID, session.ID)
		if err != nil {
			return fmt.Errorf("count phases: %w", err)
		}
		current := session.CurrentPhase
		if next := min(phase+1, questionnaire.PhaseCount); next > current {
			current = next
		}
		status := ""
		if count >= questionnaire.PhaseCount {
			status = domain.SessionStatusCompleted
		}
		ok, err := s.sessions.UpdateProgress(dbc, ownerUserID, session.ID, current, count, status)
		if err != nil {
			return fmt.Errorf("update progress: %w", err)
		}
		if !ok {
			return errs.InvalidArgument("session is archived")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Debug("phase saved", "session_id", session.ID, "phase", phase, "answers", len(rows))
	return ownedSession(dbctx.New(ctx), s.sessions, ownerUserID, session.ID)
}

// answerText validates a submitted answer against its question kind and
// returns the text to store.
func answerText(q questionnaire.Question, a AnswerInput) (string, error) {
	switch q.Kind {
	case domain.AnswerKindMultiChoice:
		if len(a.Choices) == 0 {
			return "", errs.InvalidArgument(fmt.Sprintf("question %q needs at least one choice", q.ID))
		}
		for _, c := range a.Choices {
			if !hasOption(q.Options, c) {
				return "", errs.InvalidArgument(fmt.Sprintf("question %q has no option %q", q.ID, c))
			}
		}
		return strings.Join(a.Choices, ", "), nil
	case domain.AnswerKindChoice:
		text := strings.TrimSpace(a.Text)
		if !hasOption(q.Options, text) {
			return "", errs.InvalidArgument(fmt.Sprintf("question %q has no option %q", q.ID, text))
		}
		return text, nil
	case domain.AnswerKindBoolean:
		switch strings.ToLower(strings.TrimSpace(a.Text)) {
		case "yes", "true":
			return "Yes", nil
		case "no", "false":
			return "No", nil
		}
		return "", errs.InvalidArgument(fmt.Sprintf("question %q expects yes or no", q.ID))
	default:
		text := strings.TrimSpace(a.Text)
		if text == "" {
			return "", errs.InvalidArgument(fmt.Sprintf("question %q has an empty answer", q.ID))
		}
		return text, nil
	}
}

func hasOption(options []string, v string) bool {
	for _, o := range options {
		if o == v {
			return true
		}
	}
	return false
}

func (s *sessionService) Archive(ctx context.Context, ownerUserID, sessionID uuid.UUID) error {
	session, err := ownedSession(dbctx.New(ctx), s.sessions, ownerUserID, sessionID)
	if err != nil {
		return err
	}
	if session.IsArchived() {
		return nil
	}
	if _, err := s.sessions.SetStatus(dbctx.New(ctx), ownerUserID, session.ID, domain.SessionStatusArchived); err != nil {
		return fmt.Errorf("archive session: %w", err)
	}
	s.log.Info("session archived", "session_id", session.ID)
	return nil
}
