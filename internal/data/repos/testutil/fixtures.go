package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/planforge-backend/internal/domain"
)

func SeedSession(tb testing.TB, ctx context.Context, tx *gorm.DB, userID uuid.UUID, description string) *domain.Session {
	tb.Helper()
	s := &domain.Session{
		ID:           uuid.New(),
		UserID:       userID,
		Description:  description,
		Status:       domain.SessionStatusInProgress,
		CurrentPhase: 1,
	}
	if err := tx.WithContext(ctx).Create(s).Error; err != nil {
		tb.Fatalf("seed session: %v", err)
	}
	return s
}

// SeedAnswers writes one answer per phase for phases 1..phases, question id
// "Q1" and answer text "A1".
func SeedAnswers(tb testing.TB, ctx context.Context, tx *gorm.DB, s *domain.Session, phases int) []*domain.Answer {
	tb.Helper()
	base := time.Now().UTC().Add(-time.Hour)
	out := make([]*domain.Answer, 0, phases)
	for n := 1; n <= phases; n++ {
		a := &domain.Answer{
			ID:           uuid.New(),
			SessionID:    s.ID,
			UserID:       s.UserID,
			PhaseNumber:  n,
			QuestionID:   "Q1",
			QuestionText: "Q1",
			AnswerText:   "A1",
			AnswerKind:   domain.AnswerKindShortText,
			CreatedAt:    base.Add(time.Duration(n) * time.Second),
			UpdatedAt:    base.Add(time.Duration(n) * time.Second),
		}
		if err := tx.WithContext(ctx).Create(a).Error; err != nil {
			tb.Fatalf("seed answer phase %d: %v", n, err)
		}
		out = append(out, a)
	}
	return out
}

func SeedPlan(tb testing.TB, ctx context.Context, tx *gorm.DB, s *domain.Session, content, status string) *domain.Plan {
	tb.Helper()
	p := &domain.Plan{
		ID:          uuid.New(),
		SessionID:   s.ID,
		UserID:      s.UserID,
		Content:     content,
		Status:      status,
		Version:     1,
		GeneratedAt: time.Now().UTC(),
	}
	if err := tx.WithContext(ctx).Create(p).Error; err != nil {
		tb.Fatalf("seed plan: %v", err)
	}
	return p
}

func SeedExport(tb testing.TB, ctx context.Context, tx *gorm.DB, s *domain.Session, status string) *domain.Export {
	tb.Helper()
	e := &domain.Export{
		ID:        uuid.New(),
		SessionID: s.ID,
		UserID:    s.UserID,
		Variant:   domain.ExportVariantStructured,
		Status:    status,
	}
	if err := tx.WithContext(ctx).Create(e).Error; err != nil {
		tb.Fatalf("seed export %s: %v", status, err)
	}
	return e
}
