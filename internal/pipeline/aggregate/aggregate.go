// Package aggregate groups a session's stored answers by phase and enforces
// that every phase has been answered before anything downstream runs.
package aggregate

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/yungbote/planforge-backend/internal/data/repos"
	"github.com/yungbote/planforge-backend/internal/domain"
	"github.com/yungbote/planforge-backend/internal/pipeline/errs"
	"github.com/yungbote/planforge-backend/internal/platform/dbctx"
	"github.com/yungbote/planforge-backend/internal/platform/logger"
	"github.com/yungbote/planforge-backend/internal/questionnaire"
)

type QA struct {
	QuestionID string `json:"question_id"`
	Question   string `json:"question"`
	Answer     string `json:"answer"`
}

type PhaseAnswers struct {
	Number  int    `json:"number"`
	Title   string `json:"title,omitempty"`
	Answers []QA   `json:"answers"`
}

// Group buckets answers by phase in ascending order, keeping save order
// (position, then creation time) within a phase. Answers outside 1..12 are
// ignored and unanswered phases are omitted.
func Group(answers []*domain.Answer) []PhaseAnswers {
	byPhase := map[int][]*domain.Answer{}
	for _, a := range answers {
		if a == nil || a.PhaseNumber < 1 || a.PhaseNumber > questionnaire.PhaseCount {
			continue
		}
		byPhase[a.PhaseNumber] = append(byPhase[a.PhaseNumber], a)
	}
	out := make([]PhaseAnswers, 0, len(byPhase))
	for n := 1; n <= questionnaire.PhaseCount; n++ {
		rows, ok := byPhase[n]
		if !ok {
			continue
		}
		sort.SliceStable(rows, func(i, j int) bool {
			if rows[i].Position != rows[j].Position {
				return rows[i].Position < rows[j].Position
			}
			return rows[i].CreatedAt.Before(rows[j].CreatedAt)
		})
		pa := PhaseAnswers{Number: n, Answers: make([]QA, 0, len(rows))}
		for _, a := range rows {
			pa.Answers = append(pa.Answers, QA{QuestionID: a.QuestionID, Question: a.QuestionText, Answer: a.AnswerText})
		}
		out = append(out, pa)
	}
	return out
}

// Aggregate is Group plus the completeness rule: fewer than twelve distinct
// phases is an IncompletePhases error carrying the count found.
func Aggregate(answers []*domain.Answer) ([]PhaseAnswers, error) {
	phases := Group(answers)
	if len(phases) < questionnaire.PhaseCount {
		return nil, errs.IncompletePhases(len(phases), questionnaire.PhaseCount)
	}
	return phases, nil
}

type Aggregator struct {
	log     *logger.Logger
	answers repos.AnswerRepo
	catalog *questionnaire.Catalog
}

func NewAggregator(log *logger.Logger, answers repos.AnswerRepo, catalog *questionnaire.Catalog) *Aggregator {
	return &Aggregator{log: log.With("service", "Aggregator"), answers: answers, catalog: catalog}
}

// ForSession loads the owner's answers and aggregates them, filling phase
// titles from the catalog. Session ownership is checked by the caller.
func (a *Aggregator) ForSession(ctx context.Context, ownerUserID, sessionID uuid.UUID) ([]PhaseAnswers, error) {
	rows, err := a.answers.ListBySession(dbctx.New(ctx), ownerUserID, sessionID)
	if err != nil {
		return nil, err
	}
	phases, err := Aggregate(rows)
	if err != nil {
		a.log.Debug("answers incomplete", "session_id", sessionID, "error", err)
		return nil, err
	}
	return a.withTitles(phases), nil
}

// PartialForSession is ForSession without the completeness rule.
func (a *Aggregator) PartialForSession(ctx context.Context, ownerUserID, sessionID uuid.UUID) ([]PhaseAnswers, error) {
	rows, err := a.answers.ListBySession(dbctx.New(ctx), ownerUserID, sessionID)
	if err != nil {
		return nil, err
	}
	return a.withTitles(Group(rows)), nil
}

func (a *Aggregator) withTitles(phases []PhaseAnswers) []PhaseAnswers {
	if a.catalog == nil {
		return phases
	}
	for i := range phases {
		if p, ok := a.catalog.Phase(phases[i].Number); ok {
			phases[i].Title = p.Title
		}
	}
	return phases
}
