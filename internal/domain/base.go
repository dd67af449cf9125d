package domain

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ensureID assigns a v4 id before insert. Ids are generated in Go so the same
// models work on postgres and sqlite.
func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

func (s *Session) BeforeCreate(*gorm.DB) error { ensureID(&s.ID); return nil }
func (a *Answer) BeforeCreate(*gorm.DB) error  { ensureID(&a.ID); return nil }
func (p *Plan) BeforeCreate(*gorm.DB) error    { ensureID(&p.ID); return nil }
func (e *Export) BeforeCreate(*gorm.DB) error  { ensureID(&e.ID); return nil }
func (j *Job) BeforeCreate(*gorm.DB) error     { ensureID(&j.ID); return nil }

// All lists every model for automigration, in dependency order.
func All() []any {
	return []any{&Session{}, &Answer{}, &Plan{}, &Export{}, &Job{}}
}
