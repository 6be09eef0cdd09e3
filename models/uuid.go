package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 主鍵在建立時由程式端產生(uuid v7，時間有序)
// 已指定主鍵的資料列(例如測試的fixture)不會被覆蓋
func ensureID(id uuid.UUID) (uuid.UUID, error) {
	if id != uuid.Nil {
		return id, nil
	}
	return uuid.NewV7()
}

func (u *User) BeforeCreate(*gorm.DB) (err error)          { u.ID, err = ensureID(u.ID); return }
func (c *Course) BeforeCreate(*gorm.DB) (err error)        { c.ID, err = ensureID(c.ID); return }
func (a *Assignment) BeforeCreate(*gorm.DB) (err error)    { a.ID, err = ensureID(a.ID); return }
func (n *PresetNode) BeforeCreate(*gorm.DB) (err error)    { n.ID, err = ensureID(n.ID); return }
func (g *Group) BeforeCreate(*gorm.DB) (err error)         { g.ID, err = ensureID(g.ID); return }
func (p *Participation) BeforeCreate(*gorm.DB) (err error) { p.ID, err = ensureID(p.ID); return }
func (j *Journal) BeforeCreate(*gorm.DB) (err error)       { j.ID, err = ensureID(j.ID); return }
func (e *Entry) BeforeCreate(*gorm.DB) (err error)         { e.ID, err = ensureID(e.ID); return }
