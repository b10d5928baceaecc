package pagesapi

import (
	"encoding/json"

	"membership-portal/internal/domain/pages"
)

type SectionDTO struct {
	Type      string          `json:"type"`
	SortIndex int             `json:"sortIndex"`
	Props     json.RawMessage `json:"props"`
}

type PageDTO struct {
	ID           uint         `json:"id,omitempty"`
	Slug         string       `json:"slug"`
	Title        string       `json:"title"`
	Status       string       `json:"status"`
	RequiredTier string       `json:"requiredTier,omitempty"`
	Locked       bool         `json:"locked,omitempty"`
	Sections     []SectionDTO `json:"sections,omitempty"`
}

type ListPagesResponse struct {
	Pages []PageDTO `json:"pages"`
}

type GetPageResponse struct {
	Page PageDTO `json:"page"`
}

func toDTO(p pages.Page, withSections bool) PageDTO {
	dto := PageDTO{
		ID:           p.ID,
		Slug:         p.Slug,
		Title:        p.Title,
		Status:       p.Status,
		RequiredTier: string(p.RequiredTier),
	}
	if withSections {
		dto.Sections = make([]SectionDTO, 0, len(p.Sections))
		for _, s := range p.Sections {
			dto.Sections = append(dto.Sections, SectionDTO{Type: s.Type, SortIndex: s.SortIndex, Props: s.Props})
		}
	}
	return dto
}
