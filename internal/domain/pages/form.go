package pages

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"membership-portal/internal/apperr"
	"membership-portal/internal/domain/content"
	"membership-portal/internal/domain/plans"
)

// SectionTypes are the blocks the website knows how to render.
var SectionTypes = map[string]bool{
	"hero":        true,
	"text":        true,
	"image":       true,
	"video":       true,
	"gallery":     true,
	"cta":         true,
	"faq":         true,
	"testimonial": true,
	"schedule":    true,
}

type SectionForm struct {
	Type      string          `json:"type"`
	SortIndex int             `json:"sort_index"`
	Props     json.RawMessage `json:"props"`
}

type PageForm struct {
	Slug         string        `json:"slug"`
	Title        string        `json:"title" binding:"required"`
	Status       string        `json:"status"`
	RequiredTier string        `json:"required_tier"`
	Sections     []SectionForm `json:"sections"`
}

func emptyProps(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte("{}"))
}

// ToSections turns the editor's flat list into stored sections: blank
// entries dropped, order by sort index (ties keep form order), indexes
// renumbered from 0.
func ToSections(forms []SectionForm) ([]Section, error) {
	kept := make([]SectionForm, 0, len(forms))
	fields := map[string]string{}
	for i, f := range forms {
		f.Type = strings.ToLower(strings.TrimSpace(f.Type))
		if f.Type == "" || emptyProps(f.Props) {
			continue
		}
		if !SectionTypes[f.Type] {
			fields[fmt.Sprintf("sections[%d].type", i)] = "unknown section type"
			continue
		}
		var props map[string]any
		if err := json.Unmarshal(f.Props, &props); err != nil {
			fields[fmt.Sprintf("sections[%d].props", i)] = "must be a JSON object"
			continue
		}
		kept = append(kept, f)
	}
	if len(fields) > 0 {
		return nil, apperr.Validation(fields)
	}

	sort.SliceStable(kept, func(i, j int) bool { return kept[i].SortIndex < kept[j].SortIndex })

	out := make([]Section, 0, len(kept))
	for i, f := range kept {
		out = append(out, Section{SortIndex: i, Type: f.Type, Props: json.RawMessage(bytes.TrimSpace(f.Props))})
	}
	return out, nil
}

// ToPage validates the form and builds the page it describes.
func ToPage(f PageForm) (*Page, error) {
	fields := map[string]string{}

	title := strings.TrimSpace(f.Title)
	if title == "" {
		fields["title"] = "is required"
	}

	status := strings.TrimSpace(f.Status)
	if status == "" {
		status = StatusDraft
	}
	if status != StatusDraft && status != StatusPublished {
		fields["status"] = "must be draft or published"
	}

	var tier plans.Tier
	if raw := strings.TrimSpace(f.RequiredTier); raw != "" {
		t, ok := plans.LookupTier(raw)
		if !ok {
			fields["required_tier"] = "unknown tier"
		}
		tier = t
	}

	slug := content.MakeSlug(f.Slug)
	if strings.TrimSpace(f.Slug) == "" {
		slug = content.MakeSlug(title)
	}

	sections, err := ToSections(f.Sections)
	if err != nil {
		var ae *apperr.Error
		if errors.As(err, &ae) {
			for k, v := range ae.Fields {
				fields[k] = v
			}
		}
	}

	if len(fields) > 0 {
		return nil, apperr.Validation(fields)
	}
	return &Page{Slug: slug, Title: title, Status: status, RequiredTier: tier, Sections: sections}, nil
}
