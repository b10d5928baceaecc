package pages_test

import (
	"context"
	"encoding/json"
	"testing"

	"membership-portal/internal/apperr"
	"membership-portal/internal/domain/pages"
	"membership-portal/internal/domain/plans"
	"membership-portal/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToSections(t *testing.T) {
	sections, err := pages.ToSections([]pages.SectionForm{
		{Type: "text", SortIndex: 20, Props: json.RawMessage(`{"body":"second"}`)},
		{Type: "", SortIndex: 1, Props: json.RawMessage(`{"body":"dropped"}`)},
		{Type: "Hero", SortIndex: 5, Props: json.RawMessage(`{"title":"first"}`)},
		{Type: "cta", SortIndex: 30, Props: json.RawMessage(`{}`)},
		{Type: "faq", SortIndex: 20, Props: json.RawMessage(` {"items":[]} `)},
	})
	require.NoError(t, err)
	require.Len(t, sections, 3)

	assert.Equal(t, "hero", sections[0].Type)
	assert.Equal(t, "text", sections[1].Type)
	assert.Equal(t, "faq", sections[2].Type, "ties keep form order")
	for i, s := range sections {
		assert.Equal(t, i, s.SortIndex)
	}
	assert.JSONEq(t, `{"items":[]}`, string(sections[2].Props))
}

func TestToSectionsRejectsUnknownTypes(t *testing.T) {
	_, err := pages.ToSections([]pages.SectionForm{
		{Type: "marquee", Props: json.RawMessage(`{"a":1}`)},
		{Type: "text", Props: json.RawMessage(`[1,2]`)},
	})
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Contains(t, ae.Fields, "sections[0].type")
	assert.Contains(t, ae.Fields, "sections[1].props")
}

func TestToPage(t *testing.T) {
	p, err := pages.ToPage(pages.PageForm{Title: "About Us", RequiredTier: "Pragyani"})
	require.NoError(t, err)
	assert.Equal(t, "about-us", p.Slug)
	assert.Equal(t, pages.StatusDraft, p.Status)
	assert.Equal(t, plans.TierPragyani, p.RequiredTier)

	_, err = pages.ToPage(pages.PageForm{Title: " ", Status: "live", RequiredTier: "gold"})
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Contains(t, ae.Fields, "title")
	assert.Contains(t, ae.Fields, "status")
	assert.Contains(t, ae.Fields, "required_tier")
}

func TestVisibleTo(t *testing.T) {
	public := pages.Page{}
	gated := pages.Page{RequiredTier: plans.TierGyani}

	assert.True(t, public.VisibleTo(plans.TierFree))
	assert.False(t, gated.VisibleTo(plans.TierFree))
	assert.True(t, gated.VisibleTo(plans.TierPragyaniPlus))
	assert.False(t, pages.Page{RequiredTier: "gold"}.VisibleTo(plans.TierPragyaniPlus))
}

func TestStoreUpsertReplacesSections(t *testing.T) {
	store := pages.NewStore(testutil.NewDB(t))
	ctx := context.Background()

	first, err := pages.ToPage(pages.PageForm{
		Title:  "Retreats",
		Status: pages.StatusPublished,
		Sections: []pages.SectionForm{
			{Type: "hero", Props: json.RawMessage(`{"title":"Retreats"}`)},
			{Type: "text", SortIndex: 1, Props: json.RawMessage(`{"body":"Join us"}`)},
		},
	})
	require.NoError(t, err)
	require.NoError(t, store.Upsert(ctx, first))

	second, err := pages.ToPage(pages.PageForm{
		Title:    "Retreats 2025",
		Slug:     "retreats",
		Status:   pages.StatusPublished,
		Sections: []pages.SectionForm{{Type: "schedule", Props: json.RawMessage(`{"year":2025}`)}},
	})
	require.NoError(t, err)
	require.NoError(t, store.Upsert(ctx, second))
	assert.Equal(t, first.ID, second.ID)

	got, err := store.BySlug(ctx, "retreats", false)
	require.NoError(t, err)
	assert.Equal(t, "Retreats 2025", got.Title)
	require.Len(t, got.Sections, 1)
	assert.Equal(t, "schedule", got.Sections[0].Type)

	list, err := store.List(ctx, false)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, store.Delete(ctx, "retreats"))
	_, err = store.BySlug(ctx, "retreats", true)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDraftsAreHidden(t *testing.T) {
	store := pages.NewStore(testutil.NewDB(t))
	ctx := context.Background()

	p, err := pages.ToPage(pages.PageForm{Title: "Soon"})
	require.NoError(t, err)
	require.NoError(t, store.Upsert(ctx, p))

	_, err = store.BySlug(ctx, "soon", false)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = store.BySlug(ctx, "soon", true)
	assert.NoError(t, err)
}
