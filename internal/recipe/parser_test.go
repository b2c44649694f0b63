package recipe

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func TestParser_ParseCaption(t *testing.T) {
	caption := `Fluffy Pancakes
Best weekend breakfast
Serves 4
Prep: 10 min
Ingredients:
- 2 cups flour
- 2 eggs
- 1 cup milk
Steps:
1. Whisk everything together.
2. Cook for 3 minutes per side.
#breakfast #Pancakes`

	d, err := NewParser().Parse(&RawContent{
		PostID:    "p1",
		Caption:   caption,
		SourceURL: "https://social.example.com/p/p1",
		Author:    "chef",
	})
	require.NoError(t, err)

	assert.Equal(t, "Fluffy Pancakes", d.Title)
	assert.Equal(t, "Best weekend breakfast", d.Description)
	require.NotNil(t, d.Servings)
	assert.Equal(t, 4, *d.Servings)
	require.NotNil(t, d.PrepTimeMinutes)
	assert.Equal(t, 10, *d.PrepTimeMinutes)
	assert.Equal(t, []string{"breakfast", "pancakes"}, d.Tags)
	assert.Equal(t, "p1", d.SourcePostID)
	assert.Equal(t, "https://social.example.com/p/p1", d.SourceURL)
	assert.Equal(t, "chef", d.Author)

	require.Len(t, d.Components, 1)
	c := d.Components[0]
	assert.Equal(t, DefaultComponentName, c.Name)
	require.Len(t, c.Ingredients, 3)
	assert.Equal(t, "flour", c.Ingredients[0].Name)
	assert.Equal(t, "cup", c.Ingredients[0].Unit)

	require.Len(t, c.Steps, 2)
	assert.Equal(t, Step{Order: 1, Instruction: "Whisk everything together."}, c.Steps[0])
	assert.Equal(t, "Cook for 3 minutes per side.", c.Steps[1].Instruction)
	require.NotNil(t, c.Steps[1].DurationMinutes)
	assert.Equal(t, 3, *c.Steps[1].DurationMinutes)
}

func TestParser_ParseCaptionHTML(t *testing.T) {
	raw := &RawContent{
		PostID:  "p2",
		Caption: `<p>Mac &amp; Cheese <b>soup</b></p><p>Ingredients<br>3 tomatoes<br>1 onion<script>alert(1)</script></p>`,
	}

	d, err := NewParser().Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, "Mac & Cheese soup", d.Title)
	require.Len(t, d.Components, 1)
	require.Len(t, d.Components[0].Ingredients, 2)
	assert.Equal(t, "onion", d.Components[0].Ingredients[1].Name)

	// no step lines, so steps are generated from the title
	assert.Equal(t, GenerateSteps("Mac & Cheese soup", d.Components[0].Ingredients), d.Components[0].Steps)
}

func TestParser_ParseCaptionComponents(t *testing.T) {
	caption := `Pizza night
For the dough:
2 cups flour
1 tsp yeast
For the sauce:
3 tomatoes
Method:
1. Simmer the tomatoes for 1 hour`

	d, err := NewParser().Parse(&RawContent{PostID: "p3", Caption: caption})
	require.NoError(t, err)

	require.Len(t, d.Components, 2)
	assert.Equal(t, "Dough", d.Components[0].Name)
	assert.Len(t, d.Components[0].Ingredients, 2)
	assert.NotEmpty(t, d.Components[0].Steps)

	assert.Equal(t, "Sauce", d.Components[1].Name)
	require.Len(t, d.Components[1].Steps, 1)
	require.NotNil(t, d.Components[1].Steps[0].DurationMinutes)
	assert.Equal(t, 60, *d.Components[1].Steps[0].DurationMinutes)
}

func TestParser_ParseStructured(t *testing.T) {
	payload, err := json.Marshal(doughDraft())
	require.NoError(t, err)

	d, err := NewParser().Parse(&RawContent{
		PostID:     "p4",
		Caption:    "ignored when a structured recipe is attached",
		Structured: payload,
	})
	require.NoError(t, err)

	assert.Equal(t, "Bread", d.Title)
	assert.Equal(t, "p4", d.SourcePostID)
	assert.Equal(t, doughDraft().Components, d.Components)
}

func TestParser_MetadataAtRangeLimit(t *testing.T) {
	d, err := NewParser().Parse(&RawContent{
		PostID:  "p1",
		Caption: "Slow Roast\nPrep: 35791394 hours\nServes 2147483647\nIngredients:\n- 1 kg beef\nSteps:\n1. Roast for 99999999999 hours.",
	})
	require.NoError(t, err)

	require.NotNil(t, d.PrepTimeMinutes)
	assert.Equal(t, 35791394*60, *d.PrepTimeMinutes)
	require.NotNil(t, d.Servings)
	assert.Equal(t, MaxCount, *d.Servings)
	assert.Nil(t, d.Components[0].Steps[0].DurationMinutes, "oversized step durations are dropped")
}

func TestParser_ParseErrors(t *testing.T) {
	dup := doughDraft()
	dup.Components[0].Steps[1].Order = 1
	dupPayload, err := json.Marshal(dup)
	require.NoError(t, err)

	tests := []struct {
		name       string
		raw        *RawContent
		reason     string
		validation string
	}{
		{
			name:   "nil content",
			raw:    nil,
			reason: "empty content",
		},
		{
			name:   "blank caption",
			raw:    &RawContent{PostID: "p1", Caption: "  <br>  "},
			reason: "empty content",
		},
		{
			name:   "malformed structured payload",
			raw:    &RawContent{PostID: "p1", Structured: json.RawMessage(`{"title":`)},
			reason: "malformed structured payload",
		},
		{
			name:       "caption without ingredients",
			raw:        &RawContent{PostID: "p1", Caption: "Just a photo of my lunch"},
			reason:     "invalid recipe",
			validation: "components",
		},
		{
			name:   "prep time overflows",
			raw:    &RawContent{PostID: "p1", Caption: "Toast\nPrep: 999999999999999999 hours\nIngredients:\n- 1 slice bread"},
			reason: "invalid metadata",
		},
		{
			name:   "prep hours overflow after conversion",
			raw:    &RawContent{PostID: "p1", Caption: "Toast\nPrep: 40000000 hours\nIngredients:\n- 1 slice bread"},
			reason: "invalid metadata",
		},
		{
			name:   "servings beyond range",
			raw:    &RawContent{PostID: "p1", Caption: "Toast\nServes 3000000000\nIngredients:\n- 1 slice bread"},
			reason: "invalid metadata",
		},
		{
			name:       "structured servings beyond range",
			raw:        &RawContent{PostID: "p1", Structured: json.RawMessage(`{"title":"Tea","servings":3000000000,"components":[{"name":"Main","ingredients":[{"name":"tea"}],"steps":[{"order":1,"instruction":"Steep"}]}]}`)},
			reason:     "invalid recipe",
			validation: "servings",
		},
		{
			name:       "structured duplicate step order",
			raw:        &RawContent{PostID: "p1", Structured: dupPayload},
			reason:     "invalid recipe",
			validation: "components[0].steps[1].order",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewParser().Parse(tt.raw)
			require.Error(t, err)
			assert.Nil(t, d)

			var perr *ParseError
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, tt.reason, perr.Reason)

			if tt.reason == "invalid metadata" {
				assert.ErrorIs(t, err, ErrOutOfRange)
			}

			if tt.validation != "" {
				var verr *ValidationError
				require.ErrorAs(t, err, &verr)
				assert.True(t, verr.Has(tt.validation), "violations: %+v", verr.Violations)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	d := &Draft{
		Title:      "  Banana   Bread ",
		Difficulty: " Easy",
		Tags:       []string{"#Baking", "baking", " ", "Bread"},
		Components: []Component{{
			Ingredients: []Ingredient{{Name: " ripe  bananas ", Unit: "Cups"}},
			Steps:       []Step{{Order: 3, Instruction: " Mash "}, {Order: 1, Instruction: "Bake"}},
		}},
	}

	Normalize(d)

	assert.Equal(t, "Banana Bread", d.Title)
	assert.Equal(t, "easy", d.Difficulty)
	assert.Equal(t, []string{"baking", "bread"}, d.Tags)
	assert.Equal(t, DefaultComponentName, d.Components[0].Name)
	assert.Equal(t, "ripe bananas", d.Components[0].Ingredients[0].Name)
	assert.Equal(t, "cup", d.Components[0].Ingredients[0].Unit)
	// order values are kept as given
	assert.Equal(t, 3, d.Components[0].Steps[0].Order)
	assert.Equal(t, "Mash", d.Components[0].Steps[0].Instruction)
}
