package recipe

import (
	"sort"
	"strings"
)

// unitAliases maps spellings found in captions to a canonical unit
var unitAliases = map[string]string{
	"c": "cup", "cup": "cup", "cups": "cup",
	"tbsp": "tbsp", "tbsps": "tbsp", "tbs": "tbsp", "tbl": "tbsp", "tablespoon": "tbsp", "tablespoons": "tbsp",
	"tsp": "tsp", "tsps": "tsp", "teaspoon": "tsp", "teaspoons": "tsp",
	"g": "g", "gr": "g", "gram": "g", "grams": "g",
	"kg": "kg", "kilogram": "kg", "kilograms": "kg",
	"mg": "mg",
	"ml": "ml", "milliliter": "ml", "milliliters": "ml", "millilitre": "ml", "millilitres": "ml",
	"l": "l", "liter": "l", "liters": "l", "litre": "l", "litres": "l",
	"oz": "oz", "ounce": "oz", "ounces": "oz",
	"lb": "lb", "lbs": "lb", "pound": "lb", "pounds": "lb",
	"pinch": "pinch", "pinches": "pinch",
	"dash": "dash", "dashes": "dash",
	"clove": "clove", "cloves": "clove",
	"can": "can", "cans": "can",
	"slice": "slice", "slices": "slice",
	"piece": "piece", "pieces": "piece", "pc": "piece", "pcs": "piece",
	"handful": "handful", "handfuls": "handful",
	"bunch": "bunch", "bunches": "bunch",
	"stick": "stick", "sticks": "stick",
}

// canonicalUnit returns the canonical unit for s, or "" when s is not a unit
func canonicalUnit(s string) string {
	return unitAliases[strings.ToLower(strings.TrimSuffix(s, "."))]
}

// Normalize trims free text, canonicalizes units and tags in place.
// Step order values are left untouched.
func Normalize(d *Draft) {
	d.Title = collapseSpace(d.Title)
	d.Description = strings.TrimSpace(d.Description)
	d.Difficulty = strings.ToLower(strings.TrimSpace(d.Difficulty))
	d.Category = strings.TrimSpace(d.Category)
	d.Cuisine = strings.TrimSpace(d.Cuisine)
	d.Tags = normalizeTags(d.Tags)

	for ci := range d.Components {
		c := &d.Components[ci]
		c.Name = collapseSpace(c.Name)
		if c.Name == "" {
			c.Name = DefaultComponentName
		}
		for ii := range c.Ingredients {
			ing := &c.Ingredients[ii]
			ing.Name = collapseSpace(ing.Name)
			ing.Notes = strings.TrimSpace(ing.Notes)
			if u := canonicalUnit(ing.Unit); u != "" {
				ing.Unit = u
			} else {
				ing.Unit = strings.TrimSpace(ing.Unit)
			}
		}
		for si := range c.Steps {
			s := &c.Steps[si]
			s.Instruction = collapseSpace(s.Instruction)
			s.Tips = strings.TrimSpace(s.Tips)
		}
	}
}

// normalizeTags lowercases, strips '#', drops blanks and duplicates and sorts
func normalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(strings.TrimLeft(t, "#")))
		if t != "" {
			set[t] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
