package recipe

import (
	"fmt"
	"strings"
)

// cookingMethod describes how a dish is cooked, chosen from title keywords
type cookingMethod struct {
	keywords []string
	preheat  string
	cook     string
	minutes  int
	tips     string
}

// cookingMethods is checked in order; the first keyword hit wins.
// Pan-cooked keywords come before baked ones so "pancakes" is not baked.
var cookingMethods = []cookingMethod{
	{
		keywords: []string{"pancake", "crepe", "crêpe", "omelet", "omelette", "fritter", "fried", "fry", "stir-fry", "stirfry", "waffle", "scrambled"},
		cook:     "Heat a lightly oiled pan over medium heat and cook the mixture in batches until golden on both sides.",
		minutes:  10,
		tips:     "Keep finished batches warm in a low oven.",
	},
	{
		keywords: []string{"cake", "cupcake", "bread", "cookie", "muffin", "pie", "brownie", "tart", "bake", "baked", "roast", "roasted", "pizza", "lasagna", "casserole", "gratin", "scone"},
		preheat:  "Preheat the oven to 180°C (350°F).",
		cook:     "Transfer to a prepared baking dish and bake until cooked through and golden.",
		minutes:  30,
		tips:     "Insert a skewer in the center; it should come out clean.",
	},
	{
		keywords: []string{"grill", "grilled", "bbq", "barbecue", "kebab", "skewer", "burger", "steak"},
		preheat:  "Preheat the grill to medium-high heat.",
		cook:     "Grill, turning once, until nicely charred and cooked through.",
		minutes:  15,
		tips:     "Let the meat rest for a few minutes before serving.",
	},
	{
		keywords: []string{"soup", "pasta", "noodle", "stew", "curry", "broth", "risotto", "chili", "ramen", "porridge", "rice"},
		cook:     "Bring to a boil, then reduce the heat and simmer until everything is tender.",
		minutes:  20,
		tips:     "Taste and adjust the seasoning before serving.",
	},
	{
		keywords: []string{"salad", "smoothie", "bowl", "dressing", "salsa", "sandwich", "wrap", "overnight oats", "tartare"},
		cook:     "Toss or blend everything together until evenly combined.",
	},
}

var defaultMethod = cookingMethod{
	cook:    "Cook the mixture over medium heat, stirring occasionally, until done.",
	minutes: 15,
}

// GenerateSteps synthesizes an ordered step list from a title and its
// ingredients. The result depends only on the arguments.
func GenerateSteps(title string, ingredients []Ingredient) []Step {
	title = collapseSpace(title)
	method := pickMethod(title)

	var required, optional []string
	for _, ing := range ingredients {
		name := collapseSpace(ing.Name)
		if name == "" {
			continue
		}
		if ing.Optional {
			optional = append(optional, name)
		} else {
			required = append(required, name)
		}
	}

	var instructions []Step
	add := func(instruction string, minutes int, tips string) {
		s := Step{Order: len(instructions) + 1, Instruction: instruction, Tips: tips}
		if minutes > 0 {
			s.DurationMinutes = intPtr(minutes)
		}
		instructions = append(instructions, s)
	}

	switch {
	case len(required) > 0:
		prep := fmt.Sprintf("Gather and measure the ingredients: %s.", joinList(required))
		if len(optional) > 0 {
			prep += fmt.Sprintf(" Optionally add %s.", joinList(optional))
		}
		add(prep, 0, "")
	case len(optional) > 0:
		add(fmt.Sprintf("Gather the ingredients: %s.", joinList(optional)), 0, "")
	default:
		add(fmt.Sprintf("Gather the ingredients for %s.", dishName(title)), 0, "")
	}

	if method.preheat != "" {
		add(method.preheat, 0, "")
	}

	if len(required) > 1 {
		add(fmt.Sprintf("Combine the %s in a large bowl and mix well.", joinList(required)), 0, "")
	}

	add(method.cook, method.minutes, method.tips)
	add(fmt.Sprintf("Serve the %s.", dishName(title)), 0, "")

	return instructions
}

func pickMethod(title string) cookingMethod {
	lower := strings.ToLower(title)
	for _, m := range cookingMethods {
		for _, kw := range m.keywords {
			if strings.Contains(lower, kw) {
				return m
			}
		}
	}
	return defaultMethod
}

func dishName(title string) string {
	if title == "" {
		return "dish"
	}
	return title
}

// joinList renders "a", "a and b", "a, b and c"
func joinList(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	default:
		return strings.Join(items[:len(items)-1], ", ") + " and " + items[len(items)-1]
	}
}
