package profile

// skillCategories are the keys under "skills" that feed the lexicon.
var skillCategories = []string{
	"languages",
	"frameworks_platforms",
	"databases",
	"cloud",
	"data",
	"api_formats",
	"ui_ux",
	"tools",
}

// Lexicon is the flattened vocabulary of the profile. The judge uses it to
// tell known skills and preferences apart from unknown ones. All terms are
// trimmed, lower-cased, sorted and unique.
type Lexicon struct {
	Skills      []string `json:"skills"`
	Preferences []string `json:"preferences"`
}

// BuildLexicon derives the lexicon from d. Certifications and education
// count as skills.
func BuildLexicon(d *Document) Lexicon {
	var skills []string
	for _, key := range skillCategories {
		if v, ok := d.Lookup("skills", key); ok {
			skills = append(skills, Flatten(v)...)
		}
	}
	if v, ok := d.Section("certifications"); ok {
		skills = append(skills, Flatten(v)...)
	}
	if v, ok := d.Section("education"); ok {
		skills = append(skills, Flatten(v)...)
	}

	var prefs []string
	for _, path := range [][]string{
		{"personal", "hobbies"},
		{"personal", "favorites", "color"},
		{"personal", "favorites", "foods"},
	} {
		if v, ok := d.Lookup(path...); ok {
			prefs = append(prefs, Flatten(v)...)
		}
	}

	return Lexicon{
		Skills:      uniqueSorted(skills, true),
		Preferences: uniqueSorted(prefs, true),
	}
}

// HasSkill reports whether term is a known skill, ignoring case.
func (l Lexicon) HasSkill(term string) bool {
	return contains(l.Skills, term)
}

// HasPreference reports whether term is a known preference, ignoring case.
func (l Lexicon) HasPreference(term string) bool {
	return contains(l.Preferences, term)
}

func contains(sorted []string, term string) bool {
	norm := uniqueSorted([]string{term}, true)
	if len(norm) == 0 {
		return false
	}
	for _, s := range sorted {
		if s == norm[0] {
			return true
		}
	}
	return false
}
