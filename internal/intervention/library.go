package intervention

// LibraryEntry is one canned intervention available for direct triggers.
type LibraryEntry struct {
	ID          string
	Category    string // physiology, sensory, cognitive
	Tier        int    // 1 = prompt, 2 = guided, 3 = insistent
	Description string
	Message     string
}

// Library is the static registry of canned interventions.
type Library struct {
	entries map[string]LibraryEntry
}

// NewLibrary returns the built-in intervention set.
func NewLibrary() *Library {
	entries := []LibraryEntry{
		{
			ID:          "phys_box_breathing",
			Category:    "physiology",
			Tier:        2,
			Description: "4-4-4-4 box breathing to lower arousal.",
			Message:     "Let's reset. Breathe in for four, hold for four, out for four, hold for four.",
		},
		{
			ID:          "phys_posture_reset",
			Category:    "physiology",
			Tier:        1,
			Description: "Quick posture check.",
			Message:     "Posture check. Shoulders down, chin back.",
		},
		{
			ID:          "phys_cold_water",
			Category:    "physiology",
			Tier:        2,
			Description: "Temperature reset.",
			Message:     "High arousal detected. Splash cold water on your face or grab an ice pack.",
		},
		{
			ID:          "sens_dim_lights",
			Category:    "sensory",
			Tier:        1,
			Description: "Reduce visual input.",
			Message:     "Sensory load is high. Try dimming the lights or closing your eyes for a moment.",
		},
		{
			ID:          "sens_headphones_on",
			Category:    "sensory",
			Tier:        2,
			Description: "Reduce auditory input.",
			Message:     "Put on noise-cancelling headphones or play brown noise.",
		},
		{
			ID:          "cog_bookmark",
			Category:    "cognitive",
			Tier:        1,
			Description: "Save current state before a break.",
			Message:     "Write down the one next thing you need to do, then stand up.",
		},
		{
			ID:          "cog_task_slice",
			Category:    "cognitive",
			Tier:        1,
			Description: "Break down a stuck task.",
			Message:     "You seem stuck. What is the smallest physical action you can do next?",
		},
		{
			ID:          "cog_next_action",
			Category:    "cognitive",
			Tier:        1,
			Description: "Focus on the immediate step.",
			Message:     "Forget the big picture. Just do the very next step.",
		},
	}

	m := make(map[string]LibraryEntry, len(entries))
	for _, e := range entries {
		m[e.ID] = e
	}
	return &Library{entries: m}
}

// Get returns the entry with the given id, if present.
func (l *Library) Get(id string) (LibraryEntry, bool) {
	e, ok := l.entries[id]
	return e, ok
}

// ByCategory returns all entries in a category.
func (l *Library) ByCategory(category string) []LibraryEntry {
	var out []LibraryEntry
	for _, e := range l.entries {
		if e.Category == category {
			out = append(out, e)
		}
	}
	return out
}

// All returns every entry.
func (l *Library) All() []LibraryEntry {
	out := make([]LibraryEntry, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, e)
	}
	return out
}
