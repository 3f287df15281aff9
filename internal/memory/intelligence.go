package memory

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

// now is swapped in tests to make generated keys deterministic.
var now = time.Now

var (
	namePatterns = compileAll(
		`(?i)\b(?:my name is|i'm|i am|call me|i go by) ([A-Z][a-z]+)`,
		`(?i)\b(?:this is|it's) ([A-Z][a-z]+) (?:speaking|here)`,
	)
	preferencePatterns = compileAll(
		`\bi (?:like|love|prefer|enjoy) ([^.,!?]+)`,
		`\bmy favorite ([^.,!?]+) is ([^.,!?]+)`,
		`\bi (?:hate|dislike|don't like) ([^.,!?]+)`,
	)
	rememberPatterns = compileAll(
		`\bremember (?:that |this: ?)?([^.,!?]+)`,
		`\bdon't forget (?:that |this: ?)?([^.,!?]+)`,
		`\bkeep in mind (?:that |this: ?)?([^.,!?]+)`,
		`\bnote (?:that |this: ?)?([^.,!?]+)`,
	)
	systemPatterns = compileAll(
		`(?i)\bi(?:'m| am) (?:using|running|on) ([^.,!?]+)`,
		`(?i)\bmy system (?:has|is) ([^.,!?]+)`,
		`(?i)\bi have a ([A-Z][^.,!?]+) (?:GPU|CPU|graphics card)`,
	)
	factPatterns = compileAll(
		`\bi (?:have|own|use|work with) ([^.,!?]+)`,
		`\bmy ([a-z]+) is ([^.,!?]+)`,
		`\bi (?:am|was) (?:a |an )?([^.,!?]+)`,
	)

	keyUnsafe = regexp.MustCompile(`[^a-z0-9\s]`)
	topicWord = regexp.MustCompile(`\b\w{4,}\b`)
)

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}

// Extract finds candidate memories in a user message. Candidates carry Key,
// Value, Type, Importance, Tags and Description; UserID is left empty.
func Extract(text string) []Memory {
	var out []Memory
	lower := strings.ToLower(text)

	for _, re := range namePatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			out = append(out, Memory{
				Key:         "user_name",
				Value:       m[1],
				Type:        TypePreference,
				Importance:  9,
				Tags:        []string{"personal", "identity"},
				Description: "User identified themselves as " + m[1],
			})
			break
		}
	}

	for _, re := range preferencePatterns {
		for _, m := range re.FindAllStringSubmatch(lower, -1) {
			var key, value string
			if len(m) > 2 {
				key = "favorite_" + strings.ReplaceAll(m[1], " ", "_")
				value = m[2]
			} else {
				value = strings.TrimSpace(m[1])
				key = "preference_" + generateKey(value)
			}
			out = append(out, Memory{
				Key:         key,
				Value:       value,
				Type:        TypePreference,
				Importance:  7,
				Tags:        []string{"preference", "likes"},
				Description: "User preference: " + value,
			})
		}
	}

	for _, re := range rememberPatterns {
		for _, m := range re.FindAllStringSubmatch(lower, -1) {
			content := strings.TrimSpace(m[1])
			out = append(out, Memory{
				Key:         "important_" + generateKey(content),
				Value:       content,
				Type:        TypeFact,
				Importance:  10,
				Tags:        []string{"important", "explicit"},
				Description: "User explicitly requested to remember this",
			})
		}
	}

	for _, re := range systemPatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			content := strings.TrimSpace(m[1])
			out = append(out, Memory{
				Key:         "system_" + generateKey(content),
				Value:       content,
				Type:        TypeSystem,
				Importance:  6,
				Tags:        []string{"system", "technical"},
				Description: "System information: " + content,
			})
		}
	}

	for _, re := range factPatterns {
		for _, m := range re.FindAllStringSubmatch(lower, -1) {
			var key, value string
			if len(m) > 2 {
				key = strings.ReplaceAll(m[1], " ", "_")
				value = m[2]
			} else {
				value = strings.TrimSpace(m[1])
				key = generateKey(value)
			}
			if len(value) < 3 || value == "a" || value == "an" || value == "the" {
				continue
			}
			out = append(out, Memory{
				Key:         key,
				Value:       value,
				Type:        TypeFact,
				Importance:  5,
				Tags:        []string{"fact", "auto-extracted"},
				Description: "Fact about user: " + value,
			})
		}
	}

	return out
}

// generateKey lowercases text, strips non-alphanumerics, joins words with
// underscores, truncates to 50 characters and appends a timestamp suffix.
func generateKey(text string) string {
	key := keyUnsafe.ReplaceAllString(strings.ToLower(text), "")
	key = strings.Join(strings.Fields(key), "_")
	if len(key) > 50 {
		key = key[:50]
	}
	return key + "_" + now().Format("20060102150405")
}

// ShouldStore decides whether a candidate is worth persisting and why.
func ShouldStore(m Memory, existingKeys []string) (bool, string) {
	for _, k := range existingKeys {
		if k == m.Key {
			return false, "Key already exists"
		}
	}
	if len(strings.TrimSpace(m.Value)) < 2 {
		return false, "Value too short"
	}
	explicit := hasTag(m.Tags, "explicit")
	if m.Type == TypeFact && m.Importance < 5 && !explicit {
		return false, "Low importance auto-extracted fact"
	}
	switch {
	case m.Importance >= 8:
		return true, "High importance"
	case explicit:
		return true, "Explicit user request"
	case m.Type == TypePreference:
		return true, "User preference"
	}
	return true, "Valid memory"
}

// SuggestImportance proposes an importance for a memory from its content.
func SuggestImportance(m Memory) int {
	value := strings.ToLower(m.Value)
	switch {
	case hasTag(m.Tags, "explicit"):
		return 10
	case m.Type == TypePreference && containsAny(value, "name", "birthday", "email", "phone"):
		return 9
	case m.Type == TypeSystem && containsAny(value, "gpu", "cpu", "ram", "version"):
		return 8
	case m.Type == TypePreference:
		return 7
	case m.Type == TypeContext:
		return 6
	}
	return 5
}

var typeEmoji = map[Type]string{
	TypeFact:       "📝",
	TypePreference: "⭐",
	TypeContext:    "🔄",
	TypeKnowledge:  "📚",
	TypeSystem:     "⚙️",
}

// Summarize renders memories grouped by type, showing the three most
// important of each group.
func Summarize(memories []Memory) string {
	if len(memories) == 0 {
		return "No memories stored yet."
	}

	byType := map[Type][]Memory{}
	var order []Type
	for _, m := range memories {
		t := m.Type
		if t == "" {
			t = TypeFact
		}
		if _, ok := byType[t]; !ok {
			order = append(order, t)
		}
		byType[t] = append(byType[t], m)
	}

	var parts []string
	for _, t := range order {
		mems := byType[t]
		emoji, ok := typeEmoji[t]
		if !ok {
			emoji = "📌"
		}
		parts = append(parts, fmt.Sprintf("\n%s **%s** (%d):", emoji, strings.ToUpper(string(t)), len(mems)))

		sort.SliceStable(mems, func(i, j int) bool { return mems[i].Importance > mems[j].Importance })
		for i, m := range mems {
			if i == 3 {
				break
			}
			parts = append(parts, fmt.Sprintf("  • %s: %s", m.Key, m.Value))
		}
	}
	return strings.Join(parts, "\n")
}

// ConversationContext is the result of AnalyzeConversation.
type ConversationContext struct {
	Topics         []string `json:"topics"`
	Sentiment      string   `json:"sentiment"`
	TechnicalLevel string   `json:"technical_level"`
	MainSubject    string   `json:"main_subject,omitempty"`
}

var (
	technicalKeywords = []string{"code", "programming", "algorithm", "api", "database",
		"gpu", "cpu", "memory", "server", "deploy"}
	topicStopwords = map[string]bool{"that": true, "this": true, "with": true, "from": true,
		"have": true, "been": true, "would": true}
)

// AnalyzeConversation estimates the technical level and main topics of messages.
func AnalyzeConversation(messages []Message) ConversationContext {
	ctx := ConversationContext{Topics: []string{}, Sentiment: "neutral", TechnicalLevel: "standard"}

	texts := make([]string, len(messages))
	for i, m := range messages {
		texts[i] = m.Content
	}
	all := strings.ToLower(strings.Join(texts, " "))

	tech := 0
	for _, kw := range technicalKeywords {
		if strings.Contains(all, kw) {
			tech++
		}
	}
	if tech > 3 {
		ctx.TechnicalLevel = "advanced"
	} else if tech > 0 {
		ctx.TechnicalLevel = "intermediate"
	}

	freq := map[string]int{}
	var seen []string
	for _, w := range topicWord.FindAllString(all, -1) {
		if topicStopwords[w] {
			continue
		}
		if freq[w] == 0 {
			seen = append(seen, w)
		}
		freq[w]++
	}
	// first occurrence breaks ties
	sort.SliceStable(seen, func(i, j int) bool { return freq[seen[i]] > freq[seen[j]] })
	if len(seen) > 5 {
		seen = seen[:5]
	}
	ctx.Topics = append(ctx.Topics, seen...)
	if len(seen) > 0 {
		ctx.MainSubject = seen[0]
	}
	return ctx
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
