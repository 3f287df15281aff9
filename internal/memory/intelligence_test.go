package memory

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixNow(t *testing.T) {
	t.Helper()
	orig := now
	now = func() time.Time { return time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC) }
	t.Cleanup(func() { now = orig })
}

func byKey(mems []Memory) map[string]Memory {
	out := make(map[string]Memory, len(mems))
	for _, m := range mems {
		out[m.Key] = m
	}
	return out
}

func TestExtractName(t *testing.T) {
	fixNow(t)

	got := byKey(Extract("My name is Hazem. I love pizza."))

	name, ok := got["user_name"]
	require.True(t, ok, "expected user_name in %v", got)
	assert.Equal(t, "Hazem", name.Value)
	assert.Equal(t, TypePreference, name.Type)
	assert.Equal(t, 9, name.Importance)

	pref, ok := got["preference_pizza_20250304050607"]
	require.True(t, ok, "expected pizza preference in %v", got)
	assert.Equal(t, "pizza", pref.Value)
	assert.Equal(t, 7, pref.Importance)
}

func TestExtractFavorite(t *testing.T) {
	fixNow(t)

	got := byKey(Extract("My favorite color is blue"))

	fav, ok := got["favorite_color"]
	require.True(t, ok, "expected favorite_color in %v", got)
	assert.Equal(t, "blue", fav.Value)
	assert.Equal(t, TypePreference, fav.Type)
}

func TestExtractRemember(t *testing.T) {
	fixNow(t)

	got := byKey(Extract("Remember that my birthday is in May"))

	imp, ok := got["important_my_birthday_is_in_may_20250304050607"]
	require.True(t, ok, "expected explicit memory in %v", got)
	assert.Equal(t, 10, imp.Importance)
	assert.Equal(t, TypeFact, imp.Type)
	assert.Contains(t, imp.Tags, "explicit")

	fact, ok := got["birthday"]
	require.True(t, ok, "expected birthday fact in %v", got)
	assert.Equal(t, "in may", fact.Value)
	assert.Equal(t, 5, fact.Importance)
}

func TestExtractSystem(t *testing.T) {
	fixNow(t)

	mems := Extract("My system has 32GB RAM")
	var found bool
	for _, m := range mems {
		if m.Type == TypeSystem {
			found = true
			assert.Equal(t, "32GB RAM", m.Value)
			assert.Equal(t, 6, m.Importance)
			assert.True(t, strings.HasPrefix(m.Key, "system_32gb_ram_"))
		}
	}
	assert.True(t, found, "expected a system memory in %v", mems)
}

func TestExtractNothing(t *testing.T) {
	assert.Empty(t, Extract("What time is it?"))
	assert.Empty(t, Extract(""))
}

func TestGenerateKey(t *testing.T) {
	fixNow(t)

	assert.Equal(t, "hello_world_20250304050607", generateKey("Hello, World!"))

	long := generateKey(strings.Repeat("abcde ", 20))
	assert.Len(t, long, 50+1+14)
}

func TestShouldStore(t *testing.T) {
	tests := []struct {
		name   string
		mem    Memory
		keys   []string
		want   bool
		reason string
	}{
		{"duplicate", Memory{Key: "k", Value: "value"}, []string{"k"}, false, "Key already exists"},
		{"short value", Memory{Key: "k", Value: " x "}, nil, false, "Value too short"},
		{"weak fact", Memory{Key: "k", Value: "value", Type: TypeFact, Importance: 3}, nil, false, "Low importance auto-extracted fact"},
		{"explicit weak fact", Memory{Key: "k", Value: "value", Type: TypeFact, Importance: 3, Tags: []string{"explicit"}}, nil, true, "Explicit user request"},
		{"important", Memory{Key: "k", Value: "value", Type: TypeFact, Importance: 9}, nil, true, "High importance"},
		{"preference", Memory{Key: "k", Value: "value", Type: TypePreference, Importance: 7}, nil, true, "User preference"},
		{"plain", Memory{Key: "k", Value: "value", Type: TypeContext, Importance: 5}, nil, true, "Valid memory"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reason := ShouldStore(tt.mem, tt.keys)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestSuggestImportance(t *testing.T) {
	tests := []struct {
		mem  Memory
		want int
	}{
		{Memory{Type: TypeFact, Tags: []string{"explicit"}}, 10},
		{Memory{Type: TypePreference, Value: "my email is a@b.c"}, 9},
		{Memory{Type: TypeSystem, Value: "NVIDIA GPU"}, 8},
		{Memory{Type: TypePreference, Value: "tea"}, 7},
		{Memory{Type: TypeContext, Value: "debugging"}, 6},
		{Memory{Type: TypeSystem, Value: "ubuntu"}, 5},
		{Memory{Type: TypeFact, Value: "anything"}, 5},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, SuggestImportance(tt.mem), "memory %+v", tt.mem)
	}
}

func TestSummarize(t *testing.T) {
	assert.Equal(t, "No memories stored yet.", Summarize(nil))

	out := Summarize([]Memory{
		{Key: "a", Value: "1", Type: TypeFact, Importance: 2},
		{Key: "b", Value: "2", Type: TypeFact, Importance: 9},
		{Key: "c", Value: "3", Type: TypeFact, Importance: 5},
		{Key: "d", Value: "4", Type: TypeFact, Importance: 1},
		{Key: "tea", Value: "green", Type: TypePreference, Importance: 7},
	})

	assert.Contains(t, out, "📝 **FACT** (4):")
	assert.Contains(t, out, "⭐ **PREFERENCE** (1):")
	assert.Contains(t, out, "  • tea: green")
	assert.NotContains(t, out, "d: 4", "only the three most important per type")
	assert.Less(t, strings.Index(out, "b: 2"), strings.Index(out, "c: 3"))
}

func TestAnalyzeConversation(t *testing.T) {
	ctx := AnalyzeConversation([]Message{
		{Role: "user", Content: "My server code calls the database api"},
		{Role: "user", Content: "The server needs more memory"},
	})
	assert.Equal(t, "advanced", ctx.TechnicalLevel)
	assert.Equal(t, "neutral", ctx.Sentiment)
	assert.Equal(t, "server", ctx.MainSubject)
	assert.LessOrEqual(t, len(ctx.Topics), 5)

	plain := AnalyzeConversation([]Message{{Content: "hello"}})
	assert.Equal(t, "standard", plain.TechnicalLevel)

	some := AnalyzeConversation([]Message{{Content: "which gpu should I buy"}})
	assert.Equal(t, "intermediate", some.TechnicalLevel)

	empty := AnalyzeConversation(nil)
	assert.Empty(t, empty.Topics)
	assert.Empty(t, empty.MainSubject)
}
